// Package remote mirrors site and attachment metadata from the upstream CMS database.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryTimeout bounds each upstream query.
const QueryTimeout = 5 * time.Minute

const sitesQuery = `
SELECT
	f.wbfirmid::text AS owner,
	f.wbaccount AS account,
	f.wbname AS name,
	f.wbregisterdate AS create_date,
	h.wbdomain AS domain,
	h.wbstatus AS state,
	h.wbaliasdomains AS alias_domains
FROM wbfirm f
LEFT JOIN wbvirhost h ON h.owner = f.wbfirmid`

const attachmentsQuery = `
SELECT f.owner::text AS owner, f.wbshowname AS show_name, f.wbfilepath AS file_path,
	s.wburlpath AS url_path, f.wbext AS file_ext, f.wbcreatedate AS create_date
FROM wbnewsfile AS f
LEFT JOIN wbstoragefile s ON s.wbshorturl =
	CASE
		WHEN f.wbfilepath LIKE '%?%' THEN SUBSTRING(f.wbfilepath, 1, POSITION('?' IN f.wbfilepath) - 1)
		ELSE f.wbfilepath
	END
WHERE s.wburlpath IS NOT NULL`

// SiteRow is one upstream site joined with its virtual host.
type SiteRow struct {
	Owner        string     `db:"owner"`
	Account      *string    `db:"account"`
	Name         *string    `db:"name"`
	CreateDate   *time.Time `db:"create_date"`
	Domain       *string    `db:"domain"`
	State        *int       `db:"state"`
	AliasDomains *string    `db:"alias_domains"`
}

// AttachmentRow is one upstream attachment with its resolved storage URL path.
type AttachmentRow struct {
	Owner      string     `db:"owner"`
	ShowName   *string    `db:"show_name"`
	FilePath   string     `db:"file_path"`
	URLPath    string     `db:"url_path"`
	FileExt    *string    `db:"file_ext"`
	CreateDate *time.Time `db:"create_date"`
}

// Source reads upstream metadata.
type Source interface {
	Sites(ctx context.Context) ([]SiteRow, error)
	// Attachments returns every attachment, or only those of owner when it is non-empty.
	Attachments(ctx context.Context, owner string) ([]AttachmentRow, error)
}

// PGSource reads from the upstream PostgreSQL through a pgx pool.
type PGSource struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*PGSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse remote dsn: %w", err)
	}
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect remote db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping remote db: %w", err)
	}
	return &PGSource{pool: pool}, nil
}

// Close releases the pool.
func (s *PGSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PGSource) Sites(ctx context.Context) ([]SiteRow, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var rows []SiteRow
	if err := pgxscan.Select(ctx, s.pool, &rows, sitesQuery); err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	return rows, nil
}

func (s *PGSource) Attachments(ctx context.Context, owner string) ([]AttachmentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	query := attachmentsQuery
	var args []any
	if owner != "" {
		query += " AND f.owner::text = $1"
		args = append(args, owner)
	}
	var rows []AttachmentRow
	if err := pgxscan.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	return rows, nil
}
