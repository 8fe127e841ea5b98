package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/models"
)

// Syncer upserts upstream rows into the local store.
type Syncer struct {
	src         Source
	db          *gorm.DB
	defaultBase string
	log         *zap.SugaredLogger
}

// NewSyncer creates a Syncer; relative url paths are prefixed with defaultBase.
func NewSyncer(src Source, db *gorm.DB, defaultBase string, log *zap.SugaredLogger) *Syncer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Syncer{src: src, db: db, defaultBase: defaultBase, log: log}
}

// SyncSites mirrors every upstream site, keyed by owner, and returns the number of rows read.
func (s *Syncer) SyncSites(ctx context.Context) (int, error) {
	rows, err := s.src.Sites(ctx)
	if err != nil {
		return 0, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			var site models.Site
			err := tx.Where("owner = ?", r.Owner).First(&site).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			site.Owner = r.Owner
			site.Account = deref(r.Account)
			site.Name = deref(r.Name)
			site.Domain = deref(r.Domain)
			site.AliasDomains = deref(r.AliasDomains)
			site.State = 0
			if r.State != nil {
				site.State = *r.State
			}
			site.CreateDate = r.CreateDate
			if err := tx.Save(&site).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sync sites: %w", err)
	}
	s.log.Infof("synced %d sites from remote database", len(rows))
	return len(rows), nil
}

// SyncAttachments mirrors upstream attachments, optionally for one site owner.
// An existing record is only overwritten when the upstream create date is newer.
func (s *Syncer) SyncAttachments(ctx context.Context, owner string) (int, error) {
	rows, err := s.src.Attachments(ctx, owner)
	if err != nil {
		return 0, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			fullURL := s.prefixed(r.URLPath)
			var existing models.Attachment
			err := tx.Where("file_path = ? AND url_path IN ?", r.FilePath, []string{r.URLPath, fullURL}).
				Order("id ASC").First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				a := models.Attachment{
					SiteID:     r.Owner,
					ShowName:   deref(r.ShowName),
					FilePath:   r.FilePath,
					URLPath:    fullURL,
					FileExt:    deref(r.FileExt),
					CreateDate: r.CreateDate,
				}
				if err := tx.Create(&a).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if r.CreateDate == nil || (existing.CreateDate != nil && !r.CreateDate.After(*existing.CreateDate)) {
					continue
				}
				existing.ShowName = deref(r.ShowName)
				existing.SiteID = r.Owner
				existing.FileExt = deref(r.FileExt)
				existing.CreateDate = r.CreateDate
				existing.URLPath = fullURL
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sync attachments: %w", err)
	}
	s.log.Infof("synced %d attachments from remote database (site=%q)", len(rows), owner)
	return len(rows), nil
}

func (s *Syncer) prefixed(urlPath string) string {
	if urlPath == "" || strings.HasPrefix(urlPath, "http://") || strings.HasPrefix(urlPath, "https://") || s.defaultBase == "" {
		return urlPath
	}
	return strings.TrimRight(s.defaultBase, "/") + urlPath
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
