// Package filecache maps attachment URLs onto a local directory tree and downloads on miss.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrEmptyPath is returned when the URL has no path component to cache under.
	ErrEmptyPath = errors.New("filecache: url has no path")
	// ErrHTTPStatus is wrapped by StatusError.
	ErrHTTPStatus = errors.New("filecache: unexpected http status")
)

// StatusError reports a non-2xx download response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// Cache stores downloaded attachments under root using the URL path as the relative location.
// A file existing at the resolved path is the only hit criterion.
type Cache struct {
	root   string
	client *http.Client
	group  singleflight.Group
	log    *zap.SugaredLogger
}

// Option customises a Cache.
type Option func(*Cache)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(cache *Cache) { cache.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(cache *Cache) { cache.log = l }
}

// New creates a cache rooted at root; timeout bounds each download (30s when zero).
func New(root string, timeout time.Duration, opts ...Option) *Cache {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Cache{
		root:   root,
		client: &http.Client{Timeout: timeout},
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Resolve returns the local path for rawURL and creates its parent directories.
func (c *Cache) Resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	rel := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if rel == "" {
		return "", ErrEmptyPath
	}
	local := filepath.Join(c.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return local, nil
}

// Cached reports whether rawURL is already present locally.
func (c *Cache) Cached(rawURL string) bool {
	local, err := c.Resolve(rawURL)
	if err != nil {
		return false
	}
	_, err = os.Stat(local)
	return err == nil
}

// EnsureFetched returns the local path for rawURL, downloading it first when absent.
// Concurrent calls for the same URL share one download.
func (c *Cache) EnsureFetched(ctx context.Context, rawURL string) (string, error) {
	local, err := c.Resolve(rawURL)
	if err != nil {
		downloadsTotal.WithLabelValues("failed").Inc()
		return "", err
	}
	if _, err := os.Stat(local); err == nil {
		downloadsTotal.WithLabelValues("hit").Inc()
		return local, nil
	}

	_, err, _ = c.group.Do(local, func() (interface{}, error) {
		if _, err := os.Stat(local); err == nil {
			return nil, nil
		}
		return nil, c.download(ctx, rawURL, local)
	})
	if err != nil {
		downloadsTotal.WithLabelValues("failed").Inc()
		c.log.Warnf("download failed url=%s err=%v", rawURL, err)
		return "", err
	}
	downloadsTotal.WithLabelValues("downloaded").Inc()
	return local, nil
}

func (c *Cache) download(ctx context.Context, rawURL, local string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(local)
		return fmt.Errorf("write %s: %w", local, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(local)
		return fmt.Errorf("close %s: %w", local, err)
	}
	c.log.Infof("downloaded %s -> %s", rawURL, local)
	return nil
}
