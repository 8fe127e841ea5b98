package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPendingTTL = 10 * time.Minute
	pendingKeyPrefix  = "attachguard:pending:"
)

// PendingJob describes a detection run waiting for its websocket listener.
type PendingJob struct {
	SiteID string `json:"site_id"`
	Mode   string `json:"mode"`
}

type pendingEntry struct {
	job       PendingJob
	expiresAt time.Time
}

// Registry holds pending jobs until their listener connects. Each job is taken at most once.
// Redis is used when available; otherwise a process-local map.
type Registry struct {
	rc  *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]pendingEntry
}

// NewRegistry creates a registry; rc may be nil and ttl defaults to ten minutes.
func NewRegistry(rc *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *Registry {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{rc: rc, ttl: ttl, log: log, pending: make(map[string]pendingEntry)}
}

// RegisterPending stores job under jobID, replacing any earlier registration.
func (r *Registry) RegisterPending(ctx context.Context, jobID string, job PendingJob) error {
	if r.rc != nil {
		b, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := r.rc.Set(ctx, pendingKeyPrefix+jobID, b, r.ttl).Err(); err != nil {
			return fmt.Errorf("register pending job: %w", err)
		}
		return nil
	}
	r.mu.Lock()
	r.cleanupLocked()
	r.pending[jobID] = pendingEntry{job: job, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return nil
}

// Take atomically removes and returns the job for jobID.
func (r *Registry) Take(ctx context.Context, jobID string) (PendingJob, bool) {
	if r.rc != nil {
		key := pendingKeyPrefix + jobID
		v, err := r.rc.GetDel(ctx, key).Result()
		if err != nil && err != redis.Nil {
			// servers without GETDEL
			script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
			res, evalErr := r.rc.Eval(ctx, script, []string{key}).Result()
			if evalErr != nil {
				r.log.Warnf("take pending job=%s: getdel: %v, eval: %v", jobID, err, evalErr)
				return PendingJob{}, false
			}
			s, _ := res.(string)
			v = s
		}
		if v == "" {
			return PendingJob{}, false
		}
		var job PendingJob
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			r.log.Warnf("decode pending job=%s: %v", jobID, err)
			return PendingJob{}, false
		}
		return job, true
	}

	r.mu.Lock()
	entry, ok := r.pending[jobID]
	if ok {
		delete(r.pending, jobID)
	}
	r.mu.Unlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return PendingJob{}, false
	}
	return entry.job, true
}

// TakeAndRun takes the job for jobID and runs fn with it. It reports whether a job was found.
func (r *Registry) TakeAndRun(ctx context.Context, jobID string, fn func(context.Context, PendingJob)) bool {
	job, ok := r.Take(ctx, jobID)
	if !ok {
		return false
	}
	fn(ctx, job)
	return true
}

func (r *Registry) cleanupLocked() {
	now := time.Now()
	for k, e := range r.pending {
		if now.After(e.expiresAt) {
			delete(r.pending, k)
		}
	}
}
