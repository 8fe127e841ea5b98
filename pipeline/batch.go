package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/progress"
)

// RunOptions tune a site batch.
type RunOptions struct {
	Mode detector.Mode
	// JobID only labels log lines; events go to Sink.
	JobID string
	Sink  progress.Sink
}

// BatchResult summarises a site batch.
type BatchResult struct {
	Processed int `json:"processed_count"`
	Sensitive int `json:"sensitive_count"`
	Skipped   int `json:"skipped_count"`
	Failed    int `json:"failed_count"`
	Total     int `json:"total_count"`
}

// DownloadResult summarises a download-only pass.
type DownloadResult struct {
	Downloaded int `json:"downloaded_count"`
	Total      int `json:"total_count"`
}

// Runner processes every attachment of a site sequentially.
type Runner struct {
	store     Store
	processor *Processor
	fetcher   Fetcher
	log       *zap.SugaredLogger
}

// NewRunner creates a Runner over the processor's store and fetcher.
func NewRunner(p *Processor) *Runner {
	return &Runner{store: p.store, processor: p, fetcher: p.fetcher, log: p.log}
}

// Processor returns the per-attachment processor.
func (r *Runner) Processor() *Processor { return r.processor }

// Run processes all attachments of siteID in id order and emits N+2 progress events.
// Per-record failures are logged and counted; only a failure to load the list is returned.
// The batch always runs to completion: cancelling ctx does not stop it.
func (r *Runner) Run(ctx context.Context, siteID string, opts RunOptions) (BatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	items, err := r.store.ListBySite(ctx, siteID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load attachments for site %s: %w", siteID, err)
	}
	mode := opts.Mode
	if mode == "" {
		mode = detector.ModeNormal
	}
	batchJobsTotal.WithLabelValues(string(mode)).Inc()

	total := len(items)
	res := BatchResult{Total: total}
	emit := func(current int, msg string) {
		if opts.Sink != nil {
			opts.Sink(progress.NewEvent(current, total, msg))
		}
	}
	r.log.Infof("detect site=%s job=%s mode=%s attachments=%d", siteID, opts.JobID, mode, total)
	emit(0, fmt.Sprintf("Starting detection for %d attachments...", total))

	for i, a := range items {
		outcome, err := r.processor.Process(ctx, a, ProcessOptions{Mode: mode})
		if err != nil {
			res.Failed++
			r.log.Errorf("error processing attachment %d: %v", a.ID, err)
		} else {
			res.Processed++
			if outcome != OutcomeProcessed {
				res.Skipped++
			}
			if a.Sensitive() {
				res.Sensitive++
			}
		}
		emit(i+1, fmt.Sprintf("Processing attachment %d/%d...", i+1, total))
	}

	emit(total, fmt.Sprintf("Detection completed. %d attachments with sensitive info detected out of %d.", res.Sensitive, res.Processed))
	r.log.Infof("detect site=%s job=%s done processed=%d sensitive=%d skipped=%d failed=%d",
		siteID, opts.JobID, res.Processed, res.Sensitive, res.Skipped, res.Failed)
	return res, nil
}

// DownloadOnly fetches every attachment of siteID into the cache without extracting.
// Cache hits count as downloaded. Like Run, it ignores cancellation of ctx.
func (r *Runner) DownloadOnly(ctx context.Context, siteID string) (DownloadResult, error) {
	ctx = context.WithoutCancel(ctx)
	items, err := r.store.ListBySite(ctx, siteID)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("load attachments for site %s: %w", siteID, err)
	}
	res := DownloadResult{Total: len(items)}
	for _, a := range items {
		fullURL, err := ResolveURL(a.URLPath, "", r.processor.defaultBase)
		if err != nil {
			r.log.Warnf("invalid url for attachment %d: %q", a.ID, a.URLPath)
			continue
		}
		if _, err := r.fetcher.EnsureFetched(ctx, fullURL); err != nil {
			r.log.Warnf("failed to download %s: %v", fullURL, err)
			continue
		}
		res.Downloaded++
	}
	return res, nil
}
