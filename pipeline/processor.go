// Package pipeline runs attachments through fetch, extraction, detection and persistence.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/extractor"
	"github.com/cppla/attachguard/models"
)

// Outcome classifies how Process finished.
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeInvalidURL
	OutcomeFetchFailed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeInvalidURL:
		return "invalid_url"
	case OutcomeFetchFailed:
		return "fetch_failed"
	default:
		return "failed"
	}
}

// archiveSuffix is appended to a cached archive path to get its expansion directory.
const archiveSuffix = "_extracted"

// Store persists attachments.
type Store interface {
	ListBySite(ctx context.Context, siteID string) ([]*models.Attachment, error)
	Save(ctx context.Context, a *models.Attachment) error
}

// Fetcher materialises a remote URL as a local file.
type Fetcher interface {
	EnsureFetched(ctx context.Context, rawURL string) (string, error)
}

// ContentExtractor turns local files into text.
type ContentExtractor interface {
	ExtractContent(ctx context.Context, path string, kind extractor.Kind) extractor.Content
	ExtractArchive(ctx context.Context, archivePath, destDir string) extractor.Content
}

// ProcessOptions tune a single Process call.
type ProcessOptions struct {
	// BaseURL overrides the default base for relative url paths.
	BaseURL string
	Mode    detector.Mode
	// AfterCommit runs once the record is saved; a panic inside it is logged and ignored.
	AfterCommit func(*models.Attachment)
}

// Processor processes one attachment at a time.
type Processor struct {
	store       Store
	fetcher     Fetcher
	extractor   ContentExtractor
	detector    *detector.Detector
	defaultBase string
	log         *zap.SugaredLogger
	now         func() time.Time
}

// NewProcessor wires the processing stages together.
func NewProcessor(store Store, fetcher Fetcher, ex ContentExtractor, det *detector.Detector, defaultBase string, log *zap.SugaredLogger) *Processor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if det == nil {
		det = detector.New(nil, log)
	}
	return &Processor{
		store:       store,
		fetcher:     fetcher,
		extractor:   ex,
		detector:    det,
		defaultBase: defaultBase,
		log:         log,
		now:         time.Now,
	}
}

// AIAvailable reports whether ai mode can reach a classifier.
func (p *Processor) AIAvailable() bool { return p.detector.AIAvailable() }

// DefaultBase is the base URL used for relative url paths.
func (p *Processor) DefaultBase() string { return p.defaultBase }

// Process runs a through the pipeline. Skipped attachments (invalid URL, failed download) return
// a nil error; an error means persistence failed or a stage panicked.
func (p *Processor) Process(ctx context.Context, a *models.Attachment, opts ProcessOptions) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("process attachment %d: panic: %v", a.ID, r)
		}
		processedTotal.WithLabelValues(outcome.String()).Inc()
	}()

	fullURL, err := ResolveURL(a.URLPath, opts.BaseURL, p.defaultBase)
	if err != nil {
		p.log.Warnf("invalid url for attachment %d: %q", a.ID, a.URLPath)
		return OutcomeInvalidURL, nil
	}

	ext := extFromURL(fullURL)
	if ext == "" {
		ext = strings.ToLower(a.FileExt)
	}
	if a.FileExt != ext {
		a.FileExt = ext
		if err := p.store.Save(ctx, a); err != nil {
			return OutcomeFailed, fmt.Errorf("save file_ext for attachment %d: %w", a.ID, err)
		}
	}

	local, err := p.fetcher.EnsureFetched(ctx, fullURL)
	if err != nil {
		p.log.Warnf("failed to fetch attachment %d from %s: %v", a.ID, fullURL, err)
		return OutcomeFetchFailed, nil
	}

	kind := extractor.KindOf(ext)
	var content extractor.Content
	if kind == extractor.KindArchive {
		content = p.extractor.ExtractArchive(ctx, local, local+archiveSuffix)
	} else {
		content = p.extractor.ExtractContent(ctx, local, kind)
	}
	text := extractor.StripPlaceholders(content.Text)
	ocr := extractor.StripPlaceholders(content.OCR)

	mode := opts.Mode
	if mode == detector.ModeAI && !p.detector.AIAvailable() {
		p.log.Infof("ai detection requested for attachment %d without a classifier, using normal", a.ID)
		mode = detector.ModeNormal
	}

	var description string
	if mode == detector.ModeAI && kind == extractor.KindImage {
		description, err = p.detector.Classifier().DescribeImage(ctx, local)
		if err != nil {
			p.log.Warnf("describe image for attachment %d: %v", a.ID, err)
			description = ""
		}
	}

	res := p.detector.Detect(ctx, mode, joinLines(text, description), joinLines(ocr, description))

	a.TextContent = text
	a.OCRContent = ocr
	a.LLMContent = joinBlocks(description, res.Analysis)
	a.MarkDetection(res.HasIDCard, res.HasPhone)
	processedAt := p.now()
	a.ProcessedAt = &processedAt
	if err := p.store.Save(ctx, a); err != nil {
		return OutcomeFailed, fmt.Errorf("save attachment %d: %w", a.ID, err)
	}
	p.log.Infof("processed attachment %d: ID card=%t, Phone=%t, ext=%s", a.ID, res.HasIDCard, res.HasPhone, ext)

	if opts.AfterCommit != nil {
		p.runAfterCommit(opts.AfterCommit, a)
	}
	return OutcomeProcessed, nil
}

func (p *Processor) runAfterCommit(fn func(*models.Attachment), a *models.Attachment) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("after-commit callback for attachment %d panicked: %v", a.ID, r)
		}
	}()
	fn(a)
}

func joinLines(a, b string) string {
	switch {
	case b == "":
		return a
	case a == "":
		return b
	default:
		return a + "\n" + b
	}
}

func joinBlocks(a, b string) string {
	switch {
	case b == "":
		return a
	case a == "":
		return b
	default:
		return a + "\n\n" + b
	}
}
