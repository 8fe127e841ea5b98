package extractor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	EnginePaddle    = "paddle"
	EngineTesseract = "tesseract"
)

const (
	paddleUnavailablePrefix    = "PaddleOCR not available - "
	tesseractUnavailablePrefix = "Tesseract not available - "
	unsupportedEnginePrefix    = "Unsupported OCR engine: "
)

// Engine recognises text in a single raster image.
type Engine interface {
	Name() string
	// Probe checks that the engine can serve requests.
	Probe(ctx context.Context) error
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// OCRConfig selects and configures the OCR engine.
type OCRConfig struct {
	Engine        string
	PaddleURL     string
	TesseractPath string
	TesseractLang string
	Timeout       time.Duration
}

// OCR is a lazily initialised, process-wide OCR capability.
// A failed probe makes it permanently unavailable and Recognize then returns a placeholder.
type OCR struct {
	name    string
	factory func() (Engine, error)
	log     *zap.SugaredLogger

	once    sync.Once
	engine  Engine
	initErr error
}

// NewOCR builds the capability for cfg.Engine. Nothing is probed until first use.
func NewOCR(cfg OCRConfig, log *zap.SugaredLogger) *OCR {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Engine))
	o := &OCR{name: name, log: log}
	o.factory = func() (Engine, error) {
		switch name {
		case EnginePaddle:
			return NewPaddleEngine(cfg.PaddleURL, cfg.Timeout), nil
		case EngineTesseract:
			return NewTesseractEngine(cfg.TesseractPath, cfg.TesseractLang), nil
		default:
			return nil, fmt.Errorf("unsupported engine %q", cfg.Engine)
		}
	}
	return o
}

// NewOCRWithEngine wraps an already constructed engine.
func NewOCRWithEngine(engine Engine, log *zap.SugaredLogger) *OCR {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OCR{
		name:    engine.Name(),
		factory: func() (Engine, error) { return engine, nil },
		log:     log,
	}
}

func (o *OCR) init(ctx context.Context) {
	o.once.Do(func() {
		engine, err := o.factory()
		if err == nil {
			err = engine.Probe(ctx)
		}
		if err != nil {
			o.initErr = err
			ocrRequestsTotal.WithLabelValues(o.name, "unavailable").Inc()
			o.log.Warnf("ocr engine %q unavailable: %v", o.name, err)
			return
		}
		o.engine = engine
		o.log.Infof("ocr engine %q ready", o.name)
	})
}

// Available reports whether the engine initialised successfully.
func (o *OCR) Available(ctx context.Context) bool {
	o.init(ctx)
	return o.engine != nil
}

// Recognize returns the text in imagePath, a placeholder when the engine is unavailable,
// or "" when recognition fails.
func (o *OCR) Recognize(ctx context.Context, imagePath string) string {
	o.init(ctx)
	if o.engine == nil {
		return o.placeholder()
	}
	text, err := o.engine.Recognize(ctx, imagePath)
	if err != nil {
		ocrRequestsTotal.WithLabelValues(o.name, "error").Inc()
		o.log.Warnf("ocr %s on %s failed: %v", o.name, imagePath, err)
		return ""
	}
	ocrRequestsTotal.WithLabelValues(o.name, "ok").Inc()
	return text
}

func (o *OCR) placeholder() string {
	reason := "initialisation failed"
	if o.initErr != nil {
		reason = o.initErr.Error()
	}
	switch o.name {
	case EnginePaddle:
		return paddleUnavailablePrefix + reason
	case EngineTesseract:
		return tesseractUnavailablePrefix + reason
	default:
		return unsupportedEnginePrefix + o.name
	}
}

// IsPlaceholder reports whether line is an unavailable-engine placeholder.
func IsPlaceholder(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, paddleUnavailablePrefix) ||
		strings.HasPrefix(line, tesseractUnavailablePrefix) ||
		strings.HasPrefix(line, unsupportedEnginePrefix)
}

// StripPlaceholders drops placeholder lines from text.
func StripPlaceholders(text string) string {
	if !strings.Contains(text, paddleUnavailablePrefix) &&
		!strings.Contains(text, tesseractUnavailablePrefix) &&
		!strings.Contains(text, unsupportedEnginePrefix) {
		return text
	}
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if !IsPlaceholder(l) {
			out = append(out, l)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
