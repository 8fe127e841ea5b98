// Package extractor turns cached attachment files into plain text, using OCR where text is not embedded.
package extractor

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// minPDFTextLen is the trimmed text-layer length below which a PDF is also OCR'd.
const minPDFTextLen = 100

// Content is the extraction result stored on an attachment.
type Content struct {
	Text string
	OCR  string
}

// Extractor extracts text from local files. Every failure degrades to an empty string.
type Extractor struct {
	ocr *OCR
	log *zap.SugaredLogger

	// pdfText and pdfOCR are the two PDF strategies; replaced in tests.
	pdfText func(path string) (string, error)
	pdfOCR  func(ctx context.Context, path string) (string, error)
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Extractor) { e.log = l }
}

// New creates an Extractor that uses ocr for images and scanned PDFs.
func New(ocr *OCR, opts ...Option) *Extractor {
	e := &Extractor{
		ocr: ocr,
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pdfText = readPDFText
	e.pdfOCR = e.ocrPDFImages
	return e
}

// OCR returns the OCR handle used by the extractor.
func (e *Extractor) OCR() *OCR { return e.ocr }

// Extract dispatches on the extension of path.
func (e *Extractor) Extract(ctx context.Context, path string) string {
	return e.ExtractAs(ctx, path, KindOfPath(path))
}

// ExtractAs extracts path as the given kind.
func (e *Extractor) ExtractAs(ctx context.Context, path string, kind Kind) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("extract %s (%s) panicked: %v", path, kind, r)
			text = ""
		}
	}()

	var err error
	switch kind {
	case KindPDF:
		text, err = e.extractPDF(ctx, path)
	case KindWord:
		text, err = extractDocx(path)
	case KindSpreadsheet:
		text, err = extractSpreadsheet(path)
	case KindText:
		text, err = extractText(path)
	case KindHTML:
		text, err = extractHTML(path)
	case KindImage:
		text = e.recognize(ctx, path)
	default:
		return ""
	}
	if err != nil {
		e.log.Warnf("extract %s (%s) failed: %v", path, kind, err)
		return ""
	}
	return text
}

// ExtractContent extracts path once and mirrors the text into OCR for OCR-eligible kinds.
func (e *Extractor) ExtractContent(ctx context.Context, path string, kind Kind) Content {
	text := e.ExtractAs(ctx, path, kind)
	c := Content{Text: text}
	if kind.OCREligible() {
		c.OCR = text
	}
	return c
}

func (e *Extractor) recognize(ctx context.Context, path string) string {
	if e.ocr == nil {
		return ""
	}
	return e.ocr.Recognize(ctx, path)
}

// extractPDF prefers the text layer and falls back to OCR for scanned documents.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	text, err := e.pdfText(path)
	if err != nil {
		e.log.Warnf("pdf text layer %s: %v", path, err)
		text = ""
	}
	if len([]rune(strings.TrimSpace(text))) >= minPDFTextLen {
		return text, nil
	}

	ocrText, err := e.pdfOCR(ctx, path)
	if err != nil {
		e.log.Warnf("pdf ocr %s: %v", path, err)
		return text, nil
	}
	if len([]rune(ocrText)) > len([]rune(text)) {
		return ocrText, nil
	}
	return text, nil
}
