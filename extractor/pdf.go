package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// readPDFText returns the embedded text layer of a PDF.
func readPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}

// ocrPDFImages extracts every embedded page image with pdfcpu and OCRs them in page order.
func (e *Extractor) ocrPDFImages(ctx context.Context, path string) (string, error) {
	if e.ocr == nil {
		return "", nil
	}
	dir, err := os.MkdirTemp("", "attachguard-pdf-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ExtractImagesFile(path, dir, nil, conf); err != nil {
		return "", fmt.Errorf("extract pdf images: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list pdf images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return strings.Join(parts, "\n"), err
		}
		parts = append(parts, StripPlaceholders(e.ocr.Recognize(ctx, filepath.Join(dir, name))))
	}
	return strings.Join(parts, "\n"), nil
}
