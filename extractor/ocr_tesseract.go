package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractEngine shells out to the tesseract binary.
type TesseractEngine struct {
	bin  string
	lang string
}

// NewTesseractEngine uses bin (default "tesseract") with lang (default "chi_sim+eng").
func NewTesseractEngine(bin, lang string) *TesseractEngine {
	if bin == "" {
		bin = "tesseract"
	}
	if lang == "" {
		lang = "chi_sim+eng"
	}
	return &TesseractEngine{bin: bin, lang: lang}
}

func (t *TesseractEngine) Name() string { return EngineTesseract }

// Probe checks the binary is on PATH.
func (t *TesseractEngine) Probe(ctx context.Context) error {
	path, err := exec.LookPath(t.bin)
	if err != nil {
		return fmt.Errorf("tesseract binary %q not found: %w", t.bin, err)
	}
	t.bin = path
	return nil
}

func (t *TesseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.bin, imagePath, "stdout", "-l", t.lang)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
