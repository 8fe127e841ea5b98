package extractor

import (
	"fmt"
	"html"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// strictPolicy strips every tag and keeps only text nodes.
var strictPolicy = bluemonday.StrictPolicy()

// extractText reads a plain text file, decoding GB18030 when the bytes are not UTF-8.
func extractText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return decodeLegacy(b), nil
}

// extractHTML returns the visible text of an HTML page.
func extractHTML(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return htmlToText(decodeLegacy(b)), nil
}

func htmlToText(s string) string {
	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// decodeLegacy returns b as UTF-8, decoding it as GB18030 when it is not valid UTF-8.
func decodeLegacy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(out)
}
