package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/nwaples/rardecode/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrUnsupportedArchive is returned for archive extensions other than zip and rar.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// Expand unpacks a zip or rar archive into destDir, keeping the member layout.
// Members that would land outside destDir are skipped. Partial output is left on failure.
func Expand(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip":
		return expandZip(archivePath, destDir)
	case ".rar":
		return expandRar(archivePath, destDir)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Ext(archivePath))
	}
}

func expandZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := f.Name
		if f.NonUTF8 {
			name = decodeMemberName(name)
		}
		target, ok := memberPath(destDir, name)
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open member %s: %w", name, err)
		}
		err = writeMember(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func expandRar(archivePath, destDir string) error {
	rr, err := rardecode.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open rar: %w", err)
	}
	defer rr.Close()

	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rar: %w", err)
		}
		target, ok := memberPath(destDir, hdr.Name)
		if !ok {
			continue
		}
		if hdr.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeMember(target, rr); err != nil {
			return err
		}
	}
}

// memberPath joins name under destDir and rejects entries that escape it.
func memberPath(destDir, name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func writeMember(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

func decodeMemberName(name string) string {
	out, err := simplifiedchinese.GB18030.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return out
}

// ExtractArchive expands archivePath into destDir unless destDir already exists, then extracts
// every member in lexical order. Text collects all members; OCR only OCR-eligible ones.
func (e *Extractor) ExtractArchive(ctx context.Context, archivePath, destDir string) Content {
	if _, err := os.Stat(destDir); errors.Is(err, fs.ErrNotExist) {
		if err := Expand(archivePath, destDir); err != nil {
			e.log.Warnf("expand archive %s: %v", archivePath, err)
		}
	}

	var members []string
	err := filepath.WalkDir(destDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			members = append(members, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.log.Warnf("walk %s: %v", destDir, err)
	}
	sort.Strings(members)

	var texts, ocrs []string
	for _, m := range members {
		if ctx.Err() != nil {
			break
		}
		kind := KindOfPath(m)
		text := e.ExtractAs(ctx, m, kind)
		texts = append(texts, text)
		if kind.OCREligible() {
			ocrs = append(ocrs, text)
		}
	}
	return Content{Text: strings.Join(texts, "\n"), OCR: strings.Join(ocrs, "\n")}
}
