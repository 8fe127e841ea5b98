package extractor

import (
	"path/filepath"
	"strings"
)

// Kind is the closed set of content formats the extractor understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindWord
	KindSpreadsheet
	KindText
	KindHTML
	KindImage
	KindArchive
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindPDF:         "pdf",
	KindWord:        "word",
	KindSpreadsheet: "spreadsheet",
	KindText:        "text",
	KindHTML:        "html",
	KindImage:       "image",
	KindArchive:     "archive",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// OCREligible reports whether OCR output is recorded for this kind.
func (k Kind) OCREligible() bool {
	return k == KindImage || k == KindPDF
}

// KindOf maps a file extension, with or without the leading dot, to its Kind.
func KindOf(ext string) Kind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return KindPDF
	case "docx":
		return KindWord
	case "xlsx", "xls":
		return KindSpreadsheet
	case "txt":
		return KindText
	case "html", "htm":
		return KindHTML
	case "jpg", "jpeg", "png", "bmp", "gif", "tif", "tiff":
		return KindImage
	case "zip", "rar":
		return KindArchive
	default:
		return KindUnknown
	}
}

// KindOfPath is KindOf applied to the extension of p.
func KindOfPath(p string) Kind {
	return KindOf(filepath.Ext(p))
}
