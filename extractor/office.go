package extractor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"
)

var errNoDocumentXML = errors.New("word/document.xml not found")

// extractDocx returns the paragraphs of word/document.xml joined by newlines.
func extractDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		return docxParagraphs(rc)
	}
	return "", errNoDocumentXML
}

// docxParagraphs walks the WordprocessingML token stream collecting w:t runs per w:p.
// Tabs and breaks count only inside a run; w:tab in paragraph properties is a tab stop.
func docxParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		paras  []string
		cur    strings.Builder
		inText bool
		runs   int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "r":
				runs++
			case "t":
				inText = true
			case "tab":
				if runs > 0 {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if runs > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				if runs > 0 {
					runs--
				}
			case "t":
				inText = false
			case "p":
				paras = append(paras, cur.String())
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	if cur.Len() > 0 {
		paras = append(paras, cur.String())
	}
	return strings.Join(paras, "\n"), nil
}

// extractSpreadsheet renders every row of every sheet as space-joined cells, one row per line.
func extractSpreadsheet(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			sb.WriteString(strings.Join(row, " "))
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
