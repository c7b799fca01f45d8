package loader

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// extractPDF pulls the literal and hex strings a PDF content stream draws
// with the Tj/TJ text-showing operators, ignoring layout, fonts, and any
// encoding beyond the PDFDocEncoding/Latin-1 fallback extractText already
// uses elsewhere in this package. It does not follow xref tables. Each
// stream is first inflated as FlateDecode with compress/zlib; when that
// fails it falls back to scanning the raw bytes so uncompressed streams
// (common in PDFs produced by simple writers) still extract. No PDF parsing library exists anywhere in the retrieval pack;
// this is the documented stdlib-only gap recorded in DESIGN.md.
func extractPDF(content []byte) (string, error) {
	streams := findContentStreams(content)
	if len(streams) == 0 {
		return "", fmt.Errorf("no content streams found")
	}

	var buf bytes.Buffer
	for _, stream := range streams {
		text := extractTextOperators(stream)
		if text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
	}

	if buf.Len() == 0 {
		return "", fmt.Errorf("no extractable text operators")
	}
	return buf.String(), nil
}

var streamRe = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)

// findContentStreams extracts the bytes between every stream/endstream
// pair, attempting flate inflation and falling back to the raw bytes when
// inflation fails (the stream is already plain text, or uses a filter this
// loader does not understand).
func findContentStreams(content []byte) [][]byte {
	matches := streamRe.FindAllSubmatch(content, -1)
	streams := make([][]byte, 0, len(matches))
	for _, m := range matches {
		raw := m[1]
		if inflated, ok := inflateStream(raw); ok {
			streams = append(streams, inflated)
			continue
		}
		streams = append(streams, raw)
	}
	return streams
}

// inflateStream attempts zlib (FlateDecode) decompression, the only PDF
// stream filter this loader understands; ok is false for any other filter
// (DCTDecode images, CCITTFax, already-plain text) so the caller falls back
// to scanning the stream's raw bytes.
func inflateStream(raw []byte) ([]byte, bool) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

var (
	literalRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	arrayRe   = regexp.MustCompile(`\[((?:[^\[\]]|\\.)*)\]\s*TJ`)
	hexRe     = regexp.MustCompile(`<([0-9A-Fa-f]+)>\s*Tj`)
	arrItemRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

// extractTextOperators scans one (already-decompressed) content stream for
// Tj and TJ text-showing operators and concatenates the strings they draw:
// first every literal Tj, then every hex Tj, then every TJ array (whose
// elements are joined with no separator), with a space after each
// operator's text. ET (end of a text object) is not recognized, and the
// strings are not kept in their order within the stream.
func extractTextOperators(stream []byte) string {
	var buf bytes.Buffer

	for _, m := range literalRe.FindAllSubmatch(stream, -1) {
		buf.WriteString(unescapePDFString(m[1]))
		buf.WriteByte(' ')
	}
	for _, m := range hexRe.FindAllSubmatch(stream, -1) {
		buf.WriteString(decodePDFHexString(m[1]))
		buf.WriteByte(' ')
	}
	for _, m := range arrayRe.FindAllSubmatch(stream, -1) {
		for _, item := range arrItemRe.FindAllSubmatch(m[1], -1) {
			buf.WriteString(unescapePDFString(item[1]))
		}
		buf.WriteByte(' ')
	}

	return buf.String()
}

func unescapePDFString(raw []byte) string {
	var out bytes.Buffer
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i == len(raw)-1 {
			out.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 't':
			out.WriteByte('\t')
		case '(', ')', '\\':
			out.WriteByte(raw[i])
		default:
			out.WriteByte(raw[i])
		}
	}
	return out.String()
}

func decodePDFHexString(hex []byte) string {
	if len(hex)%2 != 0 {
		hex = hex[:len(hex)-1]
	}
	runes := make([]rune, 0, len(hex)/2)
	for i := 0; i+1 < len(hex); i += 2 {
		v, err := strconv.ParseUint(string(hex[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		runes = append(runes, rune(v))
	}
	return string(runes)
}
