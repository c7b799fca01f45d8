package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads the Office Open XML word/document.xml part and
// concatenates every <w:t> text run, separating paragraphs with newlines.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	f, err := findZipFile(zr, "word/document.xml")
	if err != nil {
		return "", err
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return extractWordXMLText(rc)
}

// wordXMLElem is a generic WordprocessingML element: its name and its
// character data.
type wordXMLElem struct {
	XMLName xml.Name
	Chardata string `xml:",chardata"`
}

func extractWordXMLText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var text string
				if err := dec.DecodeElement(&text, &el); err != nil {
					return "", fmt.Errorf("decode text run: %w", err)
				}
				sb.WriteString(text)
			} else if el.Name.Local == "p" {
				// handled on end to avoid double newlines for self-closing <w:p/>
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

// extractXLSX reads every worksheet's shared-string-resolved cell text,
// joining rows with newlines and cells with tabs.
func extractXLSX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open xlsx archive: %w", err)
	}

	sharedStrings, err := readSharedStrings(zr)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "xl/worksheets/sheet") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		text, err := extractSheetText(rc, sharedStrings)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), nil
}

type sheetXMLCell struct {
	Type  string `xml:"t,attr"`
	Value string `xml:"v"`
}

type sheetXMLRow struct {
	Cells []sheetXMLCell `xml:"c"`
}

type sheetXML struct {
	Rows []sheetXMLRow `xml:"sheetData>row"`
}

func extractSheetText(r io.Reader, sharedStrings []string) (string, error) {
	var sheet sheetXML
	if err := xml.NewDecoder(r).Decode(&sheet); err != nil {
		return "", fmt.Errorf("decode sheet xml: %w", err)
	}

	var sb strings.Builder
	for _, row := range sheet.Rows {
		var cells []string
		for _, c := range row.Cells {
			if c.Value == "" {
				cells = append(cells, "")
				continue
			}
			if c.Type == "s" {
				idx := 0
				fmt.Sscanf(c.Value, "%d", &idx)
				if idx >= 0 && idx < len(sharedStrings) {
					cells = append(cells, sharedStrings[idx])
					continue
				}
			}
			cells = append(cells, c.Value)
		}
		sb.WriteString(strings.Join(cells, "\t"))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

type sharedStringsXML struct {
	Items []struct {
		Text string `xml:"t"`
	} `xml:"si"`
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	f, err := findZipFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		// Not every workbook has inline strings only; absence is fine.
		return nil, nil //nolint:nilerr
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open sharedStrings.xml: %w", err)
	}
	defer rc.Close()

	var parsed sharedStringsXML
	if err := xml.NewDecoder(rc).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode sharedStrings.xml: %w", err)
	}

	out := make([]string, len(parsed.Items))
	for i, it := range parsed.Items {
		out[i] = it.Text
	}
	return out, nil
}

func findZipFile(zr *zip.Reader, name string) (*zip.File, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
