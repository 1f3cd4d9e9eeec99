package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DOCX is OOXML: a zip whose main body usually lives at word/document.xml.
// [Content_Types].xml can override that path, so it is consulted first.
const (
	docxDefaultBodyPath  = "word/document.xml"
	docxContentTypesPath = "[Content_Types].xml"
	docxBodyContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// wtTag matches <w:t>...</w:t> text nodes regardless of attributes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// wpClose marks paragraph ends; used to keep paragraph boundaries as newlines
// so the chunker sees them as separate lines.
var wpClose = regexp.MustCompile(`</w:p>`)

// docxOverride extracts the PartName of the main-document override, in
// either attribute order.
var docxOverride = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDOCX extracts all <w:t> text nodes from the document body,
// preserving paragraph boundaries as newlines. DOCX has no fixed pagination,
// so the page count is 1.
func extractDOCX(content []byte) (string, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	bodyPath := findDocxBodyPath(zr)
	body, err := readZipFile(zr, bodyPath)
	if err != nil {
		return "", 0, fmt.Errorf("extract DOCX: %w", err)
	}
	if body == nil {
		return "", 0, fmt.Errorf("extract DOCX: %s not found", bodyPath)
	}
	var buf strings.Builder
	for _, para := range wpClose.Split(string(body), -1) {
		var parts []string
		for _, m := range wtTag.FindAllStringSubmatch(para, -1) {
			if t := strings.TrimSpace(m[1]); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			buf.WriteString(strings.Join(parts, " "))
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String()), 1, nil
}

// findDocxBodyPath resolves the main document path from [Content_Types].xml,
// falling back to the conventional default.
func findDocxBodyPath(zr *zip.Reader) string {
	data, err := readZipFile(zr, docxContentTypesPath)
	if err != nil || data == nil {
		return docxDefaultBodyPath
	}
	for _, re := range docxOverride {
		if m := re.FindStringSubmatch(string(data)); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultBodyPath
}

// readZipFile returns the named file's contents, or nil if absent.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}
