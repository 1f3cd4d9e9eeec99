package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// pptxSlideName matches ppt/slides/slideN.xml and captures N for ordering.
var pptxSlideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>...</a:t> text nodes regardless of attributes.
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractPPTX extracts slide text in slide order, one line per slide, and
// reports the slide count as the page count so citations name real slides.
func extractPPTX(content []byte) (string, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := pptxSlideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var buf strings.Builder
	for _, sl := range slides {
		data, err := readZipFile(zr, sl.name)
		if err != nil {
			return "", 0, fmt.Errorf("extract PPTX: %w", err)
		}
		var parts []string
		for _, m := range atTag.FindAllStringSubmatch(string(data), -1) {
			if t := strings.TrimSpace(m[1]); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			buf.WriteString(strings.Join(parts, " "))
			buf.WriteByte('\n')
		}
	}
	pages := len(slides)
	if pages == 0 {
		pages = 1
	}
	return strings.TrimSpace(buf.String()), pages, nil
}
