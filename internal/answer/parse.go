package answer

import (
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	themesHeader    = "THEMES:"
	synthesisHeader = "SYNTHESIZED ANSWER:"
)

// parseSynthesis parses the model's themed reply. The format is the strict
// one requested in the synthesis prompt; anything malformed is skipped
// rather than failing, and the original sources are always preserved.
func parseSynthesis(text string, sources []models.DocumentAnswer) *models.Synthesis {
	result := &models.Synthesis{
		Themes:  []models.Theme{},
		Sources: sources,
	}

	themeText := text
	if i := strings.Index(text, synthesisHeader); i >= 0 {
		themeText = text[:i]
		result.Answer = strings.TrimSpace(text[i+len(synthesisHeader):])
	} else {
		result.Answer = "Could not extract answer."
	}
	if i := strings.Index(themeText, themesHeader); i >= 0 {
		themeText = themeText[i+len(themesHeader):]
	}

	for _, block := range strings.Split(strings.TrimSpace(themeText), "\n\n") {
		lines := splitNonEmptyLines(block)
		if len(lines) < 3 {
			continue
		}
		theme := models.Theme{
			Name:        strings.TrimSpace(strings.TrimLeft(lines[0], "0123456789.- ")),
			Description: strings.TrimSpace(strings.TrimLeft(lines[1], "- ")),
			Documents:   []models.DocumentRef{},
		}
		for _, line := range lines {
			i := strings.Index(line, "Documents:")
			if i < 0 {
				continue
			}
			for _, field := range strings.Split(line[i+len("Documents:"):], ",") {
				n, err := strconv.Atoi(strings.TrimSpace(field))
				if err != nil || n < 1 || n > len(sources) {
					continue
				}
				src := sources[n-1]
				theme.Documents = append(theme.Documents, models.DocumentRef{
					DocID:   src.DocID,
					DocName: src.DocName,
					Page:    src.Page,
				})
			}
			break
		}
		if theme.Name != "" {
			result.Themes = append(result.Themes, theme)
		}
	}
	return result
}

func splitNonEmptyLines(block string) []string {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
