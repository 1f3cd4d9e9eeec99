package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as a UTF-8 string with a page count of 1.
// Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(content []byte) (string, int, error) {
	text := string(content)
	if !utf8.Valid(content) {
		text = strings.ToValidUTF8(text, "�")
	}
	return text, 1, nil
}
