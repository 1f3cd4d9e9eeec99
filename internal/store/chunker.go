package store

import "strings"

// SplitText splits raw document text into bounded, semantically coherent
// chunks. It is deterministic and side-effect free.
//
// Lines shorter than minLength after trimming are dropped as noise (headers,
// page artifacts). A surviving line at most maxLength long becomes one chunk.
// Longer lines are re-split on sentence boundaries (". ") and sentences are
// accumulated until adding the next one would exceed maxLength; each flushed
// buffer must still meet minLength. maxLength is a soft target: a single
// sentence longer than maxLength is emitted whole, never truncated.
func SplitText(text string, minLength, maxLength int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		para := strings.TrimSpace(line)
		if len(para) < minLength {
			continue
		}
		if len(para) <= maxLength {
			chunks = append(chunks, para)
			continue
		}
		var buf string
		for _, sent := range strings.Split(para, ". ") {
			if buf != "" && len(buf)+len(sent) > maxLength {
				if len(buf) >= minLength {
					chunks = append(chunks, buf)
				}
				buf = sent
				continue
			}
			if buf == "" {
				buf = sent
			} else {
				buf = buf + ". " + sent
			}
		}
		if buf != "" && len(buf) >= minLength {
			chunks = append(chunks, buf)
		}
	}
	return chunks
}
