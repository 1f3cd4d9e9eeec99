// Package answer turns retrieved passages into natural-language answers and
// cross-document theme syntheses.
package answer

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Answerer produces answers from retrieved passages. Implementations call
// an external language model; the store never depends on this package.
type Answerer interface {
	// Answer answers the question from the given passages, citing sources
	// as (document name, page).
	Answer(ctx context.Context, question string, passages []models.SearchResult) (string, error)
	// Synthesize identifies common themes across per-document answers and
	// produces a combined summary. Sources are always carried through, even
	// when theme extraction fails.
	Synthesize(ctx context.Context, question string, answers []models.DocumentAnswer) (*models.Synthesis, error)
}
