package models

// SearchResult is a single retrieved chunk with its ranking scores.
// Score is 1 - L2 distance: monotonic in distance, unbounded below, and not
// a calibrated similarity or probability. Use Distance for the raw metric.
type SearchResult struct {
	DocID    string  `json:"doc_id"`
	DocName  string  `json:"doc_name"`
	Text     string  `json:"text"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// DocumentAnswer is one passage answered in isolation, carried into theme
// synthesis and returned as a source.
type DocumentAnswer struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Page    int    `json:"page"`
	Passage string `json:"passage"`
	Answer  string `json:"answer"`
}

// DocumentRef points a theme at a contributing document passage.
type DocumentRef struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Page    int    `json:"page"`
}

// Theme is one common thread identified across per-document answers.
type Theme struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Documents   []DocumentRef `json:"documents"`
}

// Synthesis is the combined answer across all retrieved passages.
type Synthesis struct {
	Answer  string           `json:"synthesized_answer"`
	Themes  []Theme          `json:"themes"`
	Sources []DocumentAnswer `json:"sources"`
}

// AskResponse is the response body for the ask endpoint.
type AskResponse struct {
	Answer  string           `json:"synthesized_answer"`
	Themes  []Theme          `json:"themes"`
	Sources []DocumentAnswer `json:"sources"`
}
