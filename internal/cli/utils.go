// Package cli renders API responses for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects how results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, results []models.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, results)
	}
	fmt.Fprintf(w, "\nFound %d results\n\n", len(results))
	for i, res := range results {
		fmt.Fprintf(w, "%d. %s (page %d)  score=%.4f distance=%.4f\n", i+1, res.DocName, res.Page, res.Score, res.Distance)
		fmt.Fprintf(w, "   %s\n\n", utils.Truncate(res.Text, 200))
	}
	return nil
}

// WriteAskResponse writes an ask response to w in the given format.
func WriteAskResponse(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Themes) > 0 {
		fmt.Fprintln(w, "\nThemes:")
		for _, theme := range resp.Themes {
			fmt.Fprintf(w, "  - %s: %s\n", theme.Name, theme.Description)
			for _, doc := range theme.Documents {
				fmt.Fprintf(w, "      %s (page %d)\n", doc.DocName, doc.Page)
			}
		}
	}
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, src := range resp.Sources {
			fmt.Fprintf(w, "  - %s (page %d): %s\n", src.DocName, src.Page, utils.Truncate(src.Passage, 120))
		}
	}
	return nil
}

// WriteDocuments writes registry entries to w in the given format.
func WriteDocuments(w io.Writer, docs []models.DocumentMetadata, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, docs)
	}
	fmt.Fprintf(w, "\n%d documents\n\n", len(docs))
	for _, doc := range docs {
		fmt.Fprintf(w, "%s  %s  pages=%d chunks=%d uploaded=%s\n",
			doc.DocID, doc.Name, doc.PageCount, doc.ChunkCount, doc.UploadTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
