// Package models defines core data structures for chunks, documents, and answers.
package models

import "time"

// Chunk is a bounded unit of document text stored with its pointer into the
// vector index. EmbeddingID is the dense zero-based position of the chunk's
// vector in the index; after any delete it always equals the chunk's position
// in the store's chunk list.
type Chunk struct {
	// ChunkID is the chunk's ordinal position in the store at insertion time.
	ChunkID int `json:"chunk_id"`
	// EmbeddingID is the chunk's position in the vector index.
	EmbeddingID int    `json:"embedding_id"`
	DocID       string `json:"doc_id"`
	DocName     string `json:"doc_name"`
	Text        string `json:"text"`
	// Page is an estimate derived from chunk position and the document's
	// page count, not true per-chunk provenance.
	Page int `json:"page"`
}

// DocumentMetadata is the registry entry for an ingested document.
// Re-ingesting the same doc id overwrites the entry wholesale.
type DocumentMetadata struct {
	DocID      string    `json:"doc_id"`
	Name       string    `json:"name"`
	UploadTime time.Time `json:"upload_time"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
}
