// Package store implements the semantic retrieval store: a flat exact
// vector index, the ordered chunk list, and the document registry, kept in
// lockstep and persisted as one unit.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Options configures a Store.
type Options struct {
	// Dir is the snapshot directory. Empty disables persistence (tests).
	Dir string
	// MinChunkLength and MaxChunkLength bound chunk sizes in characters.
	MinChunkLength int
	MaxChunkLength int
}

// Store owns the (index, chunks, registry) triple. One RWMutex guards the
// triple: ingest, delete, and reindex take it exclusively; search and reads
// take it shared, so readers see either the pre- or post-mutation state,
// never a partial one.
type Store struct {
	mu       sync.RWMutex
	index    *vector.FlatIndex
	chunks   []models.Chunk
	docs     map[string]models.DocumentMetadata
	embedder embedding.Embedder
	opts     Options
	logger   *zap.Logger
}

// New creates a store backed by the given embedder and restores the last
// snapshot from opts.Dir. An unreadable snapshot degrades to an empty store.
func New(opts Options, embedder embedding.Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinChunkLength <= 0 {
		opts.MinChunkLength = 20
	}
	if opts.MaxChunkLength <= 0 {
		opts.MaxChunkLength = 500
	}
	idx, err := vector.NewFlatIndex(embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	s := &Store{
		index:    idx,
		chunks:   make([]models.Chunk, 0),
		docs:     make(map[string]models.DocumentMetadata),
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
	s.loadLocked()
	return s, nil
}

// IngestDocument chunks, embeds, and indexes a document. It returns false
// when the text yields no indexable chunks (all noise or empty); that is
// not an error. Re-ingesting an existing doc id appends its new chunks and
// overwrites the registry entry.
//
// Embedding happens before any mutation; if it fails, no chunk records,
// vectors, or registry entry exist afterwards. The three-way update runs
// under the write lock as one step.
func (s *Store) IngestDocument(ctx context.Context, docID, docName, text string, pageCount int) (bool, error) {
	if pageCount < 1 {
		pageCount = 1
	}
	texts := SplitText(text, s.opts.MinChunkLength, s.opts.MaxChunkLength)
	if len(texts) == 0 {
		s.logger.Warn("no indexable content", zap.String("doc_id", docID))
		return false, nil
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("embed document %s: %w", docID, err)
	}
	if len(vectors) != len(texts) {
		return false, fmt.Errorf("embed document %s: got %d vectors for %d chunks: %w",
			docID, len(vectors), len(texts), embedding.ErrEmbedding)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.index.Add(vectors)
	if err != nil {
		return false, fmt.Errorf("index document %s: %w", docID, err)
	}
	for i, t := range texts {
		s.chunks = append(s.chunks, models.Chunk{
			ChunkID:     len(s.chunks),
			EmbeddingID: ids[i],
			DocID:       docID,
			DocName:     docName,
			Text:        t,
			Page:        (i % pageCount) + 1,
		})
	}
	s.docs[docID] = models.DocumentMetadata{
		DocID:      docID,
		Name:       docName,
		UploadTime: time.Now().UTC(),
		PageCount:  pageCount,
		ChunkCount: len(texts),
	}
	s.persistLocked()
	s.logger.Info("document ingested",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(texts)),
		zap.Int("index_size", s.index.Size()),
	)
	return true, nil
}

// Search embeds the query and returns up to topK chunks ordered by
// ascending L2 distance. docFilter, when non-empty, restricts results to
// the given doc ids. An empty store returns no results and no error.
func (s *Store) Search(ctx context.Context, query string, topK int, docFilter map[string]bool) ([]models.SearchResult, error) {
	if s.Size() == 0 {
		return nil, nil
	}
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.index.Search(qv, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.ID >= len(s.chunks) {
			continue
		}
		c := s.chunks[h.ID]
		if len(docFilter) > 0 && !docFilter[c.DocID] {
			continue
		}
		results = append(results, models.SearchResult{
			DocID:    c.DocID,
			DocName:  c.DocName,
			Text:     c.Text,
			Page:     c.Page,
			Score:    1 - h.Distance,
			Distance: h.Distance,
		})
	}
	return results, nil
}

// DeleteDocument removes a document's chunks, vectors, and registry entry.
// It returns false when the doc id is unknown or has no chunks. The index
// is rebuilt from a keep-mask over the reconstructed vectors and every
// surviving chunk's embedding id is renumbered to its new dense position
// under the same relative order, so the id->vector mapping stays exact.
func (s *Store) DeleteDocument(docID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[docID]; !ok {
		return false, nil
	}
	drop := make(map[int]bool)
	for _, c := range s.chunks {
		if c.DocID == docID {
			drop[c.EmbeddingID] = true
		}
	}
	if len(drop) == 0 {
		return false, nil
	}

	all := s.index.ReconstructAll()
	kept := make([][]float32, 0, len(all)-len(drop))
	for id, vec := range all {
		if !drop[id] {
			kept = append(kept, vec)
		}
	}
	if err := s.index.RebuildFrom(kept); err != nil {
		return false, fmt.Errorf("rebuild index: %w", err)
	}

	// Surviving chunks keep their relative order, which is also the order
	// the kept vectors entered the rebuilt index, so renumbering by position
	// is consistent with the keep-mask above.
	remaining := make([]models.Chunk, 0, len(s.chunks)-len(drop))
	for _, c := range s.chunks {
		if c.DocID == docID {
			continue
		}
		c.EmbeddingID = len(remaining)
		remaining = append(remaining, c)
	}
	s.chunks = remaining
	delete(s.docs, docID)
	s.persistLocked()
	s.logger.Info("document deleted",
		zap.String("doc_id", docID),
		zap.Int("removed_chunks", len(drop)),
		zap.Int("index_size", s.index.Size()),
	)
	return true, nil
}

// DocumentChunks returns the document's chunks in insertion order.
func (s *Store) DocumentChunks(docID string) []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Chunk
	for _, c := range s.chunks {
		if c.DocID == docID {
			out = append(out, c)
		}
	}
	return out
}

// Documents returns registry entries sorted by upload time, newest first.
func (s *Store) Documents() []models.DocumentMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DocumentMetadata, 0, len(s.docs))
	for _, meta := range s.docs {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadTime.Equal(out[j].UploadTime) {
			return out[i].UploadTime.After(out[j].UploadTime)
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// Reset discards all documents, chunks, and vectors, and persists the empty
// state. Used by reindexing.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.persistLocked()
}

// Size returns the number of indexed vectors.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// ChunkCount returns the number of stored chunk records.
func (s *Store) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// DocumentCount returns the number of registered documents.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close takes a final snapshot. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	return nil
}
