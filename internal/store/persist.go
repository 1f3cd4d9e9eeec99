package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Snapshot file names inside the store directory. The three artifacts are
// co-versioned: they are always written together and read together.
const (
	indexFile    = "vectors.idx"
	chunksFile   = "chunks.json"
	registryFile = "documents.json"
)

// saveLocked snapshots the triple to disk. Callers hold the write lock (or
// are otherwise sole owners). A failure leaves the in-memory state
// authoritative; callers log and continue serving.
func (s *Store) saveLocked() error {
	if s.opts.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.opts.Dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := s.index.Save(filepath.Join(s.opts.Dir, indexFile)); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := writeJSON(filepath.Join(s.opts.Dir, chunksFile), s.chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	if err := writeJSON(filepath.Join(s.opts.Dir, registryFile), s.docs); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// persistLocked runs saveLocked and downgrades any failure to a warning.
// Invoked after every successful mutation.
func (s *Store) persistLocked() {
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("snapshot failed, store keeps serving from memory", zap.Error(err))
	}
}

// loadLocked restores the triple from disk. Any read or parse failure resets
// all three structures to empty and logs a warning: corruption degrades to
// a fresh store, it never aborts startup. Missing files mean a fresh store.
func (s *Store) loadLocked() {
	if s.opts.Dir == "" {
		return
	}
	err := func() error {
		if err := s.index.Load(filepath.Join(s.opts.Dir, indexFile)); err != nil {
			return fmt.Errorf("load index: %w", err)
		}
		chunks := make([]models.Chunk, 0)
		if err := readJSON(filepath.Join(s.opts.Dir, chunksFile), &chunks); err != nil {
			return fmt.Errorf("load chunks: %w", err)
		}
		docs := make(map[string]models.DocumentMetadata)
		if err := readJSON(filepath.Join(s.opts.Dir, registryFile), &docs); err != nil {
			return fmt.Errorf("load registry: %w", err)
		}
		if len(chunks) != s.index.Size() {
			return fmt.Errorf("chunk count %d does not match index size %d", len(chunks), s.index.Size())
		}
		s.chunks = chunks
		s.docs = docs
		return nil
	}()
	if err != nil {
		s.logger.Warn("snapshot unreadable, starting with empty store", zap.Error(err))
		s.resetLocked()
		return
	}
	s.logger.Info("store loaded",
		zap.Int("vectors", s.index.Size()),
		zap.Int("chunks", len(s.chunks)),
		zap.Int("documents", len(s.docs)),
	)
}

// resetLocked discards all three structures.
func (s *Store) resetLocked() {
	_ = s.index.RebuildFrom(nil)
	s.chunks = make([]models.Chunk, 0)
	s.docs = make(map[string]models.DocumentMetadata)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// readJSON decodes path into v. A missing file leaves v unchanged.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}
