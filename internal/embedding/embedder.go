// Package embedding provides text embedding backends and caching.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when the encoder is unavailable or produced
// malformed output. Callers retry with backoff outside the store; the store
// never retries internally.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces fixed-dimension vector embeddings for text.
// EmbedBatch preserves input order. Implementations may be slow; callers
// bound latency through ctx.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
