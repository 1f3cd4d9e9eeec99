package embedding

import (
	"context"
	"math"
	"testing"
)

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "The quick brown fox.")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "The quick brown fox.")
	if err != nil {
		t.Fatal(err)
	}
	if d := l2(a, b); d != 0 {
		t.Errorf("same text embedded at distance %f", d)
	}
}

func TestMockEmbedder_Normalized(t *testing.T) {
	e := NewMockEmbedder(64)
	vec, err := e.Embed(context.Background(), "some words to hash into buckets")
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("norm = %f", math.Sqrt(norm))
	}
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewMockEmbedder(128)
	ctx := context.Background()
	base, _ := e.Embed(ctx, "Paris is the capital of France")
	near, _ := e.Embed(ctx, "what is the capital of France")
	far, _ := e.Embed(ctx, "quarterly revenue grew eight percent")
	if l2(base, near) >= l2(base, far) {
		t.Errorf("overlap distance %f not below disjoint distance %f",
			l2(base, near), l2(base, far))
	}
}

func TestMockEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	texts := []string{"first text", "second text"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch = %d", len(batch))
	}
	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		if d := l2(batch[i], single); d != 0 {
			t.Errorf("text %d: batch and single differ by %f", i, d)
		}
	}
}
