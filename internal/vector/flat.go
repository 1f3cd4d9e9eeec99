// Package vector provides a flat exact nearest-neighbor index over L2 distance.
package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length does not match the
// index dimension. It indicates a configuration or programming error and is
// never silently coerced.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a single search result: the vector's dense id and its L2 distance
// to the query.
type Hit struct {
	ID       int
	Distance float64
}

// FlatIndex is a flat exact index: every vector is stored and every query
// scans all of them. Ids are dense positions 0..Size()-1, assigned in
// insertion order. There is no in-place delete; removal goes through
// ReconstructAll + RebuildFrom.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends vectors in order and returns their assigned ids
// (oldSize..oldSize+len-1). All dimensions are validated before anything is
// appended, so a failed Add leaves the index unchanged.
func (x *FlatIndex) Add(vectors [][]float32) ([]int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, v := range vectors {
		if len(v) != x.dimensions {
			return nil, fmt.Errorf("add vector %d: got %d, expected %d: %w", i, len(v), x.dimensions, ErrDimensionMismatch)
		}
	}
	ids := make([]int, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, x.dimensions)
		copy(vec, v)
		ids[i] = len(x.vectors)
		x.vectors = append(x.vectors, vec)
	}
	return ids, nil
}

// Search returns up to k hits ordered by ascending L2 distance, ties broken
// by lower id so earlier insertions win deterministically. An empty index
// returns no hits and no error.
func (x *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query: got %d, expected %d: %w", len(query), x.dimensions, ErrDimensionMismatch)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(x.vectors))
	for i, vec := range x.vectors {
		hits[i] = Hit{ID: i, Distance: l2Distance(query, vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// ReconstructAll returns a copy of every stored vector in id order.
func (x *FlatIndex) ReconstructAll() [][]float32 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([][]float32, len(x.vectors))
	for i, v := range x.vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		out[i] = vec
	}
	return out
}

// RebuildFrom replaces the index contents wholesale. New ids are assigned
// densely from 0 in the given order. This is the only removal path.
func (x *FlatIndex) RebuildFrom(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != x.dimensions {
			return fmt.Errorf("rebuild vector %d: got %d, expected %d: %w", i, len(v), x.dimensions, ErrDimensionMismatch)
		}
	}
	replacement := make([][]float32, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, x.dimensions)
		copy(vec, v)
		replacement[i] = vec
	}
	x.mu.Lock()
	x.vectors = replacement
	x.mu.Unlock()
	return nil
}

// Size returns the number of stored vectors.
func (x *FlatIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimensions returns the fixed vector dimension.
func (x *FlatIndex) Dimensions() int {
	return x.dimensions
}

// Save persists the index to path. Directory is created if needed.
// Format: dimension (4), n (4), then n vectors of dimension*4 bytes,
// little-endian float32.
func (x *FlatIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(x.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, vec := range x.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. A missing file is not an error and leaves the
// index unchanged.
func (x *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != x.dimensions {
		return fmt.Errorf("file has %d, index expects %d: %w", dim, x.dimensions, ErrDimensionMismatch)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, x.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	x.mu.Lock()
	x.vectors = vectors
	x.mu.Unlock()
	return nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
