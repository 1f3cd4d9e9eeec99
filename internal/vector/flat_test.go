package vector

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFlatIndex_AddAssignsDenseIDs(t *testing.T) {
	idx, err := NewFlatIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := idx.Add([][]float32{{1, 0, 0}, {0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Errorf("ids = %v", ids)
	}
	ids, err = idx.Add([][]float32{{0, 0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != 2 {
		t.Errorf("second add ids = %v", ids)
	}
	if idx.Size() != 3 {
		t.Errorf("Size = %d", idx.Size())
	}
}

func TestFlatIndex_AddDimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if _, err := idx.Add([][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	_, err := idx.Add([][]float32{{0, 1}, {1, 2, 3}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("failed add mutated index: Size = %d", idx.Size())
	}
}

func TestFlatIndex_SearchOrdersByDistance(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if _, err := idx.Add([][]float32{{0, 1}, {1, 0}, {0.9, 0.1}}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != 1 {
		t.Errorf("nearest should be id 1, got %d", hits[0].ID)
	}
	if hits[0].Distance != 0 {
		t.Errorf("exact match distance = %f", hits[0].Distance)
	}
	if hits[1].ID != 2 {
		t.Errorf("second should be id 2, got %d", hits[1].ID)
	}
}

func TestFlatIndex_SearchTiesBreakByLowerID(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	// Two identical vectors: the earlier insertion must win.
	if _, err := idx.Add([][]float32{{0.5, 0.5}, {0.5, 0.5}}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != 0 || hits[1].ID != 1 {
		t.Errorf("tie order = %d, %d", hits[0].ID, hits[1].ID)
	}
}

func TestFlatIndex_SearchEmptyIndex(t *testing.T) {
	idx, _ := NewFlatIndex(4)
	hits, err := idx.Search([]float32{0, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("empty index search should not error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestFlatIndex_SearchQueryDimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(3)
	_, err := idx.Search([]float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFlatIndex_ReconstructAllReturnsCopies(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if _, err := idx.Add([][]float32{{1, 2}, {3, 4}}); err != nil {
		t.Fatal(err)
	}
	all := idx.ReconstructAll()
	if len(all) != 2 || all[1][0] != 3 {
		t.Fatalf("ReconstructAll = %v", all)
	}
	all[0][0] = 99
	again := idx.ReconstructAll()
	if again[0][0] != 1 {
		t.Error("ReconstructAll aliases internal storage")
	}
}

func TestFlatIndex_RebuildFromRenumbersDensely(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if _, err := idx.Add([][]float32{{1, 0}, {0, 1}, {1, 1}}); err != nil {
		t.Fatal(err)
	}
	all := idx.ReconstructAll()
	// Keep vectors 0 and 2, preserving relative order.
	if err := idx.RebuildFrom([][]float32{all[0], all[2]}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Fatalf("Size after rebuild = %d", idx.Size())
	}
	rebuilt := idx.ReconstructAll()
	if rebuilt[0][0] != 1 || rebuilt[0][1] != 0 {
		t.Errorf("id 0 after rebuild = %v", rebuilt[0])
	}
	if rebuilt[1][0] != 1 || rebuilt[1][1] != 1 {
		t.Errorf("id 1 after rebuild = %v", rebuilt[1])
	}
}

func TestFlatIndex_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")
	idx, _ := NewFlatIndex(3)
	if _, err := idx.Add([][]float32{{1, 2, 3}, {4, 5, 6}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewFlatIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded Size = %d", loaded.Size())
	}
	all := loaded.ReconstructAll()
	for i, want := range [][]float32{{1, 2, 3}, {4, 5, 6}} {
		for j := range want {
			if all[i][j] != want[j] {
				t.Errorf("vector %d = %v, want %v", i, all[i], want)
				break
			}
		}
	}
}

func TestFlatIndex_LoadMissingFileIsNoop(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if err := idx.Load(filepath.Join(t.TempDir(), "missing.idx")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("Size = %d", idx.Size())
	}
}

func TestFlatIndex_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")
	idx, _ := NewFlatIndex(2)
	if _, err := idx.Add([][]float32{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewFlatIndex(3)
	if err := other.Load(path); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
