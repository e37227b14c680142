package vector

import (
	"fmt"
	"sort"
)

// FlatIndex is an exact brute-force inner-product index over unit vectors.
// It is built for a single query and discarded, so it carries no locks and
// must not be shared between goroutines.
type FlatIndex struct {
	dimensions int
	ids        []int
	vectors    [][]float32
}

// Hit is a single FlatIndex search result. Position is the value passed to Add.
type Hit struct {
	Position int
	Score    float64
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimensions int, capacity int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if capacity < 0 {
		capacity = 0
	}
	return &FlatIndex{
		dimensions: dimensions,
		ids:        make([]int, 0, capacity),
		vectors:    make([][]float32, 0, capacity),
	}, nil
}

// Dimensions returns the vector length the index accepts.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add appends a vector under position. The slice is retained, not copied;
// callers pass vectors they already own (e.g. fresh normalized copies).
func (f *FlatIndex) Add(position int, vec []float32) error {
	if len(vec) != f.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
	}
	f.ids = append(f.ids, position)
	f.vectors = append(f.vectors, vec)
	return nil
}

// Search scores every vector against query and returns the top-k hits by inner
// product, highest first. Equal scores keep insertion order. k <= 0 returns all.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if len(f.ids) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.ids))
	for i, vec := range f.vectors {
		var dot float64
		for j := 0; j < f.dimensions; j++ {
			dot += float64(query[j]) * float64(vec[j])
		}
		hits[i] = Hit{Position: f.ids[i], Score: Clamp(dot)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	return len(f.ids)
}
