package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"

	"github.com/disintegration/imaging"
)

// MockEmbedder is a deterministic embedder for tests and for running without
// model files. Text embeds as a bag of words: each lowercase word maps to a
// fixed pseudo-random direction and the sum is normalized, so texts sharing
// words score higher. An image with a known file name embeds as the caption
// derived from that name ("red_car.jpg" matches the query "red car");
// unnamed images embed from a hash of a small thumbnail.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns the normalized sum of the per-word directions of text.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	words := SplitWords(strings.ToLower(NormalizeQuery(text)))
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: blank text", ErrUnsupportedInput)
	}
	sum := make([]float64, e.dimensions)
	for _, w := range words {
		e.accumulate(sum, seedOf(w))
	}
	return normalize64(sum), nil
}

// EmbedImage decodes src and embeds its caption, or its pixels when it has no name.
func (e *MockEmbedder) EmbedImage(ctx context.Context, src ImageSource) ([]float32, error) {
	img, err := src.Decode()
	if err != nil {
		return nil, err
	}
	if caption := captionFromName(src.Name()); caption != "" {
		return e.EmbedText(ctx, caption)
	}
	thumb := imaging.Resize(img, 8, 8, imaging.Box)
	h := fnv.New64a()
	_, _ = h.Write(thumb.Pix)
	sum := make([]float64, e.dimensions)
	e.accumulate(sum, int64(h.Sum64()))
	return normalize64(sum), nil
}

func (e *MockEmbedder) accumulate(sum []float64, seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := range sum {
		sum[i] += r.NormFloat64()
	}
}

func seedOf(word string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(word))
	return int64(h.Sum64())
}

func normalize64(x []float64) []float32 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	out := make([]float32, len(x))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range x {
		out[i] = float32(v * inv)
	}
	return out
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID identifies the mock, keeping its cached text vectors apart from a real model's.
func (e *MockEmbedder) ModelID() string {
	return fmt.Sprintf("mock-bow-%d", e.dimensions)
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
