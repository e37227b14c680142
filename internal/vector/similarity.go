// Package vector provides similarity helpers and an exact inner-product index
// over unit-normalized embedding vectors.
package vector

import "math"

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
// Mismatched or empty inputs yield 0; callers that care must check lengths first.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// IsFinite reports whether every component of x is neither NaN nor infinite.
func IsFinite(x []float32) bool {
	for _, v := range x {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Normalized returns a unit-length copy of x. x itself is never modified.
// ok is false when x is empty, not finite, or has zero norm.
func Normalized(x []float32) (unit []float32, ok bool) {
	if len(x) == 0 || !IsFinite(x) {
		return nil, false
	}
	norm := L2Norm(x)
	if norm == 0 || math.IsInf(norm, 0) {
		return nil, false
	}
	unit = make([]float32, len(x))
	inv := 1.0 / norm
	for i, v := range x {
		unit[i] = float32(float64(v) * inv)
	}
	return unit, true
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// Returns 0 when lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Clamp(InnerProduct(a, b) / (na * nb))
}

// Clamp bounds a similarity score to [-1, 1] to absorb float rounding drift.
func Clamp(score float64) float64 {
	return math.Max(-1, math.Min(1, score))
}
