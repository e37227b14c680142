// Package ranking ranks an event's stored photo embeddings against a query embedding.
//
// Rank is a pure function: every call normalizes fresh copies of its inputs,
// builds its own vector.FlatIndex, and discards it on return. Nothing is cached
// or shared between calls, so concurrent searches for different events can
// never observe each other's candidates.
//
// Dimensionality is asserted from the query. Candidates of any other length are
// dropped from the ranking; if none of them match the query's length the query
// itself is considered wrong and ErrDimensionMismatch is returned.
package ranking

import (
	"errors"
	"fmt"
	"math"

	"github.com/hyperjump/snapfind/internal/vector"
)

// DefaultThreshold is the minimum similarity used when a caller has no configured value.
const DefaultThreshold = 0.20

var (
	// ErrInvalidQuery is returned for an empty, all-zero or non-finite query vector.
	ErrInvalidQuery = errors.New("invalid query vector")
	// ErrDimensionMismatch is returned when no candidate shares the query's dimensionality.
	ErrDimensionMismatch = errors.New("query dimension does not match candidates")
	// ErrInvalidThreshold is returned for a NaN threshold.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")
)

// Candidate is a stored embedding offered for ranking. Metadata is carried
// through to the result untouched.
type Candidate[M any] struct {
	ID       string
	Vector   []float32
	Metadata M
}

// ScoredResult is a candidate that cleared the threshold, with its cosine similarity.
type ScoredResult[M any] struct {
	ID       string
	Metadata M
	Score    float64
}

// Options controls a ranking call.
type Options struct {
	// Threshold is the inclusive minimum similarity.
	Threshold float64
	// Limit caps the number of results after thresholding. 0 means no cap.
	Limit int
}

// Stats describes what happened to the candidate set during one call.
type Stats struct {
	Dimensions     int
	Candidates     int
	WrongDimension int
	Degenerate     int
	BelowThreshold int
	Returned       int
}

// Rank returns the candidates whose cosine similarity to query is at least
// threshold, highest first. Equal scores keep their input order.
func Rank[M any](query []float32, candidates []Candidate[M], threshold float64) ([]ScoredResult[M], error) {
	results, _, err := RankWithStats(query, candidates, Options{Threshold: threshold})
	return results, err
}

// RankWithStats is Rank with a result cap and per-call statistics.
func RankWithStats[M any](query []float32, candidates []Candidate[M], opts Options) ([]ScoredResult[M], Stats, error) {
	stats := Stats{Dimensions: len(query), Candidates: len(candidates)}
	if math.IsNaN(opts.Threshold) {
		return nil, stats, ErrInvalidThreshold
	}
	if len(query) == 0 {
		return nil, stats, fmt.Errorf("%w: empty", ErrInvalidQuery)
	}
	unitQuery, ok := vector.Normalized(query)
	if !ok {
		return nil, stats, fmt.Errorf("%w: zero norm or non-finite values", ErrInvalidQuery)
	}
	if len(candidates) == 0 {
		return []ScoredResult[M]{}, stats, nil
	}

	idx, matched, err := buildIndex(len(query), candidates, &stats)
	if err != nil {
		return nil, stats, err
	}
	if matched == 0 && stats.WrongDimension > 0 {
		return nil, stats, fmt.Errorf("%w: query has %d dimensions, %d candidates have other lengths",
			ErrDimensionMismatch, len(query), stats.WrongDimension)
	}

	hits, err := idx.Search(unitQuery, 0)
	if err != nil {
		return nil, stats, err
	}
	results := make([]ScoredResult[M], 0, len(hits))
	for i, h := range hits {
		if h.Score < opts.Threshold {
			// Hits are sorted, so everything after this is below threshold too.
			stats.BelowThreshold = len(hits) - i
			break
		}
		c := candidates[h.Position]
		results = append(results, ScoredResult[M]{ID: c.ID, Metadata: c.Metadata, Score: h.Score})
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	stats.Returned = len(results)
	return results, stats, nil
}

// buildIndex normalizes every usable candidate into a fresh FlatIndex.
// Empty vectors (missing embeddings) and zero-norm or non-finite vectors count
// as degenerate; non-empty vectors of another length count as wrong dimension.
// matched counts candidates of the query's length, degenerate or not.
func buildIndex[M any](dims int, candidates []Candidate[M], stats *Stats) (idx *vector.FlatIndex, matched int, err error) {
	idx, err = vector.NewFlatIndex(dims, len(candidates))
	if err != nil {
		return nil, 0, err
	}
	for i, c := range candidates {
		switch {
		case len(c.Vector) == 0:
			stats.Degenerate++
			continue
		case len(c.Vector) != dims:
			stats.WrongDimension++
			continue
		}
		matched++
		unit, ok := vector.Normalized(c.Vector)
		if !ok {
			stats.Degenerate++
			continue
		}
		if err := idx.Add(i, unit); err != nil {
			return nil, 0, err
		}
	}
	return idx, matched, nil
}
