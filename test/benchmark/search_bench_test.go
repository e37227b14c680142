package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/ranking"
	"github.com/hyperjump/snapfind/internal/vector"
)

func randomCandidates(n, dims int) []ranking.Candidate[string] {
	rng := rand.New(rand.NewSource(42))
	candidates := make([]ranking.Candidate[string], n)
	for i := range candidates {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		id := fmt.Sprintf("photo_%d", i)
		candidates[i] = ranking.Candidate[string]{ID: id, Vector: vec, Metadata: id + ".jpg"}
	}
	return candidates
}

func benchmarkRank(b *testing.B, n int) {
	candidates := randomCandidates(n, 512)
	query := candidates[0].Vector
	opts := ranking.Options{Threshold: ranking.DefaultThreshold}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = ranking.RankWithStats(query, candidates, opts)
	}
}

func BenchmarkRank_100(b *testing.B)  { benchmarkRank(b, 100) }
func BenchmarkRank_1000(b *testing.B) { benchmarkRank(b, 1000) }
func BenchmarkRank_5000(b *testing.B) { benchmarkRank(b, 5000) }

func BenchmarkFlatIndexSearch(b *testing.B) {
	candidates := randomCandidates(1000, 512)
	idx, _ := vector.NewFlatIndex(512, len(candidates))
	for i, c := range candidates {
		unit, _ := vector.Normalized(c.Vector)
		_ = idx.Add(i, unit)
	}
	query, _ := vector.Normalized(candidates[0].Vector)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(query, 10)
	}
}

func BenchmarkVectorDecode(b *testing.B) {
	blob := vector.Encode(randomCandidates(1, 512)[0].Vector)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = vector.Decode(blob)
	}
}

func BenchmarkMockEmbedder_EmbedText(b *testing.B) {
	e := embedding.NewMockEmbedder(512)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedText(ctx, "students dancing on stage at the annual day")
	}
}

func BenchmarkCachedEmbedder_EmbedText(b *testing.B) {
	cache, _ := embedding.NewLRUCache(100)
	e := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(512), cache)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedText(ctx, "students dancing on stage at the annual day")
	}
}
