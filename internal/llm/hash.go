package llm

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions matches common small sentence-embedding models.
const DefaultHashDimensions = 384

// HashEmbedder builds deterministic embeddings by feature hashing: every
// lower-cased word contributes a pseudo-random unit direction, so texts
// sharing words are similar. It needs no network and is meant for local
// runs and tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, errors.New("nothing to embed")
	}

	sum := make([]float32, h.dimensions)
	for _, w := range words {
		f := fnv.New64a()
		f.Write([]byte(w))
		seed := f.Sum64()
		for i := range sum {
			seed = seed*6364136223846793005 + 1442695040888963407
			sum[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	return normalize(sum), nil
}

// Dimensions returns the embedding size.
func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
