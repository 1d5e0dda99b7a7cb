package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Black leather boots")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "black LEATHER boots!")
	require.NoError(t, err)

	assert.Len(t, a, DefaultHashDimensions)
	assert.Equal(t, a, b, "case and punctuation do not matter")
}

func TestHashEmbedder_UnitLength(t *testing.T) {
	v, err := NewHashEmbedder(64).Embed(context.Background(), "cap")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(DefaultHashDimensions)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "tailored navy blazer")
	related, _ := e.Embed(ctx, "w12,navy blazer,TOP")
	unrelated, _ := e.Embed(ctx, "w13,rubber rain boots,SHOES")

	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	_, err := NewHashEmbedder(8).Embed(context.Background(), " ,; ")
	assert.Error(t, err)
}
