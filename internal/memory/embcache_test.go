package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestEmbeddingCache_SetAndGet(t *testing.T) {
	client, _ := setupMiniredis(t)
	cache := NewEmbeddingCache(client, "test-model", time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "a red blazer")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "a red blazer", []float32{0.1, 0.2, 0.3}))

	vec, ok, err := cache.Get(ctx, "a red blazer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbeddingCache_NamespacesDoNotMix(t *testing.T) {
	client, _ := setupMiniredis(t)
	ctx := context.Background()

	a := NewEmbeddingCache(client, "model-a", time.Hour)
	b := NewEmbeddingCache(client, "model-b", time.Hour)
	require.NoError(t, a.Set(ctx, "boots", []float32{1}))

	_, ok, err := b.Get(ctx, "boots")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddingCache_TTL(t *testing.T) {
	client, mr := setupMiniredis(t)
	cache := NewEmbeddingCache(client, "m", time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "cap", []float32{1, 2}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "cap")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddingCache_CorruptEntryIsMiss(t *testing.T) {
	client, mr := setupMiniredis(t)
	cache := NewEmbeddingCache(client, "m", time.Minute)

	require.NoError(t, mr.Set(cache.key("cap"), "not json"))

	_, ok, err := cache.Get(context.Background(), "cap")
	require.NoError(t, err)
	assert.False(t, ok)
}
