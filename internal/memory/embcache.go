package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache keeps computed embeddings in Redis so identical texts are
// embedded once across cycles and replicas.
type EmbeddingCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewEmbeddingCache creates a cache. namespace should identify the
// embedding model so vectors of different models never mix.
func NewEmbeddingCache(client *redis.Client, namespace string, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{client: client, namespace: namespace, ttl: ttl}
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.namespace, hex.EncodeToString(sum[:]))
}

// Get returns the cached embedding for text. ok is false on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, text string) (vec []float32, ok bool, err error) {
	key := c.key(text)
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, &vec); err != nil {
		// Drop entries we cannot read; they are recomputed on the next Set.
		return nil, false, nil
	}
	return vec, true, nil
}

// Set stores an embedding for text.
func (c *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) error {
	key := c.key(text)
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshaling embedding: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
