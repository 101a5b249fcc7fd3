package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/xlog"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "faqrecall:embedding:"

// CachedEmbedder stores embeddings in Redis keyed by namespace and text hash.
// Cache errors are logged and bypassed.
type CachedEmbedder struct {
	next      interfaces.Embedder
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewCachedEmbedder wraps next. namespace must differ for every provider/model pair.
func NewCachedEmbedder(next interfaces.Embedder, client *redis.Client, namespace string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:      next,
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + c.namespace + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vector []float32
		if err := json.Unmarshal(data, &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
		xlog.Warn("Discarding corrupted cached embedding", "key", key)
	case err != redis.Nil:
		xlog.Warn("Embedding cache lookup failed", "error", err)
	}

	vector, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vector); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			xlog.Warn("Embedding cache store failed", "error", err)
		}
	}

	return vector, nil
}
