package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/vector"
)

// TextCache stores text embeddings keyed by model and normalized text.
// Implementations must be safe for concurrent use.
type TextCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, value []float32)
}

// LRUCache is an in-process TextCache. Values are copied in and out so
// callers may modify what they get back.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUCache creates a cache holding at most capacity entries.
func NewLRUCache(capacity int) (*LRUCache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

// Get returns a copy of the cached embedding for key if present.
func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Set stores a copy of value, evicting the least recently used entry if at capacity.
func (c *LRUCache) Set(_ context.Context, key string, value []float32) {
	c.cache.Add(key, append([]float32(nil), value...))
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// RedisCache is a TextCache shared between server instances. Redis errors
// are logged and treated as misses; the cache never fails a request.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: "snapfind:text:", ttl: ttl, logger: logger}, nil
}

// Get returns the cached embedding for key if present.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	buf, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Redis cache get failed", zap.Error(err))
		return nil, false
	}
	vec, err := vector.Decode(buf)
	if err != nil {
		c.logger.Warn("Discarding corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// Set stores value under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []float32) {
	if err := c.client.Set(ctx, c.prefix+key, vector.Encode(value), c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache set failed", zap.Error(err))
	}
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedEmbedder decorates an Embedder, caching text embeddings. Image
// embeddings pass straight through.
type CachedEmbedder struct {
	Embedder
	cache TextCache
}

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner Embedder, cache TextCache) *CachedEmbedder {
	return &CachedEmbedder{Embedder: inner, cache: cache}
}

// EmbedText normalizes text, then serves it from the cache or the inner embedder.
func (e *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	normalized := NormalizeQuery(text)
	key := e.Embedder.ModelID() + "\x00" + normalized
	if cached, ok := e.cache.Get(ctx, key); ok {
		return cached, nil
	}
	vec, err := e.Embedder.EmbedText(ctx, normalized)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, vec)
	return vec, nil
}
