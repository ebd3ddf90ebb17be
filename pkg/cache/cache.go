// Package cache implements a versioned read-through cache for hot list
// queries. A single version token per resource family is embedded in every
// key; rotating the token on any write invalidates the whole family in O(1)
// without enumerating keys.
package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend is the minimal key/value surface the cache needs. Implemented by
// Redis in production and by an in-memory map in tests.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets the key only if absent; returns true if it was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// ErrMiss is returned by backends for an absent key.
var ErrMiss = errors.New("cache miss")

// envelope wraps every cached payload so reads can validate shape before
// trusting it. A malformed payload is a miss, never an error.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

// Cache is a versioned cache for one resource family. All errors from the
// backend are caught, logged and treated as a miss or no-op: the cache is
// purely an optimization and correctness always falls back to the source of
// truth.
type Cache struct {
	backend  Backend
	resource string
	ttl      time.Duration
	logger   *zap.Logger
}

// New creates a cache for the named resource family. backend may be nil, in
// which case every Get is a miss and every Put/Invalidate a no-op.
func New(backend Backend, resource string, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		backend:  backend,
		resource: resource,
		ttl:      ttl,
		logger:   logger.Named("cache"),
	}
}

// Get returns the cached payload for an operation, or ok=false on any kind
// of miss (absent, malformed, backend error).
func (c *Cache) Get(ctx context.Context, operation, args string) (json.RawMessage, bool) {
	if c.backend == nil {
		return nil, false
	}

	key, ok := c.key(ctx, operation, args)
	if !ok {
		return nil, false
	}

	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || !env.Success || env.Result == nil {
		// Shape validation failed; treat as a miss.
		c.logger.Warn("malformed cache payload, ignoring", zap.String("key", key))
		return nil, false
	}
	return env.Result, true
}

// Put stores a payload under the current version. Failures are logged and
// swallowed.
func (c *Cache) Put(ctx context.Context, operation, args string, result any) {
	if c.backend == nil {
		return
	}

	key, ok := c.key(ctx, operation, args)
	if !ok {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("failed to marshal cache payload", zap.String("key", key), zap.Error(err))
		return
	}
	payload, err := json.Marshal(envelope{Success: true, Result: raw})
	if err != nil {
		c.logger.Warn("failed to marshal cache envelope", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.backend.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate rotates the version token, orphaning every key of this
// resource family at once. Old entries simply age out via TTL.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.backend == nil {
		return
	}

	token, err := randomToken()
	if err != nil {
		c.logger.Warn("failed to generate version token", zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, c.versionKey(), token, 0); err != nil {
		c.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}

func (c *Cache) versionKey() string {
	return c.resource + ":cache:version"
}

// key builds {resource}:cache:{version}:{operation}:{args}.
func (c *Cache) key(ctx context.Context, operation, args string) (string, bool) {
	version, ok := c.currentVersion(ctx)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s:cache:%s:%s:%s", c.resource, version, operation, args), true
}

// currentVersion reads the version token, initializing it on first use.
// The re-read after SetNX narrows (but does not eliminate) the window where
// concurrent cold starts mint different tokens; a lost race only costs a
// few extra misses.
func (c *Cache) currentVersion(ctx context.Context) (string, bool) {
	version, err := c.backend.Get(ctx, c.versionKey())
	if err == nil && version != "" {
		return version, true
	}
	if err != nil && !errors.Is(err, ErrMiss) {
		c.logger.Warn("cache version read failed", zap.Error(err))
		return "", false
	}

	token, err := randomToken()
	if err != nil {
		c.logger.Warn("failed to generate version token", zap.Error(err))
		return "", false
	}
	if _, err := c.backend.SetNX(ctx, c.versionKey(), token, 0); err != nil {
		c.logger.Warn("cache version init failed", zap.Error(err))
		return "", false
	}

	version, err = c.backend.Get(ctx, c.versionKey())
	if err != nil || version == "" {
		return "", false
	}
	return version, true
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RedisBackend adapts a go-redis client to the Backend interface.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a redis client. Callers with no redis configured
// should pass a nil Backend to New instead.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

var _ Backend = (*RedisBackend)(nil)

// Get fetches a key, mapping redis.Nil to ErrMiss.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	return val, err
}

// Set stores a key with TTL (0 means no expiry).
func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// SetNX stores a key only if absent.
func (b *RedisBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, value, ttl).Result()
}
