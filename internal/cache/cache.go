// Package cache accelerates metadata reads with a read-through cache.
// Values live in Redis; the per-bucket key index that makes bulk
// invalidation possible is kept in-process, scoped to one Cache instance.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMiss signals that the key is not cached.
var ErrMiss = errors.New("cache miss")

// Entity TTLs. These are a safety net only; correctness comes from eager
// invalidation on every mutation.
const (
	TTLBucket   = 10 * time.Minute
	TTLFile     = 5 * time.Minute
	TTLShortURL = 10 * time.Minute
	TTLToken    = 2 * time.Minute
	TTLStats    = 5 * time.Minute
)

// Key builders. Every cached value for a bucket is derived from one of these
// shapes so the bucket index can sweep them all.
func BucketKey(bucketID string) string          { return "bucket:" + bucketID }
func FileKey(bucketID, path string) string      { return fmt.Sprintf("file:%s:%s", bucketID, path) }
func ShortURLKey(code string) string            { return "shorturl:" + code }
func TokenKey(token string) string              { return "token:" + token }
func StatsKey(bucketID string) string           { return "stats:" + bucketID }

// Backend is the value store behind the cache.
type Backend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Del(ctx context.Context, keys ...string) error
}

// Cache wraps a Backend with the per-bucket key index.
type Cache struct {
	backend Backend

	mu    sync.Mutex
	index map[string]map[string]struct{} // bucketID -> set of cache keys
}

// New builds a Cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{
		backend: backend,
		index:   make(map[string]map[string]struct{}),
	}
}

// Put stores a value under key with the given TTL and records the key in the
// bucket's index so a later bulk invalidation can find it.
func (c *Cache) Put(ctx context.Context, bucketID, key string, value any, ttl time.Duration) error {
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	c.mu.Lock()
	keys, ok := c.index[bucketID]
	if !ok {
		keys = make(map[string]struct{})
		c.index[bucketID] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Fetch loads a cached value into dest, returning ErrMiss when absent.
func (c *Cache) Fetch(ctx context.Context, key string, dest any) error {
	return c.backend.Get(ctx, key, dest)
}

// Invalidate removes specific keys. Mutations call this before they are
// considered complete, so no read after the mutation can observe stale data.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.backend.Del(ctx, keys...)
}

// InvalidateBucket sweeps every key ever written under the bucket's index,
// regardless of entity kind, then drops the index entry.
func (c *Cache) InvalidateBucket(ctx context.Context, bucketID string) error {
	c.mu.Lock()
	keySet := c.index[bucketID]
	delete(c.index, bucketID)
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	// The canonical bucket keys are included even if this instance never
	// wrote them, to cover values populated before a restart.
	keys = append(keys, BucketKey(bucketID), StatsKey(bucketID))
	return c.backend.Del(ctx, keys...)
}

// IndexedKeys reports the keys currently tracked for a bucket. Used by tests.
func (c *Cache) IndexedKeys(bucketID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.index[bucketID]))
	for k := range c.index[bucketID] {
		keys = append(keys, k)
	}
	return keys
}
