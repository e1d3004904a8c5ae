// Package cachetest provides an in-memory cache backend for tests.
package cachetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkezh/casket/internal/cache"
)

// MemoryBackend is a process-local cache.Backend. TTLs are ignored; tests
// exercise invalidation, not expiry.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string, dest any) error {
	m.mu.Lock()
	data, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *MemoryBackend) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.values, k)
	}
	m.mu.Unlock()
	return nil
}

// Contains reports whether a key is currently stored.
func (m *MemoryBackend) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}
