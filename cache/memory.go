// Package cache implements objectcore.Cache (spec §4.8 result caching):
// an in-memory map of TTL-aware entries whose expiry is checked on read,
// plus a
// Redis-backed implementation for multi-process deployments
// (SPEC_FULL.md's domain stack commits go-redis/redis/v8 to this
// concern).
package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value   any
	expires time.Time // zero means no expiry
}

// Memory is a process-local objectcore.Cache. It never evicts proactively;
// expired entries are dropped lazily on Get.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

// NewMemory returns an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryItem)}
}

func (m *Memory) Get(ctx context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value any, ttlSeconds int) error {
	var expires time.Time
	if ttlSeconds > 0 {
		expires = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	m.mu.Lock()
	m.items[key] = memoryItem{value: value, expires: expires}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}
