package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache for single-node deployments and tests.
// Expiry is lazy: entries are dropped on access once their deadline passes.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	// now is swappable so tests can drive TTL expiry.
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) get(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.get(key); held {
		return false, nil
	}
	e := memoryEntry{value: owner}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return true, nil
}

func (c *MemoryCache) Unlock(ctx context.Context, key, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, held := c.get(key); held && e.value == owner {
		delete(c.entries, key)
	}
	return nil
}
