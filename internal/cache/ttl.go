// Package cache provides a TTL keyed cache used to avoid repeated
// catalog API lookups for the same modpack data.
package cache

import (
	"sync"
	"time"
)

type item struct {
	value     any
	expiresAt time.Time
}

// TTLCache is a thread-safe cache with per-entry expiry. Expired
// entries are reaped lazily on access and by Cleanup.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]item
	ttl   time.Duration
}

// NewTTLCache creates a cache whose entries live for ttl after Set.
func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TTLCache{
		items: make(map[string]item),
		ttl:   ttl,
	}
}

// Get returns the cached value for key, or false when absent or expired.
func (c *TTLCache) Get(key string) (any, bool) {
	return c.GetAt(key, time.Now())
}

// GetAt is Get with an explicit clock, for tests.
func (c *TTLCache) GetAt(key string, now time.Time) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(it.expiresAt) {
		c.mu.Lock()
		// Recheck under the write lock; a Set may have refreshed it.
		if cur, ok := c.items[key]; ok && now.After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.value, true
}

// Set stores value under key with the cache's TTL.
func (c *TTLCache) Set(key string, value any) {
	c.SetAt(key, value, time.Now())
}

// SetAt is Set with an explicit clock, for tests.
func (c *TTLCache) SetAt(key string, value any, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiresAt: now.Add(c.ttl)}
}

// Delete removes key from the cache.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of entries, including any not yet reaped.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup removes all expired entries and returns how many were removed.
func (c *TTLCache) Cleanup() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}
