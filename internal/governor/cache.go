package governor

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// responseCache is a read-through cache with lazy expiry. Nothing sweeps
// it in the background; an expired entry is treated as a miss and
// removed on the read that discovers it.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *responseCache) set(key string, value []byte, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: now, ttl: ttl}
}

func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
