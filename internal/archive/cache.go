package archive

import (
	"sync"
	"time"

	"github.com/torro-zz/pvre/internal/model"
)

// cacheEntry is one cached query result.
type cacheEntry struct {
	expiry time.Time
	items  []model.RawItem
}

// queryCache provides thread-safe, best-effort caching of archive query
// results. Entries are written once on first fetch and read-only until
// expiry.
type queryCache struct {
	entries   map[string]cacheEntry
	stopCh    chan struct{}
	ttl       time.Duration
	mu        sync.RWMutex
	closeOnce sync.Once
}

// newQueryCache creates a cache with the specified TTL.
func newQueryCache(ttl time.Duration) *queryCache {
	if ttl == 0 {
		ttl = 24 * time.Hour // Default TTL
	}

	cache := &queryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a result from the cache if it exists and hasn't expired.
func (c *queryCache) get(key string) ([]model.RawItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiry) {
		return nil, false
	}

	return entry.items, true
}

// set stores a result in the cache.
func (c *queryCache) set(key string, items []model.RawItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		items:  items,
		expiry: time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *queryCache) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// size returns the number of entries in the cache.
func (c *queryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *queryCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
}
