package pipeline

import (
	"sync"
	"time"
)

// cacheEntry holds one cached run result.
type cacheEntry struct {
	result    *Result
	expiresAt time.Time

	// lastAccessed tracks LRU eviction.
	lastAccessed time.Time
}

// resultCache is a thread-safe fingerprint-to-result cache with TTL and
// LRU eviction. Identical inputs under identical configuration produce
// identical results, so a fresh run over unchanged sources can be served
// from here.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
}

func newResultCache(ttl time.Duration, maxEntries int) *resultCache {
	return &resultCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Set stores a result under its input fingerprint. Storing a new key at
// capacity evicts the least recently used entry first.
func (c *resultCache) Set(fingerprint string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[fingerprint] = &cacheEntry{
		result:       result,
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
}

// Get retrieves a cached result. Expired entries are removed on access.
func (c *resultCache) Get(fingerprint string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, fingerprint)
		return nil, false
	}

	entry.lastAccessed = time.Now()
	return entry.result, true
}

// Delete removes an entry. No-op if absent.
func (c *resultCache) Delete(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Clear removes all entries.
func (c *resultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Len reports the current entry count.
func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest drops the least recently used entry. Caller holds mu.
// Fingerprints are hex digests, so the empty string never collides with a
// real key.
func (c *resultCache) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldest == "" || entry.lastAccessed.Before(oldestAt) {
			oldest, oldestAt = key, entry.lastAccessed
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}
