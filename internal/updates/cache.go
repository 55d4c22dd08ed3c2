package updates

import (
	"sync"
	"time"
)

// Cache holds the most recent check result per target. Staleness is
// advisory: readers get the entry either way, plus an age so they can
// decide whether to trigger a fresh check.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	ttl     time.Duration
}

// NewCache creates a cache with the given staleness TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]CacheEntry), ttl: ttl}
}

// Get returns the entry for a target, if one exists.
func (c *Cache) Get(targetID string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[targetID]
	return e, ok
}

// Put stores the result of a completed check.
func (c *Cache) Put(e CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.TargetID] = e
}

// SetReachability updates only the reachability of an existing entry,
// or creates a bare entry when none exists yet. Used by the reboot
// re-probe and by connection failures outside a check.
func (c *Cache) SetReachability(targetID string, r Reachability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[targetID]
	if !ok {
		e = CacheEntry{TargetID: targetID, CheckedAt: time.Now().UTC()}
	}
	e.Reachability = r
	c.entries[targetID] = e
}

// Invalidate drops the entry for one target.
func (c *Cache) Invalidate(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, targetID)
}

// InvalidateAll drops every entry. It does not trigger re-checks.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Age returns how long ago the target was last checked. ok is false
// when the target has never been checked.
func (c *Cache) Age(targetID string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[targetID]
	if !ok {
		return 0, false
	}
	return time.Since(e.CheckedAt), true
}

// IsStale reports whether the target's entry is missing or older than
// the TTL.
func (c *Cache) IsStale(targetID string) bool {
	age, ok := c.Age(targetID)
	return !ok || age > c.ttl
}

// StaleCount returns how many cached entries have outlived the TTL.
func (c *Cache) StaleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if time.Since(e.CheckedAt) > c.ttl {
			n++
		}
	}
	return n
}
