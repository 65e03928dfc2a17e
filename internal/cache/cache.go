// Package cache implements the bounded, TTL-indexed validation cache
// fronting the Guard, plus the single-flight coalescer that collapses
// concurrent identical misses into one Guard call.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/javelinlabs/mcp-validation-gateway/internal/guard"
)

type entry struct {
	key       string
	verdict   guard.Verdict
	expiresAt time.Time
	element   *list.Element
}

// ValidationCache is a thread-safe, bounded, TTL-indexed map from cache
// key to Verdict with least-recently-used eviction.
type ValidationCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	lru        *list.List
	maxEntries int
	ttl        time.Duration
}

// Stats mirrors the cache_stats shape named in spec §4.2.
type Stats struct {
	Entries     int `json:"entries"`
	Pending     int `json:"pending"`
	MaxCapacity int `json:"max_capacity"`
	TTLSeconds  int `json:"ttl_seconds"`
}

// New constructs an empty ValidationCache.
func New(maxEntries int, ttl time.Duration) *ValidationCache {
	return &ValidationCache{
		entries:    make(map[string]*entry, maxEntries),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns the cached Verdict for key, or false on a miss. A
// lazily-expired entry (its TTL has passed, or its own produced_at is
// already stale) is evicted and treated as a miss.
func (c *ValidationCache) Get(key string) (guard.Verdict, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return guard.Verdict{}, false
	}

	now := time.Now()
	if now.After(e.expiresAt) || now.Sub(e.verdict.ProducedAt) > c.ttl {
		c.mu.Lock()
		c.deleteLocked(key)
		c.mu.Unlock()
		return guard.Verdict{}, false
	}

	c.mu.Lock()
	c.lru.MoveToFront(e.element)
	c.mu.Unlock()

	return e.verdict, true
}

// Set inserts verdict under key, evicting the least-recently-used entry
// if the cache is at capacity.
func (c *ValidationCache) Set(key string, verdict guard.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if e, ok := c.entries[key]; ok {
		e.verdict = verdict
		e.expiresAt = expiresAt
		c.lru.MoveToFront(e.element)
		return
	}

	if c.lru.Len() >= c.maxEntries {
		c.evictLRULocked()
	}

	e := &entry{key: key, verdict: verdict, expiresAt: expiresAt}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
}

func (c *ValidationCache) deleteLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.lru.Remove(e.element)
	delete(c.entries, key)
}

func (c *ValidationCache) evictLRULocked() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry)
	c.lru.Remove(oldest)
	delete(c.entries, e.key)
}

// Clear invalidates every cached entry.
func (c *ValidationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry, c.maxEntries)
	c.lru = list.New()
}

// Len returns the number of stored entries, including expired ones that
// have not been pruned yet.
func (c *ValidationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTLSeconds exposes the configured TTL for stats reporting.
func (c *ValidationCache) TTLSeconds() int {
	return int(c.ttl / time.Second)
}

// MaxEntries exposes the configured capacity for stats reporting.
func (c *ValidationCache) MaxEntries() int {
	return c.maxEntries
}
