// Package cache provides a size-bounded LRU cache with per-entry TTL, used to
// memoize query results keyed by graph version.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a thread-safe LRU cache whose entries expire after a fixed TTL.
// A zero TTL disables expiration.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	cache   *lru.Cache[K, *entry[V]]
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
	evicted uint64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func New[K comparable, V any](size int, ttl time.Duration) (*LRU[K, V], error) {
	c, err := lru.New[K, *entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok || c.expired(e) {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value, evicting the least recently used entry when full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	if c.cache.Add(key, &entry[V]{value: value, expiresAt: expiresAt}) {
		c.evicted++
	}
}

func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// RemoveFunc removes every entry whose key matches and returns how many were
// removed.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.cache.Keys() {
		if match(k) {
			c.cache.Remove(k)
			removed++
		}
	}
	return removed
}

// CleanupExpired removes expired entries. It is O(n) and meant to run
// periodically from a background worker.
func (c *LRU[K, V]) CleanupExpired() int {
	if c.ttl == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.cache.Keys() {
		if e, ok := c.cache.Peek(k); ok && c.expired(e) {
			c.cache.Remove(k)
			removed++
		}
	}
	return removed
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Evicted: c.evicted, Size: c.cache.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *LRU[K, V]) expired(e *entry[V]) bool {
	return c.ttl > 0 && c.now().After(e.expiresAt)
}
