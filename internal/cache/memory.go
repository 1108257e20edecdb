// Package cache provides the in-process cache used to memoize comparison results.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Items   int     `json:"items"`
	HitRate float64 `json:"hit_rate"`
}

// MemoryCache is a size-bounded LRU cache whose entries expire after a fixed TTL.
type MemoryCache struct {
	lru    *expirable.LRU[string, any]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryCache creates a cache holding at most maxItems entries for ttl each.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("max items must be positive, got %d", maxItems)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, any](maxItems, nil, ttl),
	}, nil
}

// Get returns the cached value for key.
func (c *MemoryCache) Get(key string) (any, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *MemoryCache) Set(key string, value any) {
	c.lru.Add(key, value)
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Purge removes every entry. Counters are kept.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Stats returns hit and miss counters.
func (c *MemoryCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, Items: c.lru.Len()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
