// Package cache provides a size- and time-bounded key/value store.
//
// Entries carry a per-entry TTL; reads of expired entries miss and drop the
// entry. When the cache is full, inserting a new key evicts the entry whose
// last access is oldest.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a bounded LRU with per-entry expiry. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.LRU[K, entry[V]]
	now func() time.Time
}

// New creates a cache holding at most maxEntries entries.
func New[K comparable, V any](maxEntries int) (*Cache[K, V], error) {
	inner, err := lru.NewLRU[K, entry[V]](maxEntries, nil)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{
		lru: inner,
		now: time.Now,
	}, nil
}

// Get returns the value for k if present and not expired. The read counts
// as an access for eviction ordering. Expired entries are dropped.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(k)
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(k)
		return zero, false
	}
	return e.value, true
}

// Set inserts or updates k with the given TTL. Inserting a new key at
// capacity evicts the least recently accessed entry.
func (c *Cache[K, V]) Set(k K, v V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(k, entry[V]{value: v, expiresAt: c.now().Add(ttl)})
}

// Delete removes k if present.
func (c *Cache[K, V]) Delete(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(k)
}

// Len returns the number of stored entries, including not-yet-collected
// expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

// Purge drops all entries.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
}
