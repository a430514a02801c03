// Package cache holds a small expiring map for memoizing hot lookups.
// The auth layer uses it to skip a database round trip per HMAC-signed
// request.
package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	val     V
	expires time.Time
}

// Cache maps keys to values that expire a fixed TTL after being set.
// Stale entries are evicted lazily, by the read that finds them.
type Cache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[K]item[V]
}

func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[K]item[V]),
	}
}

// Get returns the value stored under k, if it is still live.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[k]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(it.expires) {
		delete(c.items, k)
		var zero V
		return zero, false
	}
	return it.val, true
}

// Set stores v under k for the cache TTL, replacing any previous value.
func (c *Cache[K, V]) Set(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[k] = item[V]{val: v, expires: c.now().Add(c.ttl)}
}
