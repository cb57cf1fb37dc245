package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is a stored value with its absolute expiry. Entries are overwritten
// on recompute and removed on expiry or capacity pressure.
type entry[V any] struct {
	value   V
	expires time.Time
	elem    *list.Element // position in the LRU list; Value is the key string
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expires)
}

// Cache is a get-or-compute TTL cache with LRU capacity eviction.
// All methods are safe for concurrent use.
type Cache[V any] struct {
	tier     string
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*entry[V]
	lru     *list.List // front = most recently used

	group singleflight.Group
}

// New creates a cache tier. The tier name labels this instance's metrics.
func New[V any](tier string, capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		panic("cache capacity must be positive")
	}
	if ttl <= 0 {
		panic("cache ttl must be positive")
	}
	return &Cache[V]{
		tier:     tier,
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*entry[V]),
		lru:      list.New(),
	}
}

// GetOrCompute returns the cached value for key if present and fresh.
// Otherwise it invokes compute, stores the result with expiry now+TTL, and
// returns it. Compute failures are not cached; the next call for the same key
// computes again. Concurrent misses for one key share a single compute.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have filled the slot while we queued.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Get returns the stored value for key if present and fresh. A hit marks the
// entry as most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		cacheMisses.WithLabelValues(c.tier).Inc()
		var zero V
		return zero, false
	}
	if e.expired(time.Now()) {
		c.removeLocked(key, e)
		cacheMisses.WithLabelValues(c.tier).Inc()
		var zero V
		return zero, false
	}
	c.lru.MoveToFront(e.elem)
	cacheHits.WithLabelValues(c.tier).Inc()
	return e.value, true
}

// Set stores value under key with expiry now+TTL, overwriting any previous
// entry, and evicts the least recently used entry if capacity is exceeded.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.lru.MoveToFront(e.elem)
		return
	}

	e := &entry[V]{value: value, expires: expires}
	e.elem = c.lru.PushFront(key)
	c.entries[key] = e
	cacheEntries.WithLabelValues(c.tier).Set(float64(len(c.entries)))

	for len(c.entries) > c.capacity {
		back := c.lru.Back()
		if back == nil {
			break
		}
		oldest := back.Value.(string)
		c.removeLocked(oldest, c.entries[oldest])
		cacheEvictions.WithLabelValues(c.tier).Inc()
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Len reports the current entry count, expired entries included until their
// next access.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.lru.Remove(e.elem)
	delete(c.entries, key)
	cacheEntries.WithLabelValues(c.tier).Set(float64(len(c.entries)))
}
