package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a size-bounded, concurrency-safe cache with optional entry expiry.
// The registry keeps decoded model artifacts in one, keyed by artifact hash.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[K, entry[V]]
	ttl     time.Duration
	now     func() time.Time

	hits    uint64
	misses  uint64
	evicted uint64
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// New creates a cache holding at most size entries. A zero ttl disables expiry.
func New[K comparable, V any](size int, ttl time.Duration) (*LRU[K, V], error) {
	entries, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached value for key if present and not expired
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if ok && c.ttl > 0 && c.now().After(e.expires) {
		c.entries.Remove(key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when full
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	if c.entries.Add(key, e) {
		c.evicted++
	}
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors from load are returned as-is and nothing is cached.
func (c *LRU[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Len returns the number of entries, expired ones included
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge drops every entry
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Stats is a point-in-time view of cache effectiveness
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns counters since creation
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Evicted: c.evicted, Size: c.entries.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
