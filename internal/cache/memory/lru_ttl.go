package memory

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	size      int
}

// Stats counts cache lookups since creation.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int
}

// LRUTTL is a threadsafe LRU cache with per-entry TTL, bounded by entry
// count and optionally by total size.
type LRUTTL[K comparable, V any] struct {
	mu         sync.Mutex
	ll         *list.List
	items      map[K]*list.Element
	maxEntries int
	maxBytes   int
	totalBytes int
	ttl        time.Duration
	now        func() time.Time
	stats      Stats
}

func NewLRUTTL[K comparable, V any](maxEntries int, maxBytes int, ttl time.Duration) *LRUTTL[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LRUTTL[K, V]{
		ll:         list.New(),
		items:      make(map[K]*list.Element),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (c *LRUTTL[K, V]) WithClock(now func() time.Time) *LRUTTL[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *LRUTTL[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	ent := ele.Value.(*entry[K, V])
	if c.now().After(ent.expiresAt) {
		c.removeElement(ele)
		c.stats.Misses++
		return zero, false
	}
	c.ll.MoveToFront(ele)
	c.stats.Hits++
	return ent.value, true
}

// Set stores value with the given size. A value larger than the byte bound
// is not cached.
func (c *LRUTTL[K, V]) Set(key K, value V, sizeBytes int) {
	if c == nil {
		return
	}
	sizeBytes = max(sizeBytes, 0)
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
	}
	if c.maxBytes > 0 && sizeBytes > c.maxBytes {
		return
	}
	ele := c.ll.PushFront(&entry[K, V]{
		key:       key,
		value:     value,
		size:      sizeBytes,
		expiresAt: c.now().Add(c.ttl),
	})
	c.items[key] = ele
	c.totalBytes += sizeBytes
	c.evictLocked()
}

func (c *LRUTTL[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
	}
}

func (c *LRUTTL[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRUTTL[K, V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	s.Bytes = c.totalBytes
	return s
}

func (c *LRUTTL[K, V]) evictLocked() {
	for c.ll.Len() > 0 {
		if c.ll.Len() <= c.maxEntries && (c.maxBytes <= 0 || c.totalBytes <= c.maxBytes) {
			return
		}
		c.removeElement(c.ll.Back())
		c.stats.Evictions++
	}
}

func (c *LRUTTL[K, V]) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	ent := ele.Value.(*entry[K, V])
	delete(c.items, ent.key)
	c.totalBytes = max(c.totalBytes-ent.size, 0)
}
