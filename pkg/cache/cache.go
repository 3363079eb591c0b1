// Package cache is a query result cache: an LRU bounded by byte size,
// per-entry TTL, fingerprinted on (collection, query, params, filter,
// write-version), with at-most-one concurrent computation per fingerprint.
// Grounded on pkg/search/cache.go's LRUCache (container/list + map,
// RWMutex, TTL-on-Get expiry), extended with byte-size accounting (that
// cache bounded only by entry count) and a singleflight waiter table.
package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Sizer lets a cached value report its own approximate footprint so the
// cache can bound itself by bytes rather than entry count, per spec
// §4.11. Values that don't implement it are charged a flat estimate.
type Sizer interface {
	CacheSize() int64
}

const defaultEntrySize = 256

type entry struct {
	key       string
	value     interface{}
	size      int64
	expiresAt time.Time
}

// Cache is a thread-safe, byte-bounded, TTL'd LRU with a singleflight
// waiter table layered on top so concurrent callers requesting the same
// fingerprint share one computation.
type Cache struct {
	maxBytes int64
	ttl      time.Duration

	mu        sync.Mutex
	entries   map[string]*list.Element
	order     *list.List
	usedBytes int64

	group singleflight.Group

	hits   int64
	misses int64
}

// New creates a Cache bounded to maxBytes total entry size, with ttl
// applied to every entry (ttl <= 0 disables expiry).
func New(maxBytes int64, ttl time.Duration) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for fingerprint, if present and unexpired.
func (c *Cache) Get(fingerprint string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return nil, false
	}
	e := elem.Value.(*entry)
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Put stores value under fingerprint, evicting least-recently-used entries
// until the cache is back under its byte budget.
func (c *Cache) Put(fingerprint string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(fingerprint, value)
}

func (c *Cache) putLocked(fingerprint string, value interface{}) {
	size := defaultEntrySize
	if s, ok := value.(Sizer); ok {
		size = int(s.CacheSize())
	}

	if elem, ok := c.entries[fingerprint]; ok {
		e := elem.Value.(*entry)
		c.usedBytes -= e.size
		e.value = value
		e.size = int64(size)
		if c.ttl > 0 {
			e.expiresAt = time.Now().Add(c.ttl)
		}
		c.usedBytes += e.size
		c.order.MoveToFront(elem)
		c.evictUntilWithinBudget()
		return
	}

	e := &entry{key: fingerprint, value: value, size: int64(size)}
	if c.ttl > 0 {
		e.expiresAt = time.Now().Add(c.ttl)
	}
	elem := c.order.PushFront(e)
	c.entries[fingerprint] = elem
	c.usedBytes += e.size
	c.evictUntilWithinBudget()
}

func (c *Cache) evictUntilWithinBudget() {
	for c.maxBytes > 0 && c.usedBytes > c.maxBytes && c.order.Len() > 0 {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.usedBytes -= e.size
}

// GetOrCompute returns the cached value for fingerprint if present;
// otherwise it calls compute exactly once even under concurrent callers
// for the same fingerprint (the singleflight waiter table spec §4.11
// requires), caches the result, and returns it to every waiter.
func (c *Cache) GetOrCompute(fingerprint string, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(fingerprint); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(fingerprint, compute)
	if err != nil {
		return nil, err
	}
	c.Put(fingerprint, v)
	return v, nil
}

// Invalidate drops a single fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fingerprint]; ok {
		c.removeLocked(elem)
	}
}

// Clear drops every entry. Called when a collection's version counter
// changes in a way the caller can't fold into the fingerprint cheaply
// (e.g. a full collection delete); the normal write-invalidation path is
// simply computing fingerprints with the post-write version, which makes
// stale entries unreachable without ever being scanned.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.usedBytes = 0
}

// Stats reports cache hit/miss counters and current occupancy.
type Stats struct {
	Hits      int64
	Misses    int64
	Entries   int
	UsedBytes int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.order.Len(), UsedBytes: c.usedBytes}
}
