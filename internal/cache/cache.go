// Package cache is an exact-match LRU for query responses.
//
// Keys are compared byte for byte; callers normalize (trim) before lookup.
// Entries are copied on the way in and on the way out, so a caller can
// mutate what it got back without touching the stored value.
//
// Degraded entries (answers produced after a generative-backend failure)
// form a separate class with their own lifetime, see WithDegradedTTL.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity    = 1000
	DefaultDegradedTTL = 30 * time.Second
)

// Stats reports cache activity since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	Size      int
	Capacity  int
}

// Option configures a QueryCache.
type Option func(*options)

type options struct {
	degradedTTL time.Duration
	now         func() time.Time
}

// WithDegradedTTL sets the lifetime of degraded entries. A positive value
// expires them that long after insertion, zero stops them from being stored
// at all, and a negative value treats them like any other entry.
func WithDegradedTTL(d time.Duration) Option {
	return func(o *options) { o.degradedTTL = d }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type entry[V any] struct {
	key      string
	value    V
	degraded bool
	inserted time.Time
}

// QueryCache is a mutex-guarded LRU keyed by query text.
type QueryCache[V any] struct {
	mu       sync.Mutex
	capacity int
	clone    func(V) V
	opts     options

	order *list.List // front = most recently used
	items map[string]*list.Element

	hits, misses, evictions, expired int64
}

// New creates a cache holding at most capacity entries; capacity <= 0 uses
// DefaultCapacity. clone deep-copies a value; nil means values are copied by
// assignment.
func New[V any](capacity int, clone func(V) V, opts ...Option) *QueryCache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clone == nil {
		clone = func(v V) V { return v }
	}
	o := options{degradedTTL: DefaultDegradedTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &QueryCache[V]{
		capacity: capacity,
		clone:    clone,
		opts:     o,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the value stored under key and marks it most
// recently used. A miss leaves the recency order untouched.
func (c *QueryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.isExpired(e) {
		c.removeElement(el)
		c.expired++
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return c.clone(e.value), true
}

// Set stores value under key as the most recently used entry, evicting the
// least recently used entry when the cache is full.
func (c *QueryCache[V]) Set(key string, value V) {
	c.set(key, value, false)
}

// SetDegraded stores a degraded answer under the degraded-entry policy.
func (c *QueryCache[V]) SetDegraded(key string, value V) {
	switch {
	case c.opts.degradedTTL == 0:
		// Still drop any earlier entry so a stale answer is not served.
		c.Delete(key)
	case c.opts.degradedTTL < 0:
		c.set(key, value, false)
	default:
		c.set(key, value, true)
	}
}

func (c *QueryCache[V]) set(key string, value V, degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[V]{key: key, value: c.clone(value), degraded: degraded, inserted: c.opts.now()}
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(e)
	if c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
		c.evictions++
	}
}

// Delete removes key if present.
func (c *QueryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of stored entries, including degraded entries not yet expired on read.
func (c *QueryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge removes every entry. Counters are kept.
func (c *QueryCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Stats returns a snapshot of the cache counters.
func (c *QueryCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
}

func (c *QueryCache[V]) isExpired(e *entry[V]) bool {
	return e.degraded && c.opts.degradedTTL > 0 && c.opts.now().Sub(e.inserted) >= c.opts.degradedTTL
}

func (c *QueryCache[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
