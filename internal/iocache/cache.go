// Package iocache implements the process-wide I/O cache: an LRU over
// opaque string keys where the caller declares each entry's byte cost.
// cmd/tlplay creates one Cache per process and hands it to the playback
// cache policy, which fills it and drives eviction; Readers and the I/O
// plugin registry do not hold it.
package iocache

import (
	"container/list"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type entry struct {
	key   string
	value interface{}
	size  int64
	pinned bool
}

// Cache is an LRU over byte-budgeted entries. It is not internally
// synchronized beyond single-call atomicity: concurrent callers must hold
// a higher-level lock, or restrict mutation to one thread as the spec's
// playback cache policy does in steady state. A sync.Mutex guards the
// list/map pair here only to make single-call atomicity actually hold.
type Cache struct {
	mu       sync.Mutex
	logger   hclog.Logger
	max      int64
	size     int64
	order    *list.List // front = most recently used
	elements map[string]*list.Element
}

// New constructs a Cache with the given byte budget.
func New(max int64, logger hclog.Logger) *Cache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cache{
		logger:   logger.Named("iocache"),
		max:      max,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
}

// Max returns the byte budget.
func (c *Cache) Max() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// SetMax changes the byte budget, evicting least-recently-used entries
// immediately if the new budget is smaller than the current size.
func (c *Cache) SetMax(max int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = max
	c.evictLocked()
}

// Size returns the total bytes currently stored.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Count returns the number of entries currently stored.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elements)
}

// Percentage returns Size()/Max() as a percentage, or 0 if Max is 0.
func (c *Cache) Percentage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max <= 0 {
		return 0
	}
	return float64(c.size) / float64(c.max) * 100
}

// Contains reports whether key is present, without affecting recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.elements[key]
	return ok
}

// Get returns the value for key, bumping its recency, or false if absent.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Add inserts or overwrites key with value at the declared size cost,
// evicting least-recently-used entries until size fits within max.
func (c *Cache) Add(key string, value interface{}, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		old := el.Value.(*entry)
		c.size -= old.size
		old.value = value
		old.size = size
		c.size += size
		c.order.MoveToFront(el)
		c.evictLocked()
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, size: size})
	c.elements[key] = el
	c.size += size
	c.evictLocked()
}

// Remove drops key if present, decrementing size.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeElementLocked(key)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.elements = make(map[string]*list.Element)
	c.size = 0
}

// Keys returns all keys, most-recently-used first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.elements))
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).key)
	}
	return out
}

// Values returns all stored values, most-recently-used first.
func (c *Cache) Values() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, 0, len(c.elements))
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).value)
	}
	return out
}

func (c *Cache) removeElementLocked(key string) {
	el, ok := c.elements[key]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.elements, key)
	c.size -= el.Value.(*entry).size
}

func (c *Cache) evictLocked() {
	el := c.order.Back()
	for c.size > c.max && el != nil {
		prev := el.Prev()
		e := el.Value.(*entry)
		if !e.pinned {
			c.logger.Debug("evicting cache entry", "key", e.key, "size", e.size)
			c.order.Remove(el)
			delete(c.elements, e.key)
			c.size -= e.size
		}
		el = prev
	}
}

// Pin marks key as exempt from eviction (used by the playback cache
// policy to protect entries inside the current read-ahead/read-behind
// window). Pinning a key that doesn't exist is a no-op.
func (c *Cache) Pin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[key]; ok {
		el.Value.(*entry).pinned = true
	}
}

// Unpin clears a key's eviction exemption set by Pin.
func (c *Cache) Unpin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[key]; ok {
		el.Value.(*entry).pinned = false
	}
}
