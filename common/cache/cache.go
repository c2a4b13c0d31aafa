/*
	Bounded TTL cache package

	LRU eviction based off information obtained from:

	https://girai.dev/blog/lru-cache-implementation-in-go/
	https://en.wikipedia.org/wiki/Cache_replacement_policies#Least_recently_used_(LRU)
*/

package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTL is a concurrent-safe bounded cache whose entries expire after a fixed
// lifetime. When the capacity is exceeded the least recently used entry is
// evicted first.
type TTL struct {
	mu    sync.Mutex
	cap   uint64
	ttl   time.Duration
	l     *list.List
	items map[any]*list.Element
	now   func() time.Time
}

type item struct {
	key      any
	value    any
	deadline time.Time
}

// NewTTLCache returns a new concurrent-safe cache with input capacity whose
// entries expire ttl after insertion
func NewTTLCache(capacity uint64, ttl time.Duration) *TTL {
	return &TTL{
		cap:   capacity,
		ttl:   ttl,
		l:     list.New(),
		items: make(map[any]*list.Element),
		now:   time.Now,
	}
}

// Add adds a value to the cache, resetting its expiry
func (c *TTL) Add(key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.ttl)
	if f, o := c.items[key]; o {
		c.l.MoveToFront(f)
		if v, ok := f.Value.(*item); ok {
			v.value = value
			v.deadline = deadline
		}
		return
	}

	newItem := &item{key, value, deadline}
	itemList := c.l.PushFront(newItem)
	c.items[key] = itemList
	if uint64(c.l.Len()) > c.cap {
		c.removeOldestEntry()
	}
}

// Get returns the value stored under key, or nil when absent or expired.
// Expired entries are dropped on access.
func (c *TTL) Get(key any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, f := c.items[key]
	if !f {
		return nil
	}
	v, ok := i.Value.(*item)
	if !ok {
		return nil
	}
	if c.now().After(v.deadline) {
		c.removeElement(i)
		return nil
	}
	c.l.MoveToFront(i)
	return v.value
}

// Contains checks if key is in cache without updating recency or expiry
func (c *TTL) Contains(key any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, f := c.items[key]
	return f
}

// Remove removes key from the cache, reporting whether it was present
func (c *TTL) Remove(key any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, f := c.items[key]; f {
		c.removeElement(i)
		return true
	}
	return false
}

// Clear is used to completely clear the cache
func (c *TTL) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[any]*list.Element)
	c.l.Init()
}

// Len returns the number of entries, expired ones included
func (c *TTL) Len() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.l.Len())
}

// removeOldestEntry removes the least recently used item from the cache.
// Callers must hold mu.
func (c *TTL) removeOldestEntry() {
	if i := c.l.Back(); i != nil {
		c.removeElement(i)
	}
}

// removeElement removes an element from the cache. Callers must hold mu.
func (c *TTL) removeElement(e *list.Element) {
	c.l.Remove(e)
	if v, ok := e.Value.(*item); ok {
		delete(c.items, v.key)
	}
}
