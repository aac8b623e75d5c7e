package barstore

import (
	"container/list"
	"sync"
)

// DefaultRecentCapacity is the number of records kept in memory.
const DefaultRecentCapacity = 8

type recentEntry struct {
	key    string
	record Record
}

// RecentCache is a bounded LRU of recently served records.
// Records are copied on the way in and out so callers never share backing arrays.
type RecentCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

// NewRecentCache creates an LRU holding up to capacity records.
func NewRecentCache(capacity int) *RecentCache {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}

	return &RecentCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Get returns a copy of the record for key and marks it most recently used.
func (c *RecentCache) Get(key CacheKey) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key.String()]
	if !ok {
		return Record{}, false
	}

	c.order.MoveToFront(el)

	return el.Value.(*recentEntry).record.Clone(), true
}

// Put stores a copy of record, evicting the least recently used entry when full.
func (c *RecentCache) Put(key CacheKey, record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()

	if el, ok := c.entries[k]; ok {
		el.Value.(*recentEntry).record = record.Clone()
		c.order.MoveToFront(el)

		return
	}

	c.entries[k] = c.order.PushFront(&recentEntry{key: k, record: record.Clone()})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*recentEntry).key)
	}
}

// Len returns the number of cached records.
func (c *RecentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}
