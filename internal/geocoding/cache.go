package geocoding

import (
	"container/list"
	"sync"

	"github.com/paulmach/orb"
)

// Cache is a bounded, evictable coordinate cache. It is owned by whoever
// constructs the geocoder and passed in explicitly; nothing global. When full
// it evicts the least recently used address.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
}

type cacheEntry struct {
	key   string
	point orb.Point
}

// NewCache creates a cache holding at most maxEntries addresses.
func NewCache(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the cached coordinates for key, if present.
func (c *Cache) Get(key string) (orb.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return orb.Point{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).point, true
}

// Put stores coordinates for key, evicting the least recently used entry
// when the cache is full.
func (c *Cache) Put(key string, point orb.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).point = point
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, point: point})

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
