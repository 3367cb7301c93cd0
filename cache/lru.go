package cache

import (
	"container/list"
	"sync"
	"time"

	"tradeflow/models"
)

// lruEntry is one tier-1 cache slot.
type lruEntry struct {
	key       string
	series    *models.Series
	writeTime time.Time
}

// lruCache is the bounded in-process tier. Values are deep-copied on both
// insert and lookup so callers can never mutate cached state.
type lruCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	items   map[string]*list.Element
}

func newLRUCache(maxSize int) *lruCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &lruCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}
}

// get returns a copy of the cached series and refreshes its LRU position.
func (c *lruCache) get(key string) (*models.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).series.Clone(), true
}

// put stores a copy of the series, evicting the least-recently-used entry
// when the cache is full.
func (c *lruCache) put(key string, series *models.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.series = series.Clone()
		entry.writeTime = time.Now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}

	el := c.order.PushFront(&lruEntry{
		key:       key,
		series:    series.Clone(),
		writeTime: time.Now(),
	})
	c.items[key] = el
}

// contains reports tier-1 membership without touching LRU order.
func (c *lruCache) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
