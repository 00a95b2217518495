package volume

import (
	"container/list"
	"sync"

	"github.com/seisvol/seisvol/internal/metrics"
)

// chunkCache is a bounded in-process LRU over decompressed chunks.
// Entries are immutable after insertion; the mutex only orders recency
// bookkeeping and eviction. Capacity is counted in chunks.
type chunkCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[int]*list.Element
}

type cacheEntry struct {
	key  int
	data []float32
}

func newChunkCache(capacity int) *chunkCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &chunkCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[int]*list.Element, capacity),
	}
}

func (c *chunkCache) get(key int) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		metrics.CacheMisses.WithLabelValues("local").Inc()
		return nil, false
	}
	c.order.MoveToFront(el)
	metrics.CacheHits.WithLabelValues("local").Inc()
	return el.Value.(*cacheEntry).data, true
}

func (c *chunkCache) add(key int, data []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, data: data})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
		metrics.CacheEvictions.Inc()
	}
}

func (c *chunkCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
