package graph

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 200
)

type cacheKey struct {
	question   string
	threshold  float64
	maxResults int
}

type cacheEntry struct {
	key       cacheKey
	ids       []scoredID
	expiresAt time.Time
}

// CacheStats is a snapshot of query-cache effectiveness.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// queryCache memoizes retriever results as id lists, TTL- and
// LRU-bounded. Caching ids instead of formatted text keeps entries
// small and lets hydration pick up node changes.
type queryCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*list.Element
	order   *list.List // front = most recently used
	ttl     time.Duration
	maxSize int

	hits      int64
	misses    int64
	evictions int64
}

func newQueryCache(ttl time.Duration, maxSize int) *queryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &queryCache{
		entries: make(map[cacheKey]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

func (c *queryCache) get(key cacheKey) ([]scoredID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return entry.ids, true
}

func (c *queryCache) put(key cacheKey, ids []scoredID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).ids = ids
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions++
	}

	el := c.order.PushFront(&cacheEntry{
		key:       key,
		ids:       ids,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = el
}

func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*list.Element)
	c.order.Init()
}

func (c *queryCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}
