// Package cache provides small in-process caches.
package cache

import (
	"container/list"
	"sync"
)

// LRUCache evicts the least recently used entry once maxSize is exceeded.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key  string
	data T
}

func NewLRUCache[T any](maxSize int) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		var zero T
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheItem[T]).data, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		elem.Value = &cacheItem[T]{key: key, data: data}
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(&cacheItem[T]{key: key, data: data})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		delete(c.items, oldest.Value.(*cacheItem[T]).key)
		c.lru.Remove(oldest)
	}
}

// Purge empties the cache.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}
