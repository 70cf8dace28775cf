package util

import (
	"container/list"
	"fmt"
	"sync"
)

// entry holds the data stored in a list node.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a generic, thread-safe cache bounded by entry count. The
// least recently used entry is evicted when the cache is full.
type LRUCache[K comparable, V any] struct {
	capacity int
	ll       *list.List
	cache    map[K]*list.Element
	lock     sync.Mutex
}

// NewLRU creates a cache holding at most capacity entries.
func NewLRU[K comparable, V any](capacity int) (*LRUCache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		ll:       list.New(),
		cache:    make(map[K]*list.Element),
	}, nil
}

// Get looks up a value by key and marks it as recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.cache[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToFront(element)
	return element.Value.(*entry[K, V]).value, true
}

// Put adds or updates a key/value pair, evicting the least recently
// used entry when the cache is over capacity.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if element, ok := c.cache[key]; ok {
		element.Value.(*entry[K, V]).value = value
		c.ll.MoveToFront(element)
		return
	}

	c.cache[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value})
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.cache, oldest.Value.(*entry[K, V]).key)
	}
}

// Len returns the current number of entries.
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}
