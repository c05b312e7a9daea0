package shapestore

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// StoreCache keeps a bounded number of stores open and closes the least
// recently used one when a new store would exceed the bound.
//
// A store handed out by the cache stays usable until it is evicted.
// Result sets already open on an evicted store run to completion.
//
// Example:
//
//	cache := shapestore.NewStoreCache(16)
//	defer cache.Clear()
//
//	store, err := cache.Get("roads", func() (*shapestore.Store, error) {
//	    return shapestore.Open("/data/roads.shp", shapestore.DefaultOptions())
//	})
type StoreCache struct {
	maxOpen int
	stores  map[string]*cacheEntry
	lru     *list.List // most recent at front
	hits    int
	misses  int
	mu      sync.Mutex
}

type cacheEntry struct {
	name         string
	store        *Store
	element      *list.Element
	lastAccessed time.Time
	accessCount  int
}

// NewStoreCache returns a cache holding at most maxOpen stores. Zero or
// less means no limit.
func NewStoreCache(maxOpen int) *StoreCache {
	return &StoreCache{
		maxOpen: maxOpen,
		stores:  make(map[string]*cacheEntry),
		lru:     list.New(),
	}
}

// Get returns the cached store called name, or opens it with loader and
// caches it. The loader runs without the cache lock held.
func (c *StoreCache) Get(name string, loader func() (*Store, error)) (*Store, error) {
	c.mu.Lock()
	if entry, ok := c.stores[name]; ok {
		c.touch(entry)
		c.hits++
		c.mu.Unlock()
		return entry.store, nil
	}
	c.misses++
	c.mu.Unlock()

	s, err := loader()
	if err != nil {
		return nil, fmt.Errorf("load store %s: %w", name, err)
	}
	return c.Add(name, s), nil
}

// Add caches s under name and returns the cached store. When another
// store was cached under name in the meantime, s is closed and the cached
// one returned.
func (c *StoreCache) Add(name string, s *Store) *Store {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.stores[name]; ok {
		c.touch(entry)
		if entry.store != s {
			s.Close()
		}
		return entry.store
	}

	if c.maxOpen > 0 {
		for c.lru.Len() >= c.maxOpen {
			c.evictLRU()
		}
	}

	entry := &cacheEntry{
		name:         name,
		store:        s,
		lastAccessed: time.Now(),
		accessCount:  1,
	}
	entry.element = c.lru.PushFront(entry)
	c.stores[name] = entry
	return s
}

// touch marks entry as most recently used. Callers hold c.mu.
func (c *StoreCache) touch(entry *cacheEntry) {
	entry.lastAccessed = time.Now()
	entry.accessCount++
	c.lru.MoveToFront(entry.element)
}

// evictLRU closes and removes the least recently used store. Callers hold
// c.mu.
func (c *StoreCache) evictLRU() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.stores, entry.name)
	entry.store.Close()
}

// Remove closes and drops the store called name.
func (c *StoreCache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.stores[name]; ok {
		c.lru.Remove(entry.element)
		delete(c.stores, name)
		entry.store.Close()
	}
}

// Clear closes and drops every cached store.
func (c *StoreCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.stores {
		entry.store.Close()
	}
	c.stores = make(map[string]*cacheEntry)
	c.lru.Init()
}

// Stats returns cache statistics.
func (c *StoreCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, entry := range c.stores {
		total += entry.accessCount
	}
	return CacheStats{
		Open:        len(c.stores),
		MaxOpen:     c.maxOpen,
		Hits:        c.hits,
		Misses:      c.misses,
		TotalAccess: total,
	}
}

// CacheStats describes the state of a StoreCache.
type CacheStats struct {
	Open        int // stores currently open
	MaxOpen     int // limit, 0 for none
	Hits        int
	Misses      int
	TotalAccess int // accesses across the stores currently cached
}
