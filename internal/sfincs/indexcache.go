package sfincs

import (
	"container/list"
	"fmt"
	"os"
	"sync"
)

// IndexLoader loads the active-cell index of a run.
type IndexLoader interface {
	LoadIndex(path string) (Index, error)
}

// IndexLoaderFunc adapts a function to IndexLoader.
type IndexLoaderFunc func(path string) (Index, error)

func (f IndexLoaderFunc) LoadIndex(path string) (Index, error) { return f(path) }

// FileIndexLoader reads index files from disk on every call.
var FileIndexLoader IndexLoader = IndexLoaderFunc(ReadIndex)

// CachedIndexLoader wraps an IndexLoader with an in-memory LRU cache. Scenario
// variants of one model share a grid, so a batch decodes each index file
// once. Entries are keyed by path, size and modification time so a rewritten
// file is read again.
type CachedIndexLoader struct {
	inner   IndexLoader
	cache   *lruCache
	observe func(hit bool)
}

// NewCachedIndexLoader creates a cache decorator around an index loader.
func NewCachedIndexLoader(inner IndexLoader, maxEntries int) *CachedIndexLoader {
	return &CachedIndexLoader{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedIndexLoader) LoadIndex(path string) (Index, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	idx, ok := c.cache.get(key)
	if c.observe != nil {
		c.observe(ok)
	}
	if ok {
		return idx, nil
	}
	idx, err = c.inner.LoadIndex(path)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, idx)
	return idx, nil
}

// OnLookup registers a callback invoked with the result of every cache lookup.
func (c *CachedIndexLoader) OnLookup(fn func(hit bool)) *CachedIndexLoader {
	c.observe = fn
	return c
}

// Len returns the number of cached indexes.
func (c *CachedIndexLoader) Len() int { return c.cache.len() }

// lruCache holds the most recently loaded indexes. Cached slices are shared
// between callers and must not be modified.
type lruCache struct {
	mu    sync.Mutex
	limit int
	order *list.List // front is most recently used
	byKey map[string]*list.Element
}

type cached struct {
	key string
	idx Index
}

func newLRUCache(limit int) *lruCache {
	return &lruCache{
		limit: max(limit, 1),
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cached).idx, true
}

func (c *lruCache) put(key string, idx Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byKey[key]; ok {
		el.Value.(*cached).idx = idx
		c.order.MoveToFront(el)
		return
	}
	c.byKey[key] = c.order.PushFront(&cached{key: key, idx: idx})
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.byKey, oldest.Value.(*cached).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
