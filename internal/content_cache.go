package internal

import (
	"sync"
	"sync/atomic"
)

// ContentCache holds payloads written by the mutation in flight so readers
// see them before the store commit lands. Callers serialize mutations; an
// overlapping StartMutation is a caller error and is only logged.
type ContentCache struct {
	mu       sync.RWMutex
	payloads map[string]Payload
	active   bool
	log      componentLog

	lookups   atomic.Int64
	hits      atomic.Int64
	mutations atomic.Int64
}

// NewContentCache creates an empty cache
func NewContentCache() *ContentCache {
	return &ContentCache{
		payloads: make(map[string]Payload),
		log:      newComponentLog("ContentCache"),
	}
}

// StartMutation clears the cache and opens the mutation window
func (c *ContentCache) StartMutation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.log.warnf("StartMutation called while a mutation is in flight")
	}
	clear(c.payloads)
	c.active = true
	c.mutations.Add(1)
}

// FinishMutation clears the cache and closes the window
func (c *ContentCache) FinishMutation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.payloads)
	c.active = false
}

// Put stores a payload and returns the previous one, if any. Outside a
// mutation window the write is dropped.
func (c *ContentCache) Put(contentID string, payload Payload) (Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.log.debugf("Dropping put of %s outside a mutation", contentID)
		return Payload{}, false
	}
	prev, ok := c.payloads[contentID]
	c.payloads[contentID] = payload
	return prev, ok
}

// Get returns the cached payload for contentID
func (c *ContentCache) Get(contentID string) (Payload, bool) {
	c.lookups.Add(1)
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.payloads[contentID]
	if ok {
		c.hits.Add(1)
	}
	return p, ok
}

// Size returns the number of cached payloads
func (c *ContentCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.payloads)
}

// ContentCacheStats is a diagnostics snapshot
type ContentCacheStats struct {
	Lookups   int64 `json:"lookups"`
	Hits      int64 `json:"hits"`
	Mutations int64 `json:"mutations"`
	Size      int   `json:"size"`
}

// Stats returns the cache counters
func (c *ContentCache) Stats() ContentCacheStats {
	return ContentCacheStats{
		Lookups:   c.lookups.Load(),
		Hits:      c.hits.Load(),
		Mutations: c.mutations.Load(),
		Size:      c.Size(),
	}
}
