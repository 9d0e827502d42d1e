package connectclient

import (
	"sync"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
)

// CacheKey identifies one (caller, home) connection.
type CacheKey struct {
	Caller claimmodel.ProfileId
	Home   claimmodel.ProfileId
}

// HomeConnectionCache reuses live Home proxies across ConnectToHome calls
// for the same (caller, home) pair.
type HomeConnectionCache struct {
	mu    sync.Mutex
	conns map[CacheKey]*Home
}

// NewHomeConnectionCache returns an empty cache.
func NewHomeConnectionCache() *HomeConnectionCache {
	return &HomeConnectionCache{conns: make(map[CacheKey]*Home)}
}

// Get returns the cached Home for key, if any.
func (c *HomeConnectionCache) Get(key CacheKey) (*Home, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.conns[key]
	return h, ok
}

// Put caches h under key, replacing (and closing) any prior entry.
func (c *HomeConnectionCache) Put(key CacheKey, h *Home) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.conns[key]; ok && old != h {
		_ = old.Close()
	}
	c.conns[key] = h
}

// Evict removes key from the cache, closing its connection.
func (c *HomeConnectionCache) Evict(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.conns[key]; ok {
		_ = h.Close()
		delete(c.conns, key)
	}
}
