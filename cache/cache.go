package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/stockroom/engine"
)

// entry holds a cached fetch result with its creation timestamp.
type entry struct {
	result    *engine.FetchResult
	createdAt time.Time
}

// Cache is an in-memory TTL cache for fetch results. A dry run and the
// real run that follows it hit the same catalog pages; caching those
// fetches lets the pair see one snapshot of the retailer.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	done       chan struct{}
}

// New creates a Cache holding at most maxEntries results for ttl each.
// A background goroutine evicts expired entries every 5 minutes.
// A ttl <= 0 disables lookups entirely.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from the page URL and the accept mode the
// adapter requested. The same URL fetched as HTML and as JSON are
// different documents.
func Key(url, accept string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(accept))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached result if it exists and is younger than the
// cache TTL. Returns the result and whether it was a hit.
func (c *Cache) Get(key string) (*engine.FetchResult, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > c.ttl {
		return nil, false
	}

	// Copy so callers cannot mutate the cached result.
	out := *e.result
	return &out, true
}

// Set stores a result. If the cache is at capacity, a random entry is
// evicted to make room (map iteration is random in Go).
func (c *Cache) Set(key string, result *engine.FetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	stored := *result
	c.store[key] = &entry{
		result:    &stored,
		createdAt: time.Now(),
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the cleanup goroutine.
func (c *Cache) Stop() {
	close(c.done)
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.ttl)
			c.mu.Lock()
			for k, e := range c.store {
				if e.createdAt.Before(cutoff) {
					delete(c.store, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
