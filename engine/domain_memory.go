package engine

import (
	"sync"
	"time"
)

type memoryEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine last fetched a retailer's pages
// successfully. A catalog run walks dozens of pages on one domain; after
// the first race settles, every following page goes straight to the
// winner. Entries expire so a site that changes its rendering gets
// re-raced.
type DomainMemory struct {
	store sync.Map // domain (string) -> *memoryEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts a
// background sweep that prunes expired entries.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go dm.sweepLoop()
	return dm
}

// Get returns the remembered engine name for a domain, or "" when
// unknown or expired.
func (dm *DomainMemory) Get(domain string) string {
	val, ok := dm.store.Load(domain)
	if !ok {
		return ""
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		dm.store.Delete(domain)
		return ""
	}
	return entry.engineName
}

// Set records the engine that just succeeded for a domain.
func (dm *DomainMemory) Set(domain, engineName string) {
	dm.store.Store(domain, &memoryEntry{
		engineName: engineName,
		expiresAt:  time.Now().Add(dm.ttl),
	})
}

// Delete forgets a domain, typically after its remembered engine failed.
func (dm *DomainMemory) Delete(domain string) {
	dm.store.Delete(domain)
}

// Len reports how many domains currently have a remembered engine.
func (dm *DomainMemory) Len() int {
	n := 0
	dm.store.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stop terminates the background sweep goroutine.
func (dm *DomainMemory) Stop() {
	close(dm.done)
}

func (dm *DomainMemory) sweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := time.Now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(*memoryEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}
