package engine

import (
	"sync"
	"testing"
	"time"
)

// fakePages is a PageFactory/PageDestroyer pair backed by a counter.
type fakePages struct {
	mu        sync.Mutex
	nextID    int64
	created   []int64
	destroyed []int64
}

func (f *fakePages) factory() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, f.nextID)
	return f.nextID, nil
}

func (f *fakePages) destroyer(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, id)
}

func (f *fakePages) wasDestroyed(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.destroyed {
		if d == id {
			return true
		}
	}
	return false
}

func newTestPool(t *testing.T, cfg AdaptivePoolConfig) (*AdaptivePool, *fakePages) {
	t.Helper()
	pages := &fakePages{}
	pool, err := NewAdaptivePool(cfg, pages.factory, pages.destroyer)
	if err != nil {
		t.Fatalf("NewAdaptivePool: %v", err)
	}
	t.Cleanup(pool.Stop)
	return pool, pages
}

func TestAdaptivePool_PreCreatesMinPages(t *testing.T) {
	pool, pages := newTestPool(t, AdaptivePoolConfig{MinPages: 3, HardMax: 5})

	if pool.Size() != 3 {
		t.Errorf("Size = %d, want 3", pool.Size())
	}
	if len(pages.created) != 3 {
		t.Errorf("factory called %d times, want 3", len(pages.created))
	}
}

func TestAdaptivePool_GetCreatesUpToHardMax(t *testing.T) {
	pool, _ := newTestPool(t, AdaptivePoolConfig{MinPages: 1, HardMax: 2})

	h1, err := pool.Get()
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	h2, err := pool.Get()
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if h1.ID == h2.ID {
		t.Error("two concurrent Gets returned the same handle")
	}
	if pool.Size() != 2 {
		t.Errorf("Size = %d, want 2", pool.Size())
	}
	if pool.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2", pool.ActiveCount())
	}

	pool.Put(h1, true)
	pool.Put(h2, true)
	if pool.ActiveCount() != 0 {
		t.Errorf("ActiveCount after Put = %d, want 0", pool.ActiveCount())
	}
}

func TestAdaptivePool_RetiresAfterMaxUses(t *testing.T) {
	pool, pages := newTestPool(t, AdaptivePoolConfig{MinPages: 1, HardMax: 2, MaxUses: 2})

	h, _ := pool.Get()
	firstID := h.ID
	pool.Put(h, true)

	h, _ = pool.Get()
	if h.ID != firstID {
		t.Fatalf("Get returned handle %d, want the idle handle %d", h.ID, firstID)
	}
	pool.Put(h, true) // second use hits MaxUses

	if !pages.wasDestroyed(firstID) {
		t.Errorf("handle %d not destroyed after reaching MaxUses", firstID)
	}
	// The pool replaces the retiree to stay at MinPages.
	if pool.Size() != 1 {
		t.Errorf("Size after retirement = %d, want 1", pool.Size())
	}
	h, _ = pool.Get()
	if h.ID == firstID {
		t.Error("retired handle came back out of the pool")
	}
	pool.Put(h, true)
}

func TestAdaptivePool_RetiresOnErrorScore(t *testing.T) {
	pool, pages := newTestPool(t, AdaptivePoolConfig{MinPages: 1, HardMax: 2, MaxErrScore: 1.0})

	h, _ := pool.Get()
	id := h.ID
	pool.Put(h, false)

	if !pages.wasDestroyed(id) {
		t.Errorf("handle %d not destroyed after error score threshold", id)
	}
}

func TestAdaptivePool_RetiresOnAge(t *testing.T) {
	pool, pages := newTestPool(t, AdaptivePoolConfig{MinPages: 1, HardMax: 2, MaxAge: time.Millisecond})

	h, _ := pool.Get()
	id := h.ID
	time.Sleep(5 * time.Millisecond)
	pool.Put(h, true)

	if !pages.wasDestroyed(id) {
		t.Errorf("handle %d not destroyed after MaxAge", id)
	}
}

func TestAdaptivePool_StopDestroysEverything(t *testing.T) {
	pages := &fakePages{}
	pool, err := NewAdaptivePool(AdaptivePoolConfig{MinPages: 2, HardMax: 4}, pages.factory, pages.destroyer)
	if err != nil {
		t.Fatalf("NewAdaptivePool: %v", err)
	}

	pool.Stop()

	if pool.Size() != 0 {
		t.Errorf("Size after Stop = %d, want 0", pool.Size())
	}
	pages.mu.Lock()
	destroyed := len(pages.destroyed)
	pages.mu.Unlock()
	if destroyed != 2 {
		t.Errorf("destroyed %d handles, want 2", destroyed)
	}
}

func TestPageHandle_RecordUse(t *testing.T) {
	h := newPageHandle(1)

	h.recordUse(false)
	h.recordUse(false)
	h.recordUse(true)

	errScore, useCount, _ := h.health()
	if errScore != 1.5 {
		t.Errorf("errScore = %v, want 1.5", errScore)
	}
	if useCount != 3 {
		t.Errorf("useCount = %d, want 3", useCount)
	}
}
