package engine

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// PageHandle tracks the health of one pooled browser page.
type PageHandle struct {
	ID int64

	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

func newPageHandle(id int64) *PageHandle {
	return &PageHandle{ID: id, created: time.Now()}
}

// recordUse applies one fetch outcome. Failures raise the error score
// twice as fast as successes repair it, so a flaky page still trends
// toward retirement.
func (h *PageHandle) recordUse(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	if success {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore += 1.0
	}
}

func (h *PageHandle) health() (errScore float64, useCount int, age time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore, h.useCount, time.Since(h.created)
}

// AdaptivePoolConfig holds pool sizing and page retirement knobs.
type AdaptivePoolConfig struct {
	MinPages     int
	HardMax      int
	MemThreshold float64 // 0.0–1.0, heap-in-use fraction that triggers shrinking
	ScaleStep    float64 // 0.0–1.0, fraction of pool size to grow/shrink by

	// Retirement triggers; any one is enough.
	MaxErrScore float64
	MaxUses     int
	MaxAge      time.Duration
}

func (c *AdaptivePoolConfig) applyDefaults() {
	if c.MinPages < 1 {
		c.MinPages = 1
	}
	if c.HardMax < c.MinPages {
		c.HardMax = c.MinPages
	}
	if c.MemThreshold <= 0 {
		c.MemThreshold = 0.9
	}
	if c.ScaleStep <= 0 {
		c.ScaleStep = 0.05
	}
	if c.MaxErrScore <= 0 {
		c.MaxErrScore = 3.0
	}
	if c.MaxUses <= 0 {
		c.MaxUses = 50
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 50 * time.Minute
	}
}

// PageFactory creates a new page and returns its handle ID.
// The caller owns the underlying resource.
type PageFactory func() (int64, error)

// PageDestroyer closes a page by its handle ID.
type PageDestroyer func(id int64)

// AdaptivePool manages browser page handles: scaling follows memory
// pressure and utilization, and unhealthy pages are retired and
// replaced instead of poisoning later fetches.
type AdaptivePool struct {
	cfg       AdaptivePoolConfig
	factory   PageFactory
	destroyer PageDestroyer

	idle    chan *PageHandle
	mu      sync.Mutex
	all     map[int64]*PageHandle
	active  atomic.Int32
	stopped chan struct{}
}

// NewAdaptivePool creates and starts a pool, pre-creating MinPages
// handles through the factory.
func NewAdaptivePool(cfg AdaptivePoolConfig, factory PageFactory, destroyer PageDestroyer) (*AdaptivePool, error) {
	cfg.applyDefaults()

	ap := &AdaptivePool{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		idle:      make(chan *PageHandle, cfg.HardMax),
		all:       make(map[int64]*PageHandle),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinPages; i++ {
		h, err := ap.createHandle()
		if err != nil {
			slog.Warn("adaptive_pool: failed to pre-create page", "error", err)
			continue
		}
		ap.idle <- h
	}

	go ap.scalingLoop()
	return ap, nil
}

// Get acquires a page handle. It prefers an idle one, creates a fresh
// one while under HardMax, and blocks otherwise.
func (ap *AdaptivePool) Get() (*PageHandle, error) {
	select {
	case h := <-ap.idle:
		ap.active.Add(1)
		return h, nil
	default:
	}

	ap.mu.Lock()
	if len(ap.all) < ap.cfg.HardMax {
		h, err := ap.createHandleLocked()
		ap.mu.Unlock()
		if err == nil {
			ap.active.Add(1)
			return h, nil
		}
		// Creation failed; fall through to the blocking wait.
	} else {
		ap.mu.Unlock()
	}

	h := <-ap.idle
	ap.active.Add(1)
	return h, nil
}

// Put returns a handle with the outcome of its use. Pages past their
// retirement thresholds are destroyed, and replaced when the pool would
// drop under its minimum.
func (ap *AdaptivePool) Put(h *PageHandle, success bool) {
	ap.active.Add(-1)
	h.recordUse(success)

	if ap.shouldRetire(h) {
		errScore, useCount, age := h.health()
		slog.Debug("adaptive_pool: retiring page",
			"id", h.ID, "errScore", errScore, "useCount", useCount, "age", age)
		ap.destroyHandle(h)

		ap.mu.Lock()
		if len(ap.all) < ap.cfg.MinPages {
			if fresh, err := ap.createHandleLocked(); err == nil {
				ap.mu.Unlock()
				ap.idle <- fresh
				return
			}
		}
		ap.mu.Unlock()
		return
	}

	ap.idle <- h
}

func (ap *AdaptivePool) shouldRetire(h *PageHandle) bool {
	errScore, useCount, age := h.health()
	return errScore >= ap.cfg.MaxErrScore ||
		useCount >= ap.cfg.MaxUses ||
		age >= ap.cfg.MaxAge
}

// Size returns the total number of live handles.
func (ap *AdaptivePool) Size() int {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return len(ap.all)
}

// ActiveCount returns the number of currently checked-out handles.
func (ap *AdaptivePool) ActiveCount() int {
	return int(ap.active.Load())
}

// Stop shuts down the scaling goroutine and destroys all handles.
func (ap *AdaptivePool) Stop() {
	close(ap.stopped)

drainLoop:
	for {
		select {
		case h := <-ap.idle:
			ap.destroyHandle(h)
		default:
			break drainLoop
		}
	}

	// Checked-out handles are destroyed too; callers holding them are
	// already failing their fetches at shutdown.
	ap.mu.Lock()
	for id, h := range ap.all {
		ap.destroyer(h.ID)
		delete(ap.all, id)
	}
	ap.mu.Unlock()
}

func (ap *AdaptivePool) createHandle() (*PageHandle, error) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.createHandleLocked()
}

// createHandleLocked creates a new handle. Caller must hold ap.mu.
func (ap *AdaptivePool) createHandleLocked() (*PageHandle, error) {
	id, err := ap.factory()
	if err != nil {
		return nil, err
	}
	h := newPageHandle(id)
	ap.all[id] = h
	return h, nil
}

func (ap *AdaptivePool) destroyHandle(h *PageHandle) {
	ap.mu.Lock()
	delete(ap.all, h.ID)
	ap.mu.Unlock()
	ap.destroyer(h.ID)
}

// scalingLoop periodically samples memory and adjusts the pool size.
func (ap *AdaptivePool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ap.stopped:
			return
		case <-ticker.C:
			ap.scaleCheck()
		}
	}
}

func (ap *AdaptivePool) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Memory pressure estimated as HeapInuse / HeapSys.
	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	ap.mu.Lock()
	totalSize := len(ap.all)
	ap.mu.Unlock()

	active := int(ap.active.Load())
	var activeRate float64
	if totalSize > 0 {
		activeRate = float64(active) / float64(totalSize)
	}

	switch {
	case memPressure > ap.cfg.MemThreshold:
		// Shrink: close idle pages.
		shrinkCount := int(math.Ceil(float64(totalSize) * ap.cfg.ScaleStep))
		for i := 0; i < shrinkCount; i++ {
			ap.mu.Lock()
			if len(ap.all) <= ap.cfg.MinPages {
				ap.mu.Unlock()
				return
			}
			ap.mu.Unlock()

			select {
			case h := <-ap.idle:
				slog.Debug("adaptive_pool: shrinking, retiring page", "id", h.ID)
				ap.destroyHandle(h)
			default:
				return
			}
		}
	case activeRate > 0.8:
		// Grow: add pages while under the hard max.
		growCount := int(math.Ceil(float64(totalSize) * ap.cfg.ScaleStep))
		for i := 0; i < growCount; i++ {
			ap.mu.Lock()
			if len(ap.all) >= ap.cfg.HardMax {
				ap.mu.Unlock()
				return
			}
			h, err := ap.createHandleLocked()
			ap.mu.Unlock()
			if err != nil {
				slog.Warn("adaptive_pool: failed to grow", "error", err)
				return
			}
			slog.Debug("adaptive_pool: grew pool", "id", h.ID)
			ap.idle <- h
		}
	}
}
