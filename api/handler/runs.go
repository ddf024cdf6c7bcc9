package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stockroom/models"
	"github.com/use-agent/stockroom/pipeline"
)

// runEntry pairs a run with the cancel function of its execution
// context, so the cancel endpoint can reach a background run.
type runEntry struct {
	run    *pipeline.Run
	cancel context.CancelFunc
}

// RunStore tracks recent ingestion runs for polling and cancellation.
// Terminal runs expire after the configured TTL; live runs never expire.
type RunStore struct {
	ttl  time.Duration
	runs sync.Map // run ID -> *runEntry
}

// NewRunStore creates a run store and starts a background goroutine
// that expires terminal runs older than ttl, checking every 5 minutes.
func NewRunStore(ttl time.Duration) *RunStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &RunStore{ttl: ttl}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-s.ttl)
			s.runs.Range(func(key, value any) bool {
				snap := value.(*runEntry).run.Snapshot()
				if snap.State.Terminal() && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
					s.runs.Delete(key)
				}
				return true
			})
		}
	}()
	return s
}

// Add registers a run together with its cancel function.
func (s *RunStore) Add(run *pipeline.Run, cancel context.CancelFunc) {
	s.runs.Store(run.ID, &runEntry{run: run, cancel: cancel})
}

// Get returns the run for an ID.
func (s *RunStore) Get(id string) (*pipeline.Run, bool) {
	v, ok := s.runs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*runEntry).run, true
}

// Cancel cancels the run's execution context. Cancellation is
// cooperative: the pipeline notices between items, so the run may
// still complete if it was already past its last item. Cancelling a
// terminal run is a no-op. The second return is false for unknown IDs.
func (s *RunStore) Cancel(id string) (*pipeline.Run, bool) {
	v, ok := s.runs.Load(id)
	if !ok {
		return nil, false
	}
	entry := v.(*runEntry)
	entry.cancel()
	return entry.run, true
}

// Snapshots returns every tracked run, newest first.
func (s *RunStore) Snapshots() []pipeline.Snapshot {
	snaps := []pipeline.Snapshot{}
	s.runs.Range(func(_, value any) bool {
		snaps = append(snaps, value.(*runEntry).run.Snapshot())
		return true
	})
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartedAt.After(snaps[j].StartedAt)
	})
	return snaps
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(runs *RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		run, ok := runs.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, models.RunResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRunNotFound,
					Message: "run not found: " + id,
				},
			})
			return
		}
		snap := run.Snapshot()
		c.JSON(http.StatusOK, models.RunResponse{Success: true, Run: &snap})
	}
}

// ListRuns returns a handler for GET /api/v1/runs.
func ListRuns(runs *RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		snaps := runs.Snapshots()
		c.JSON(http.StatusOK, models.RunListResponse{
			Success: true,
			Count:   len(snaps),
			Runs:    snaps,
		})
	}
}

// CancelRun returns a handler for POST /api/v1/runs/:id/cancel.
//
// The response snapshot is taken right after signalling; pollers see
// the run move to failed once the pipeline reaches its next checkpoint.
func CancelRun(runs *RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		run, ok := runs.Cancel(id)
		if !ok {
			c.JSON(http.StatusNotFound, models.RunResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRunNotFound,
					Message: "run not found: " + id,
				},
			})
			return
		}
		snap := run.Snapshot()
		c.JSON(http.StatusOK, models.RunResponse{Success: true, Run: &snap})
	}
}
