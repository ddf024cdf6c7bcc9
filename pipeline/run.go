package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run is one ingestion execution: which brand, which catalog URL, where
// the run currently is, and the live report. A Run is created by NewRun,
// driven once by Pipeline.Execute, and stays readable afterwards for
// polling. It lives only in memory; the report is all that outlasts it.
type Run struct {
	// ID identifies the run for API polling and cancellation.
	ID string

	// BrandSlug is the registry key the run resolves its adapter by.
	BrandSlug string

	// SourceURL is the catalog or category URL handed to the adapter.
	SourceURL string

	// DryRun marks a run that classifies without writing.
	DryRun bool

	reporter *Reporter

	mu         sync.Mutex
	brandName  string
	state      State
	startedAt  time.Time
	finishedAt time.Time
	err        error
}

// Snapshot is a point-in-time view of a run, safe to serialize while
// the run is still moving.
type Snapshot struct {
	ID         string     `json:"id"`
	BrandSlug  string     `json:"brand_slug"`
	BrandName  string     `json:"brand_name,omitempty"`
	SourceURL  string     `json:"source_url"`
	DryRun     bool       `json:"dry_run"`
	State      State      `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Report     Report     `json:"report"`
}

// NewRun creates a run in the started state. brandName is informational
// and may be empty; Execute fills it from the registry then.
func NewRun(url, brandName, brandSlug string, dryRun bool) *Run {
	return &Run{
		ID:        uuid.NewString(),
		BrandSlug: brandSlug,
		SourceURL: url,
		DryRun:    dryRun,
		reporter:  NewReporter(),
		brandName: brandName,
		state:     StateStarted,
		startedAt: time.Now().UTC(),
	}
}

// State returns the run's current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the run-fatal error, or nil while the run is live or
// after it completed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Snapshot captures the run's current state and report.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	snap := Snapshot{
		ID:        r.ID,
		BrandSlug: r.BrandSlug,
		BrandName: r.brandName,
		SourceURL: r.SourceURL,
		DryRun:    r.DryRun,
		State:     r.state,
		StartedAt: r.startedAt,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		snap.FinishedAt = &t
	}
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	r.mu.Unlock()

	snap.Report = r.reporter.Snapshot()
	return snap
}

// setBrandName fills the informational brand name when the caller left
// it empty.
func (r *Run) setBrandName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.brandName == "" {
		r.brandName = name
	}
}

// setState moves the run forward. Illegal moves are logged and ignored
// so a bug cannot resurrect a terminal run.
func (r *Run) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.state, s) {
		slog.Error("pipeline: illegal state transition",
			"run_id", r.ID, "from", string(r.state), "to", string(s))
		return
	}
	r.state = s
}

// finish moves the run to its terminal state: failed when err is
// non-nil, completed otherwise. Calling finish on a finished run is a
// no-op; the first outcome wins.
func (r *Run) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	if err != nil {
		r.state = StateFailed
		r.err = err
	} else {
		if !CanTransition(r.state, StateCompleted) {
			slog.Error("pipeline: illegal completion",
				"run_id", r.ID, "from", string(r.state))
		}
		r.state = StateCompleted
	}
	r.finishedAt = time.Now().UTC()
}
