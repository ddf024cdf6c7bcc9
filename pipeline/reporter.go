package pipeline

import (
	"sync"

	"github.com/use-agent/stockroom/store"
)

// Failure kinds recorded in ItemFailure entries.
const (
	FailureKindNormalization = "normalization"
)

// ItemFailure records one item that could not be ingested, with enough
// context to fix the source upstream without re-running the catalog.
type ItemFailure struct {
	// Index is the item's zero-based position in fetch order.
	Index int `json:"index"`

	// ExternalID identifies the item when the raw data carried one.
	ExternalID string `json:"external_id,omitempty"`

	// Kind names the failure class, e.g. "normalization".
	Kind string `json:"kind"`

	// Message is the underlying error text.
	Message string `json:"message"`
}

// Report summarizes one ingestion run: how many items the adapter
// produced and what happened to each.
type Report struct {
	Seen     int           `json:"seen"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Reporter accumulates run outcomes incrementally, so a long catalog
// ingestion can expose live progress while it is still walking pages.
// Safe for concurrent use: the pipeline writes while API pollers read.
type Reporter struct {
	mu       sync.Mutex
	seen     int
	created  int
	updated  int
	skipped  int
	failures []ItemFailure
}

// NewReporter returns an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// ItemSeen counts one raw item produced by the adapter.
func (r *Reporter) ItemSeen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
}

// Decided counts one upsert decision.
func (r *Reporter) Decided(d store.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch d {
	case store.DecisionCreated:
		r.created++
	case store.DecisionUpdated:
		r.updated++
	case store.DecisionSkipped:
		r.skipped++
	}
}

// ItemFailed records one item that did not survive ingestion.
func (r *Reporter) ItemFailed(index int, externalID, kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, ItemFailure{
		Index:      index,
		ExternalID: externalID,
		Kind:       kind,
		Message:    err.Error(),
	})
}

// Snapshot returns the current counts. The returned report is a copy;
// the run keeps accumulating.
func (r *Reporter) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{
		Seen:    r.seen,
		Created: r.created,
		Updated: r.updated,
		Skipped: r.skipped,
		Failed:  len(r.failures),
	}
	if len(r.failures) > 0 {
		report.Failures = make([]ItemFailure, len(r.failures))
		copy(report.Failures, r.failures)
	}
	return report
}

// Final returns the finished report. It is a copy like Snapshot; the
// name marks the call site where accumulation has ended.
func (r *Reporter) Final() Report {
	return r.Snapshot()
}
