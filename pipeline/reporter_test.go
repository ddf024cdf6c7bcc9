package pipeline

import (
	"errors"
	"testing"

	"github.com/use-agent/stockroom/store"
)

func TestReporter_Counts(t *testing.T) {
	r := NewReporter()
	for i := 0; i < 4; i++ {
		r.ItemSeen()
	}
	r.Decided(store.DecisionCreated)
	r.Decided(store.DecisionUpdated)
	r.Decided(store.DecisionSkipped)
	r.ItemFailed(3, "sku-9", FailureKindNormalization, errors.New("missing title"))

	got := r.Snapshot()
	checkCounts(t, got, 4, 1, 1, 1, 1)
	if len(got.Failures) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(got.Failures))
	}
	f := got.Failures[0]
	if f.Index != 3 || f.ExternalID != "sku-9" || f.Kind != FailureKindNormalization || f.Message != "missing title" {
		t.Errorf("failure = %+v", f)
	}
}

func TestReporter_EmptyReportHasNoFailureSlice(t *testing.T) {
	got := NewReporter().Snapshot()
	checkCounts(t, got, 0, 0, 0, 0, 0)
	if got.Failures != nil {
		t.Errorf("Failures = %v, want nil so JSON omits it", got.Failures)
	}
}

func TestReporter_SnapshotIsACopy(t *testing.T) {
	r := NewReporter()
	r.ItemSeen()
	r.ItemFailed(0, "sku-1", FailureKindNormalization, errors.New("bad price"))

	first := r.Snapshot()
	first.Failures[0].Message = "mutated by caller"
	first.Seen = 99

	second := r.Snapshot()
	if second.Failures[0].Message != "bad price" {
		t.Error("mutating a snapshot leaked into the reporter")
	}
	if second.Seen != 1 {
		t.Errorf("seen = %d, want 1", second.Seen)
	}

	// The reporter keeps accumulating after a snapshot; the old snapshot
	// must not move.
	r.ItemSeen()
	r.Decided(store.DecisionCreated)
	if second.Seen != 1 || second.Created != 0 {
		t.Error("earlier snapshot changed after further accumulation")
	}
	checkCounts(t, r.Snapshot(), 2, 1, 0, 0, 1)
}
