// Package pipeline drives catalog ingestion runs: resolve the brand's
// adapter, walk its item stream in fetch order, normalize each item,
// decide create/update/skip against the natural key, and report.
//
// One run is strictly sequential. Ordering is load-bearing: a later
// in-run duplicate of an external ID must be classified against the
// record just written, not against pre-run state. Runs for different
// brands may execute concurrently; they share nothing but the registry
// and the store, both safe for concurrent use.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/store"
)

// PersistError is a persistence boundary failure for one product. It is
// run-fatal: a store that cannot read or write will not get better for
// the next item, and prior writes stay committed.
type PersistError struct {
	BrandSlug  string
	ExternalID string
	Err        error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting %s/%s: %v", e.BrandSlug, e.ExternalID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Pipeline executes ingestion runs against a registry of brand adapters
// and a product store.
type Pipeline struct {
	registry *adapter.Registry
	store    store.Store
}

// New creates a Pipeline.
func New(registry *adapter.Registry, st store.Store) *Pipeline {
	return &Pipeline{registry: registry, store: st}
}

// ResolveBrand returns the registration for a brand slug. Callers that
// queue runs asynchronously use it to reject unknown brands up front.
func (p *Pipeline) ResolveBrand(slug string) (adapter.Registration, error) {
	return p.registry.Resolve(slug)
}

// IngestCatalog runs one synchronous ingestion and returns its report.
// The report is returned even when the run fails; it covers everything
// processed up to the failure, and those writes remain committed.
//
// brandName is informational. Resolution is by slug alone; an empty
// name is filled from the registration.
func (p *Pipeline) IngestCatalog(ctx context.Context, url, brandName, brandSlug string, dryRun bool) (*Report, error) {
	run := NewRun(url, brandName, brandSlug, dryRun)
	err := p.Execute(ctx, run)
	report := run.reporter.Final()
	return &report, err
}

// Execute drives a run to its terminal state. It returns the run-fatal
// error, nil when the run completed. Item-local failures (one raw item
// that does not normalize) never abort the run; they become report
// entries and the walk continues.
//
// Cancellation is cooperative: the context is checked between items, so
// cancelling mid-catalog fails the run with the partial report intact.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	reg, err := p.registry.Resolve(run.BrandSlug)
	if err != nil {
		// Unknown brand fails before any fetch is attempted.
		run.finish(err)
		return err
	}
	run.setBrandName(reg.Name)

	slog.Info("ingestion run started",
		"run_id", run.ID,
		"brand", run.BrandSlug,
		"url", run.SourceURL,
		"adapter", reg.Adapter.Name(),
		"dry_run", run.DryRun,
	)

	upserter := NewStoreUpserter(p.store)
	persistState := StatePersisting
	if run.DryRun {
		upserter = NewDryRunUpserter(p.store)
		persistState = StateReportingOnly
	}

	// One timestamp per run: every product this run touches carries the
	// same fetch time.
	scrapedAt := time.Now().UTC()

	run.setState(StateFetching)
	items := reg.Adapter.FetchItems(ctx, run.SourceURL)

	index := 0
	for items.Next() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err := fmt.Errorf("run cancelled after %d items: %w", index, ctxErr)
			run.finish(err)
			slog.Warn("ingestion run cancelled",
				"run_id", run.ID, "brand", run.BrandSlug, "items", index)
			return err
		}

		raw := items.Item()
		run.reporter.ItemSeen()

		run.setState(StateNormalizing)
		product, err := catalog.Normalize(raw, run.BrandSlug, scrapedAt)
		if err != nil {
			run.reporter.ItemFailed(index, externalIDOf(raw), FailureKindNormalization, err)
			slog.Warn("item failed normalization",
				"run_id", run.ID, "brand", run.BrandSlug, "index", index, "error", err)
			index++
			run.setState(StateFetching)
			continue
		}

		run.setState(persistState)
		decision, err := upserter.UpsertDecision(ctx, product)
		if err != nil {
			perr := &PersistError{
				BrandSlug:  product.BrandSlug,
				ExternalID: product.ExternalID,
				Err:        err,
			}
			run.finish(perr)
			slog.Error("ingestion run failed at persistence",
				"run_id", run.ID, "brand", run.BrandSlug, "external_id", product.ExternalID, "error", err)
			return perr
		}
		run.reporter.Decided(decision)

		index++
		run.setState(StateFetching)
	}

	if err := items.Err(); err != nil {
		// Systemic fetch failure. Everything persisted before it stays;
		// re-running after the source recovers is idempotent.
		run.finish(err)
		slog.Error("ingestion run failed at fetch",
			"run_id", run.ID, "brand", run.BrandSlug, "items", index, "error", err)
		return err
	}

	run.finish(nil)
	report := run.reporter.Snapshot()
	slog.Info("ingestion run completed",
		"run_id", run.ID,
		"brand", run.BrandSlug,
		"dry_run", run.DryRun,
		"seen", report.Seen,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return nil
}

// externalIDOf extracts a best-effort identifying fragment from a raw
// item for failure entries. Empty when the item carries nothing usable.
func externalIDOf(raw catalog.Item) string {
	switch v := raw["external_id"].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
}
