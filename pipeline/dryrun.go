package pipeline

import (
	"context"
	"errors"

	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/fingerprint"
	"github.com/use-agent/stockroom/store"
)

// Upserter decides what persisting one product would do: create it,
// update an existing record, or skip an identical one. The real variant
// also performs the write; the dry-run variant only classifies. Both
// compare the same product fingerprints, so for the same store state
// they classify identically.
type Upserter interface {
	UpsertDecision(ctx context.Context, p *catalog.Product) (store.Decision, error)
}

// NewStoreUpserter returns the writing Upserter. Classification and
// write happen in one atomic store call.
func NewStoreUpserter(st store.Store) Upserter {
	return &storeUpserter{st: st}
}

type storeUpserter struct {
	st store.Store
}

func (u *storeUpserter) UpsertDecision(ctx context.Context, p *catalog.Product) (store.Decision, error) {
	return u.st.Write(ctx, p)
}

// NewDryRunUpserter returns an Upserter that reads current store state
// but never writes. Would-be writes are kept in a pending overlay so a
// later duplicate of the same external ID classifies against the
// product this run would already have written, exactly like the real
// path reading its own write.
//
// Each run owns its own evaluator; it is not safe for concurrent use.
func NewDryRunUpserter(st store.Store) Upserter {
	return &dryRunUpserter{
		st:      st,
		pending: make(map[dryRunKey]string),
	}
}

type dryRunKey struct {
	brandSlug  string
	externalID string
}

type dryRunUpserter struct {
	st      store.Store
	pending map[dryRunKey]string // natural key -> would-be fingerprint
}

func (u *dryRunUpserter) UpsertDecision(ctx context.Context, p *catalog.Product) (store.Decision, error) {
	fp := fingerprint.Compute(p)
	key := dryRunKey{p.BrandSlug, p.ExternalID}

	if prior, ok := u.pending[key]; ok {
		if fingerprint.Equal(prior, fp) {
			return store.DecisionSkipped, nil
		}
		u.pending[key] = fp
		return store.DecisionUpdated, nil
	}

	existing, err := u.st.FindByNaturalKey(ctx, p.BrandSlug, p.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		u.pending[key] = fp
		return store.DecisionCreated, nil
	}
	if err != nil {
		return 0, err
	}

	u.pending[key] = fp
	if fingerprint.Equal(fingerprint.Compute(existing), fp) {
		return store.DecisionSkipped, nil
	}
	return store.DecisionUpdated, nil
}
