// Package store persists canonical products behind a small boundary so the
// ingest pipeline never sees storage details. Implementations must make
// Write atomic: the compare-against-existing and the insert-or-update happen
// as one step, so concurrent runs cannot interleave between them.
package store

import (
	"context"
	"errors"

	"github.com/use-agent/stockroom/catalog"
)

// Decision is the outcome of writing one product.
type Decision int

const (
	// DecisionCreated indicates no product existed under the natural key.
	DecisionCreated Decision = iota

	// DecisionUpdated indicates an existing product had different content.
	DecisionUpdated

	// DecisionSkipped indicates an existing product had identical content
	// and was left untouched.
	DecisionSkipped
)

func (d Decision) String() string {
	switch d {
	case DecisionCreated:
		return "created"
	case DecisionUpdated:
		return "updated"
	case DecisionSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned by lookups when no product exists under the
// requested natural key.
var ErrNotFound = errors.New("product not found")

// Store is the persistence boundary for canonical products.
type Store interface {
	// FindByNaturalKey returns the product stored under
	// (brandSlug, externalID), or ErrNotFound.
	FindByNaturalKey(ctx context.Context, brandSlug, externalID string) (*catalog.Product, error)

	// Write upserts one product keyed by its natural key and reports
	// whether it was created, updated, or skipped as identical. Content
	// comparison uses the product fingerprint, which ignores ScrapedAt.
	Write(ctx context.Context, p *catalog.Product) (Decision, error)

	// ListByBrand returns stored products for a brand ordered by external
	// ID. limit <= 0 means no limit; offset skips that many products.
	ListByBrand(ctx context.Context, brandSlug string, limit, offset int) ([]*catalog.Product, error)

	// CountByBrand reports how many products are stored for a brand.
	CountByBrand(ctx context.Context, brandSlug string) (int, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying storage resources.
	Close()
}
