// Package adapter defines the contract between brand-specific catalog
// fetchers and the ingestion pipeline, plus the registry that routes a
// brand slug to its adapter.
package adapter

import (
	"context"
	"fmt"

	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/engine"
)

// Adapter turns one brand's catalog pages into a stream of raw items.
// Pagination, politeness delays, and parsing quirks stay behind this
// interface; the pipeline only sees items in fetch order.
type Adapter interface {
	// Name returns the adapter kind (e.g. "jsonfeed", "htmlgrid").
	Name() string

	// FetchItems streams the raw items behind the given catalog URL.
	// Fetching is lazy: pages are retrieved as the stream is consumed,
	// and ctx governs every fetch the stream makes.
	FetchItems(ctx context.Context, url string) Items
}

// Items is a lazy, ordered stream of raw catalog items. Usage follows
// sql.Rows:
//
//	items := ad.FetchItems(ctx, url)
//	for items.Next() {
//		item := items.Item()
//	}
//	if err := items.Err(); err != nil {
//		// systemic failure, stream is dead
//	}
//
// A stream that stops with a nil Err ran to the end of the catalog. A
// non-nil Err is a systemic failure (*FetchError); items already yielded
// remain valid. Streams are not restartable: call FetchItems again.
type Items interface {
	Next() bool
	Item() catalog.Item
	Err() error
}

// Fetcher is the page-fetching dependency adapters consume. The engine
// dispatcher satisfies it, as do single engines and test stubs.
type Fetcher interface {
	Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
}

// FetchError is a systemic catalog fetch failure: the source is
// unreachable, blocking, or structurally unreadable. It aborts the run.
// Single malformed pages are an adapter-internal matter and never
// surface this way.
type FetchError struct {
	Brand string
	URL   string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s catalog at %s: %v", e.Brand, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SliceItems returns a stream that replays a fixed slice, for fixtures
// and tests.
func SliceItems(items []catalog.Item) Items {
	return &sliceItems{items: items}
}

type sliceItems struct {
	items []catalog.Item
	idx   int
}

func (s *sliceItems) Next() bool {
	if s.idx >= len(s.items) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceItems) Item() catalog.Item { return s.items[s.idx-1] }

func (s *sliceItems) Err() error { return nil }

// ErrorItems returns a stream that yields nothing and fails with err.
func ErrorItems(err error) Items {
	return &errorItems{err: err}
}

type errorItems struct{ err error }

func (e *errorItems) Next() bool { return false }

func (e *errorItems) Item() catalog.Item { return nil }

func (e *errorItems) Err() error { return e.err }
