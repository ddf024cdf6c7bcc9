package cache

import (
	"context"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/engine"
)

// Fetcher wraps an adapter.Fetcher with result caching. Adapters stay
// unaware of caching; they see a Fetcher that is sometimes very fast.
type Fetcher struct {
	inner adapter.Fetcher
	cache *Cache
}

// NewFetcher wraps inner so that repeated fetches of the same page are
// served from c while their entries are fresh.
func NewFetcher(inner adapter.Fetcher, c *Cache) *Fetcher {
	return &Fetcher{inner: inner, cache: c}
}

// Fetch returns a cached result when one is fresh, otherwise delegates
// to the wrapped Fetcher and caches the outcome. Errors are never
// cached; a failing page is retried on the next fetch.
func (f *Fetcher) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	key := Key(req.URL, req.Accept)
	if result, ok := f.cache.Get(key); ok {
		return result, nil
	}

	result, err := f.inner.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, result)
	return result, nil
}
