package jsonfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/engine"
)

// stubFetcher serves canned bodies by URL and records every request.
type stubFetcher struct {
	pages    map[string]string
	err      error
	requests []*engine.FetchRequest
}

func (f *stubFetcher) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("status 404 for %s", req.URL)
	}
	return &engine.FetchResult{Body: body, ContentType: "application/json", EngineName: "stub"}, nil
}

func drain(t *testing.T, items adapter.Items) []catalog.Item {
	t.Helper()
	var out []catalog.Item
	for items.Next() {
		out = append(out, items.Item())
	}
	return out
}

func TestAdapter_SinglePage(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json": `{
			"products": [
				{"id": 101, "title": "Merino Crew", "price": {"amount": "129.00", "currency": "USD"}, "url": "/products/merino-crew"},
				{"id": 102, "title": "Field Jacket", "price": {"amount": "349.50"}, "url": "https://shop.example.com/products/field-jacket"}
			]
		}`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply", Kind: config.KindJSONFeed,
		Currency: "USD",
		Headers:  map[string]string{"X-Shop-Token": "tok"},
		Feed: config.FeedConfig{
			ItemsPath: "products",
			Fields: map[string]string{
				"external_id": "id",
				"price":       "price.amount",
				"currency":    "price.currency",
			},
		},
	}, fetcher)

	items := drain(t, a.FetchItems(context.Background(), "https://shop.example.com/feed.json"))
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first["external_id"] != json.Number("101") {
		t.Errorf("external_id = %#v, want json.Number 101", first["external_id"])
	}
	if first["title"] != "Merino Crew" {
		t.Errorf("title = %v", first["title"])
	}
	if first["price"] != "129.00" {
		t.Errorf("price = %#v, want the mapped amount string", first["price"])
	}
	if first["url"] != "https://shop.example.com/products/merino-crew" {
		t.Errorf("url = %v, relative URL not resolved", first["url"])
	}

	// Second item has no feed currency; the brand default fills in.
	if items[1]["currency"] != "USD" {
		t.Errorf("currency = %v, want brand default USD", items[1]["currency"])
	}

	req := fetcher.requests[0]
	if req.Accept != engine.AcceptJSON {
		t.Errorf("Accept = %q, want json", req.Accept)
	}
	if req.Headers["X-Shop-Token"] != "tok" {
		t.Error("brand headers not passed to the fetcher")
	}
}

func TestAdapter_NextLinkPagination(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json": `{
			"products": [{"id": 1, "title": "A", "url": "/p/a"}],
			"links": {"next": "/feed.json?cursor=abc"}
		}`,
		"https://shop.example.com/feed.json?cursor=abc": `{
			"products": [{"id": 2, "title": "B", "url": "/p/b"}, {"id": 3, "title": "C", "url": "/p/c"}],
			"links": {"next": null}
		}`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply",
		Feed: config.FeedConfig{
			ItemsPath: "products",
			NextPath:  "links.next",
			Fields:    map[string]string{"external_id": "id"},
		},
	}, fetcher)

	items := drain(t, a.FetchItems(context.Background(), "https://shop.example.com/feed.json"))
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 across two pages", len(items))
	}
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2", len(fetcher.requests))
	}
	if got := fetcher.requests[1].URL; got != "https://shop.example.com/feed.json?cursor=abc" {
		t.Errorf("second page URL = %q, relative next link not resolved", got)
	}
}

func TestAdapter_PageParamPagination(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json":        `{"products": [{"id": 1, "title": "A", "url": "/p/a"}]}`,
		"https://shop.example.com/feed.json?page=2": `{"products": [{"id": 2, "title": "B", "url": "/p/b"}]}`,
		"https://shop.example.com/feed.json?page=3": `{"products": []}`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply",
		Feed: config.FeedConfig{
			ItemsPath: "products",
			PageParam: "page",
			Fields:    map[string]string{"external_id": "id"},
		},
	}, fetcher)

	items := drain(t, a.FetchItems(context.Background(), "https://shop.example.com/feed.json"))
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// The empty page 3 ends the stream; no page 4 fetch.
	if len(fetcher.requests) != 3 {
		t.Errorf("fetched %d pages, want 3", len(fetcher.requests))
	}
}

func TestAdapter_MaxPagesCap(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json":        `{"products": [{"id": 1, "title": "A", "url": "/p/a"}]}`,
		"https://shop.example.com/feed.json?page=2": `{"products": [{"id": 2, "title": "B", "url": "/p/b"}]}`,
		"https://shop.example.com/feed.json?page=3": `{"products": [{"id": 3, "title": "C", "url": "/p/c"}]}`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply", MaxPages: 2,
		Feed: config.FeedConfig{ItemsPath: "products", PageParam: "page"},
	}, fetcher)

	stream := a.FetchItems(context.Background(), "https://shop.example.com/feed.json")
	items := drain(t, stream)
	if len(items) != 2 {
		t.Errorf("got %d items, want 2 (capped at 2 pages)", len(items))
	}
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2", len(fetcher.requests))
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v, cap is not a failure", stream.Err())
	}
}

func TestAdapter_ClampedPageEndsPagination(t *testing.T) {
	// A site that clamps page=2 back to page 1 serves the same body
	// forever; the duplicate-page guard must stop the walk well before
	// the page cap and without re-emitting page 1's items.
	same := `{"products": [{"id": 1, "title": "A", "url": "/p/a"}]}`
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json":        same,
		"https://shop.example.com/feed.json?page=2": same,
		"https://shop.example.com/feed.json?page=3": same,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply",
		Feed: config.FeedConfig{
			ItemsPath: "products",
			PageParam: "page",
			Fields:    map[string]string{"external_id": "id"},
		},
	}, fetcher)

	stream := a.FetchItems(context.Background(), "https://shop.example.com/feed.json")
	items := drain(t, stream)
	if len(items) != 1 {
		t.Errorf("got %d items, want 1 (clamped page must not re-emit)", len(items))
	}
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2 (stop on the first duplicate)", len(fetcher.requests))
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v, a clamped page is not a failure", stream.Err())
	}
}

func TestAdapter_FetchErrorAbortsStream(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("status 503 for feed")}
	a := New(config.BrandConfig{Slug: "acme", Name: "Acme Supply"}, fetcher)

	stream := a.FetchItems(context.Background(), "https://shop.example.com/feed.json")
	if stream.Next() {
		t.Fatal("Next returned true on a failing fetch")
	}

	var fe *adapter.FetchError
	if !errors.As(stream.Err(), &fe) {
		t.Fatalf("Err = %v, want *adapter.FetchError", stream.Err())
	}
	if fe.Brand != "Acme Supply" || fe.URL != "https://shop.example.com/feed.json" {
		t.Errorf("FetchError = %+v", fe)
	}
}

func TestAdapter_UndecodablePageSkippedInPageParamMode(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json":        `<!doctype html>nope`,
		"https://shop.example.com/feed.json?page=2": `{"products": [{"id": 2, "title": "B", "url": "/p/b"}]}`,
		"https://shop.example.com/feed.json?page=3": `{"products": []}`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply",
		Feed: config.FeedConfig{ItemsPath: "products", PageParam: "page"},
	}, fetcher)

	stream := a.FetchItems(context.Background(), "https://shop.example.com/feed.json")
	items := drain(t, stream)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 from the good page", len(items))
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v, a single bad page must not abort the stream", stream.Err())
	}
}

func TestAdapter_UndecodablePageEndsNextLinkStream(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json": `{
			"products": [{"id": 1, "title": "A", "url": "/p/a"}],
			"links": {"next": "/feed.json?cursor=abc"}
		}`,
		"https://shop.example.com/feed.json?cursor=abc": `garbage`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply",
		Feed: config.FeedConfig{ItemsPath: "products", NextPath: "links.next"},
	}, fetcher)

	stream := a.FetchItems(context.Background(), "https://shop.example.com/feed.json")
	items := drain(t, stream)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	// The broken page took its next link with it.
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2", len(fetcher.requests))
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v", stream.Err())
	}
}

func TestAdapter_RootArrayFeed(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json": `[{"external_id": "a-1", "title": "A", "url": "https://shop.example.com/p/a"}]`,
	}}
	a := New(config.BrandConfig{Slug: "acme", Name: "Acme Supply"}, fetcher)

	items := drain(t, a.FetchItems(context.Background(), "https://shop.example.com/feed.json"))
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0]["external_id"] != "a-1" {
		t.Errorf("external_id = %v", items[0]["external_id"])
	}
}

func TestAdapter_PriceKeepsSourceText(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://shop.example.com/feed.json": `{"products": [{"id": 1, "title": "A", "url": "/p/a", "price": 129.90}]}`,
	}}
	a := New(config.BrandConfig{
		Slug: "acme", Name: "Acme Supply",
		Feed: config.FeedConfig{ItemsPath: "products", Fields: map[string]string{"external_id": "id"}},
	}, fetcher)

	items := drain(t, a.FetchItems(context.Background(), "https://shop.example.com/feed.json"))
	if len(items) != 1 {
		t.Fatal("no items")
	}
	// UseNumber keeps the feed's exact decimal text.
	if items[0]["price"] != json.Number("129.90") {
		t.Errorf("price = %#v, want json.Number 129.90", items[0]["price"])
	}
}
