package htmlgrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/engine"
)

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
	return &engine.FetchResult{Body: body, ContentType: "text/html", EngineName: "stub"}, nil
}

func gridConfig() config.BrandConfig {
	return config.BrandConfig{
		Slug: "borealis", Name: "Borealis", Kind: config.KindHTMLGrid,
		Currency: "USD",
		Grid: config.GridConfig{
			Tile:           "li.product-card",
			Title:          ".title",
			Price:          ".price",
			Image:          "img.thumb",
			ExternalIDAttr: "data-product-id",
		},
	}
}

const listingPage = `<html><body>
<ul id="grid">
  <li class="product-card" data-product-id="mc-101">
    <a href="/products/merino-crew"><span class="title">Merino Crew</span></a>
    <span class="price">$129.00</span>
    <img class="thumb" src="/img/mc.jpg">
  </li>
  <li class="product-card" data-product-id="fj-102">
    <a href="/products/field-jacket"><span class="title">Field Jacket</span></a>
    <span class="price">$349.50</span>
    <img class="thumb" src="/img/fj.jpg">
  </li>
</ul>
</body></html>`

func drain(t *testing.T, items adapter.Items) []catalog.Item {
	t.Helper()
	var out []catalog.Item
	for items.Next() {
		out = append(out, items.Item())
	}
	return out
}

func TestNew_SelectorValidation(t *testing.T) {
	fetcher := &stubFetcher{}

	cfg := gridConfig()
	cfg.Grid.Tile = ""
	if _, err := New(cfg, fetcher); err == nil {
		t.Error("expected error for missing tile selector")
	}

	cfg = gridConfig()
	cfg.Grid.Price = "li["
	if _, err := New(cfg, fetcher); err == nil {
		t.Error("expected error for invalid price selector")
	}
	if _, err := New(gridConfig(), fetcher); err != nil {
		t.Errorf("valid selectors rejected: %v", err)
	}
}

func TestAdapter_ParsesTiles(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all": listingPage,
	}}
	a, err := New(gridConfig(), fetcher)
	if err != nil {
		t.Fatal(err)
	}

	items := drain(t, a.FetchItems(context.Background(), "https://borealis.example.com/collections/all"))
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first["external_id"] != "mc-101" {
		t.Errorf("external_id = %v, want mc-101 from the tile attribute", first["external_id"])
	}
	if first["title"] != "Merino Crew" {
		t.Errorf("title = %v", first["title"])
	}
	if first["price"] != "$129.00" {
		t.Errorf("price = %v", first["price"])
	}
	if first["url"] != "https://borealis.example.com/products/merino-crew" {
		t.Errorf("url = %v, relative href not resolved", first["url"])
	}
	imgs, _ := first["images"].([]string)
	if len(imgs) != 1 || imgs[0] != "https://borealis.example.com/img/mc.jpg" {
		t.Errorf("images = %v", first["images"])
	}
	if first["currency"] != "USD" {
		t.Errorf("currency = %v, want brand default", first["currency"])
	}
}

func TestAdapter_ExternalIDFromURLTail(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all": listingPage,
	}}
	cfg := gridConfig()
	cfg.Grid.ExternalIDAttr = ""
	a, err := New(cfg, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	items := drain(t, a.FetchItems(context.Background(), "https://borealis.example.com/collections/all"))
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0]["external_id"] != "merino-crew" {
		t.Errorf("external_id = %v, want the URL tail", items[0]["external_id"])
	}
}

func TestAdapter_NextPagePagination(t *testing.T) {
	page1 := strings.Replace(listingPage, "</body>",
		`<a class="next" href="/collections/all?page=2">Next</a></body>`, 1)
	page2 := `<html><body>
<li class="product-card" data-product-id="bp-103">
  <a href="/products/base-pant"><span class="title">Base Pant</span></a>
  <span class="price">$98.00</span>
</li>
</body></html>`

	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all":        page1,
		"https://borealis.example.com/collections/all?page=2": page2,
	}}
	cfg := gridConfig()
	cfg.Grid.NextPage = "a.next"
	a, err := New(cfg, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	stream := a.FetchItems(context.Background(), "https://borealis.example.com/collections/all")
	items := drain(t, stream)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 across two pages", len(items))
	}
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2", len(fetcher.requests))
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v", stream.Err())
	}
}

func TestAdapter_PageParamPagination(t *testing.T) {
	empty := `<html><body><ul id="grid"></ul></body></html>`
	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all":        listingPage,
		"https://borealis.example.com/collections/all?page=2": empty,
	}}
	cfg := gridConfig()
	cfg.Grid.PageParam = "page"
	a, err := New(cfg, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	items := drain(t, a.FetchItems(context.Background(), "https://borealis.example.com/collections/all"))
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// The tile-less page 2 ends the stream.
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2", len(fetcher.requests))
	}
}

func TestAdapter_ClampedPageEndsPagination(t *testing.T) {
	// Clamped pagination: the site serves the same grid for every page
	// number past the end. The duplicate-page guard stops the walk on
	// the first repeat instead of re-emitting tiles until the page cap.
	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all":        listingPage,
		"https://borealis.example.com/collections/all?page=2": listingPage,
		"https://borealis.example.com/collections/all?page=3": listingPage,
	}}
	cfg := gridConfig()
	cfg.Grid.PageParam = "page"
	a, err := New(cfg, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	stream := a.FetchItems(context.Background(), "https://borealis.example.com/collections/all")
	items := drain(t, stream)
	if len(items) != 2 {
		t.Errorf("got %d items, want 2 (clamped page must not re-emit)", len(items))
	}
	if len(fetcher.requests) != 2 {
		t.Errorf("fetched %d pages, want 2 (stop on the first duplicate)", len(fetcher.requests))
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v, a clamped page is not a failure", stream.Err())
	}
}

func TestAdapter_FetchErrorAbortsStream(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("status 403 for grid")}
	a, err := New(gridConfig(), fetcher)
	if err != nil {
		t.Fatal(err)
	}

	stream := a.FetchItems(context.Background(), "https://borealis.example.com/collections/all")
	if stream.Next() {
		t.Fatal("Next returned true on a failing fetch")
	}
	var fe *adapter.FetchError
	if !errors.As(stream.Err(), &fe) {
		t.Fatalf("Err = %v, want *adapter.FetchError", stream.Err())
	}
	if fe.Brand != "Borealis" {
		t.Errorf("FetchError.Brand = %q", fe.Brand)
	}
}

const detailPage = `<html>
<head>
  <meta property="og:description" content="Short og copy.">
  <meta property="og:image" content="https://cdn.example.com/og.jpg">
</head>
<body>
  <article>
    <h1>Merino Crew</h1>
    <p>Our lightweight merino crew neck is spun from 18.5 micron wool and
    knit in Portugal. It regulates temperature on the trail and looks
    sharp enough for the office, which is why it has been our best
    selling sweater for three seasons running.</p>
    <p>Machine washable on the wool cycle. Lay flat to dry and it will
    hold its shape for years. Ships in recycled packaging with a spare
    repair thread card.</p>
    <img src="/img/detail-front.jpg">
    <img src="/img/detail-back.jpg">
  </article>
</body>
</html>`

func TestAdapter_Enrichment(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all":       listingPage,
		"https://borealis.example.com/products/merino-crew":  detailPage,
		"https://borealis.example.com/products/field-jacket": detailPage,
	}}
	cfg := gridConfig()
	cfg.Grid.Enrich = true
	a, err := New(cfg, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	items := drain(t, a.FetchItems(context.Background(), "https://borealis.example.com/collections/all"))
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}

	desc, _ := items[0]["description"].(string)
	if !strings.Contains(desc, "merino crew neck") {
		t.Errorf("description = %q, detail copy missing", desc)
	}
	imgs, _ := items[0]["images"].([]string)
	if len(imgs) != 2 || !strings.HasSuffix(imgs[0], "/img/detail-front.jpg") {
		t.Errorf("images = %v, want the detail page shots", imgs)
	}
	// Listing + one detail fetch per tile.
	if len(fetcher.requests) != 3 {
		t.Errorf("fetched %d pages, want 3", len(fetcher.requests))
	}
}

func TestAdapter_EnrichmentFailureKeepsTileData(t *testing.T) {
	// Detail pages are absent from the stub, so every enrichment fetch 404s.
	fetcher := &stubFetcher{pages: map[string]string{
		"https://borealis.example.com/collections/all": listingPage,
	}}
	cfg := gridConfig()
	cfg.Grid.Enrich = true
	a, err := New(cfg, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	stream := a.FetchItems(context.Background(), "https://borealis.example.com/collections/all")
	items := drain(t, stream)
	if stream.Err() != nil {
		t.Fatalf("Err = %v, enrichment failures must not abort the stream", stream.Err())
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if _, ok := items[0]["description"]; ok {
		t.Error("description set despite failed detail fetch")
	}
	imgs, _ := items[0]["images"].([]string)
	if len(imgs) != 1 || !strings.HasSuffix(imgs[0], "/img/mc.jpg") {
		t.Errorf("images = %v, want the tile thumbnail", imgs)
	}
}

func TestURLTail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://shop.example.com/products/merino-crew", "merino-crew"},
		{"https://shop.example.com/products/merino-crew/", "merino-crew"},
		{"https://shop.example.com/p/a/b?variant=3", "b"},
		{"https://shop.example.com/", ""},
	}
	for _, tt := range tests {
		if got := urlTail(tt.in); got != tt.want {
			t.Errorf("urlTail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
