// Package htmlgrid reads product grids off rendered listing pages.
// Tiles are located with per-brand CSS selectors; the page itself comes
// through the engine dispatcher, so JS-rendered grids work the same as
// server-rendered ones.
package htmlgrid

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/time/rate"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/engine"
	"github.com/use-agent/stockroom/extract"
	"github.com/use-agent/stockroom/simhash"
)

const (
	defaultMaxPages = 10
	defaultTimeout  = 30 * time.Second

	// duplicatePageThreshold is the SimHash distance under which two
	// consecutive page bodies count as the same page served twice.
	duplicatePageThreshold = 3
)

// anchorSel is the fallback product link selector within a tile.
var anchorSel = cascadia.MustCompile("a")

// Adapter streams catalog items out of a brand's listing pages.
type Adapter struct {
	cfg       config.BrandConfig
	fetcher   adapter.Fetcher
	sel       selectors
	extractor *extract.Extractor // non-nil when detail enrichment is on
	limiter   *rate.Limiter
	maxPages  int
	timeout   time.Duration
}

// selectors holds the compiled per-brand CSS selectors. Optional ones
// are nil when unconfigured.
type selectors struct {
	tile     cascadia.Selector
	title    cascadia.Selector
	price    cascadia.Selector
	image    cascadia.Selector
	link     cascadia.Selector
	nextPage cascadia.Selector
}

// New creates an htmlgrid adapter for one brand. Selectors are compiled
// here so a typo in brands.yaml fails startup, not the first run.
func New(cfg config.BrandConfig, fetcher adapter.Fetcher) (*Adapter, error) {
	if cfg.Grid.Tile == "" {
		return nil, fmt.Errorf("htmlgrid %s: grid.tile selector is required", cfg.Slug)
	}

	var sel selectors
	var err error
	if sel.tile, err = compileSel(cfg.Slug, "grid.tile", cfg.Grid.Tile); err != nil {
		return nil, err
	}
	if sel.title, err = compileSel(cfg.Slug, "grid.title", cfg.Grid.Title); err != nil {
		return nil, err
	}
	if sel.price, err = compileSel(cfg.Slug, "grid.price", cfg.Grid.Price); err != nil {
		return nil, err
	}
	if sel.image, err = compileSel(cfg.Slug, "grid.image", cfg.Grid.Image); err != nil {
		return nil, err
	}
	if sel.link, err = compileSel(cfg.Slug, "grid.link", cfg.Grid.Link); err != nil {
		return nil, err
	}
	if sel.nextPage, err = compileSel(cfg.Slug, "grid.next_page", cfg.Grid.NextPage); err != nil {
		return nil, err
	}
	if sel.link == nil {
		sel.link = anchorSel
	}

	a := &Adapter{
		cfg:      cfg,
		fetcher:  fetcher,
		sel:      sel,
		maxPages: cfg.MaxPages,
		timeout:  cfg.FetchTimeout,
	}
	if a.maxPages <= 0 {
		a.maxPages = defaultMaxPages
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if cfg.Grid.Enrich {
		a.extractor = extract.New()
	}
	return a, nil
}

func compileSel(slug, name, expr string) (cascadia.Selector, error) {
	if expr == "" {
		return nil, nil
	}
	s, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("htmlgrid %s: %s selector %q: %w", slug, name, expr, err)
	}
	return s, nil
}

func (a *Adapter) Name() string { return a.cfg.Name }

// FetchItems starts streaming the grid at url. Pages are fetched lazily
// as the stream is drained.
func (a *Adapter) FetchItems(ctx context.Context, gridURL string) adapter.Items {
	return &itemStream{
		ctx:     ctx,
		a:       a,
		baseURL: gridURL,
		nextURL: gridURL,
		pageNum: 2,
	}
}

type itemStream struct {
	ctx     context.Context
	a       *Adapter
	baseURL string
	nextURL string
	pageNum int
	pages   int
	lastFP  uint64 // SimHash of the previous page body

	buf     []catalog.Item
	idx     int
	current catalog.Item
	err     error
}

func (s *itemStream) Next() bool {
	if s.err != nil {
		return false
	}
	for s.idx >= len(s.buf) {
		if s.nextURL == "" || s.pages >= s.a.maxPages {
			return false
		}
		if !s.fetchPage() {
			return false
		}
	}
	s.current = s.buf[s.idx]
	s.idx++
	return true
}

func (s *itemStream) Item() catalog.Item { return s.current }

func (s *itemStream) Err() error { return s.err }

func (s *itemStream) fetchPage() bool {
	pageURL := s.nextURL

	if s.a.limiter != nil {
		if err := s.a.limiter.Wait(s.ctx); err != nil {
			s.err = s.a.fetchError(pageURL, err)
			return false
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.a.timeout)
	defer cancel()

	result, err := s.a.fetcher.Fetch(ctx, &engine.FetchRequest{
		URL:         pageURL,
		Headers:     s.a.cfg.Headers,
		Timeout:     s.a.timeout,
		Stealth:     s.a.cfg.Stealth,
		Accept:      engine.AcceptHTML,
		ScrollPages: s.a.cfg.Grid.ScrollPages,
	})
	if err != nil {
		s.err = s.a.fetchError(pageURL, err)
		return false
	}
	s.pages++

	// Sites that clamp out-of-range page numbers serve the last page
	// again. A near-identical body means pagination stopped advancing,
	// so treat it as the end of the grid.
	fp := simhash.Fingerprint(result.Body)
	if s.pages > 1 && simhash.Similar(fp, s.lastFP, duplicatePageThreshold) {
		slog.Info("htmlgrid: near-duplicate page, ending pagination",
			"brand", s.a.cfg.Slug, "url", pageURL, "page", s.pages)
		s.buf, s.idx = nil, 0
		s.nextURL = ""
		return true
	}
	s.lastFP = fp

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(result.Body))
	if parseErr != nil {
		slog.Warn("htmlgrid: unparseable page, skipping",
			"brand", s.a.cfg.Slug, "url", pageURL, "error", parseErr)
		s.buf, s.idx = nil, 0
		if s.a.pageParamMode() {
			s.advancePageParam()
		} else {
			s.nextURL = ""
		}
		return true
	}

	s.buf, s.idx = s.a.parseTiles(doc, pageURL), 0
	if err := s.enrichAll(); err != nil {
		s.err = s.a.fetchError(pageURL, err)
		return false
	}

	switch {
	case s.a.sel.nextPage != nil:
		s.nextURL = ""
		if href, ok := doc.FindMatcher(s.a.sel.nextPage).First().Attr("href"); ok {
			s.nextURL = adapter.ResolveURL(pageURL, strings.TrimSpace(href))
		}
	case s.a.pageParamMode():
		if len(s.buf) == 0 {
			// A tile-less page means the grid ran out.
			s.nextURL = ""
		} else {
			s.advancePageParam()
		}
	default:
		s.nextURL = ""
	}
	return true
}

func (s *itemStream) advancePageParam() {
	s.nextURL = adapter.SetPageParam(s.baseURL, s.a.cfg.Grid.PageParam, s.pageNum)
	s.pageNum++
}

// enrichAll fetches detail pages for the buffered items. Individual
// enrichment failures keep the tile data; only a cancelled context
// aborts the stream.
func (s *itemStream) enrichAll() error {
	if s.a.extractor == nil {
		return nil
	}
	for _, item := range s.buf {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		s.a.enrichItem(s.ctx, item)
	}
	return nil
}

func (a *Adapter) pageParamMode() bool {
	return a.cfg.Grid.NextPage == "" && a.cfg.Grid.PageParam != ""
}

func (a *Adapter) fetchError(url string, err error) error {
	return &adapter.FetchError{Brand: a.cfg.Name, URL: url, Err: err}
}

// parseTiles builds one raw item per product tile.
func (a *Adapter) parseTiles(doc *goquery.Document, pageURL string) []catalog.Item {
	var items []catalog.Item
	doc.FindMatcher(a.sel.tile).Each(func(_ int, tile *goquery.Selection) {
		items = append(items, a.tileItem(tile, pageURL))
	})
	return items
}

// tileItem reads one listing tile. Missing pieces stay absent; the
// normalizer decides whether the item survives.
func (a *Adapter) tileItem(tile *goquery.Selection, pageURL string) catalog.Item {
	item := catalog.Item{}

	if a.sel.title != nil {
		if t := strings.TrimSpace(tile.FindMatcher(a.sel.title).First().Text()); t != "" {
			item["title"] = t
		}
	}
	if a.sel.price != nil {
		if p := strings.TrimSpace(tile.FindMatcher(a.sel.price).First().Text()); p != "" {
			item["price"] = p
		}
	}
	if href, ok := tile.FindMatcher(a.sel.link).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		item["url"] = adapter.ResolveURL(pageURL, strings.TrimSpace(href))
	}
	if a.sel.image != nil {
		if src, ok := tile.FindMatcher(a.sel.image).First().Attr("src"); ok && src != "" {
			item["images"] = []string{adapter.ResolveURL(pageURL, src)}
		}
	}

	if attr := a.cfg.Grid.ExternalIDAttr; attr != "" {
		if id, ok := tile.Attr(attr); ok && strings.TrimSpace(id) != "" {
			item["external_id"] = strings.TrimSpace(id)
		}
	} else if u, ok := item["url"].(string); ok {
		if tail := urlTail(u); tail != "" {
			item["external_id"] = tail
		}
	}

	if a.cfg.Currency != "" {
		item["currency"] = a.cfg.Currency
	}
	return item
}

// enrichItem fetches the product's detail page and fills description
// and images. Tile data stays when the page cannot be read.
func (a *Adapter) enrichItem(ctx context.Context, item catalog.Item) {
	u, _ := item["url"].(string)
	if u == "" {
		return
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
	}

	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.fetcher.Fetch(fctx, &engine.FetchRequest{
		URL:     u,
		Headers: a.cfg.Headers,
		Timeout: a.timeout,
		Stealth: a.cfg.Stealth,
		Accept:  engine.AcceptHTML,
	})
	if err != nil {
		slog.Debug("htmlgrid: detail fetch failed, keeping tile data",
			"brand", a.cfg.Slug, "url", u, "error", err)
		return
	}

	og := extract.OpenGraph(result.Body)
	if md, ok := a.extractor.Description(result.Body, u); ok {
		item["description"] = md
	} else if og.Description != "" {
		item["description"] = og.Description
	}
	if imgs := extract.Images(result.Body, u); len(imgs) > 0 {
		item["images"] = imgs
	} else if og.Image != "" {
		item["images"] = []string{og.Image}
	}
}

// urlTail returns the last path segment of a product URL, the usual
// home of the product handle.
func urlTail(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
