// Package jsonfeed reads paginated JSON product feeds. Most retail
// platforms expose one (products.json, /api/catalog, ...); the shape
// varies, so item and field locations are configured per brand as dot
// paths instead of code.
package jsonfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ysmood/gson"
	"golang.org/x/time/rate"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/engine"
	"github.com/use-agent/stockroom/simhash"
)

const (
	defaultMaxPages = 10
	defaultTimeout  = 30 * time.Second

	// duplicatePageThreshold is the SimHash distance under which two
	// consecutive page bodies count as the same page served twice.
	duplicatePageThreshold = 3
)

// canonicalFields are the item keys normalization understands. Each maps
// to a configurable dot path inside one feed item.
var canonicalFields = []string{
	"external_id", "title", "description", "price", "currency", "url",
	"variants", "images",
}

// Adapter streams catalog items out of a brand's JSON feed.
type Adapter struct {
	cfg      config.BrandConfig
	fetcher  adapter.Fetcher
	limiter  *rate.Limiter
	maxPages int
	timeout  time.Duration
}

// New creates a jsonfeed adapter for one brand.
func New(cfg config.BrandConfig, fetcher adapter.Fetcher) *Adapter {
	a := &Adapter{
		cfg:      cfg,
		fetcher:  fetcher,
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
	return a
}

func (a *Adapter) Name() string { return a.cfg.Name }

// FetchItems starts streaming the feed at url. Pages are fetched lazily
// as the stream is drained.
func (a *Adapter) FetchItems(ctx context.Context, feedURL string) adapter.Items {
	return &itemStream{
		ctx:     ctx,
		a:       a,
		baseURL: feedURL,
		nextURL: feedURL,
		pageNum: 2,
	}
}

type itemStream struct {
	ctx     context.Context
	a       *Adapter
	baseURL string
	nextURL string // next page to fetch; "" means exhausted
	pageNum int    // next page number in page-param mode
	pages   int    // pages fetched so far
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

// fetchPage fetches and parses s.nextURL, refills the buffer and works
// out the page after it. Returns false when the stream cannot continue.
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
		URL:     pageURL,
		Headers: s.a.cfg.Headers,
		Timeout: s.a.timeout,
		Stealth: s.a.cfg.Stealth,
		Accept:  engine.AcceptJSON,
	})
	if err != nil {
		s.err = s.a.fetchError(pageURL, err)
		return false
	}
	s.pages++

	// Sites that clamp out-of-range page numbers serve the last page
	// again. A near-identical body means pagination stopped advancing,
	// so treat it as the end of the catalog.
	fp := simhash.Fingerprint(result.Body)
	if s.pages > 1 && simhash.Similar(fp, s.lastFP, duplicatePageThreshold) {
		slog.Info("jsonfeed: near-duplicate page, ending pagination",
			"brand", s.a.cfg.Slug, "url", pageURL, "page", s.pages)
		s.buf, s.idx = nil, 0
		s.nextURL = ""
		return true
	}
	s.lastFP = fp

	root, decodeErr := decodeFeed(result.Body)
	if decodeErr != nil {
		// One broken page is not a systemic failure. Page-number
		// pagination can still address the next page; a broken page in
		// next-link mode takes its link down with it.
		slog.Warn("jsonfeed: undecodable page, skipping",
			"brand", s.a.cfg.Slug, "url", pageURL, "error", decodeErr)
		s.buf, s.idx = nil, 0
		if s.a.pageParamMode() {
			s.advancePageParam()
		} else {
			s.nextURL = ""
		}
		return true
	}

	doc := gson.New(root)
	s.buf, s.idx = s.a.parseItems(doc, pageURL), 0

	switch {
	case s.a.cfg.Feed.NextPath != "":
		s.nextURL = adapter.ResolveURL(pageURL, nextLink(doc, s.a.cfg.Feed.NextPath))
	case s.a.pageParamMode():
		if len(s.buf) == 0 {
			// An empty page means the catalog ran out.
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
	s.nextURL = adapter.SetPageParam(s.baseURL, s.a.cfg.Feed.PageParam, s.pageNum)
	s.pageNum++
}

func (a *Adapter) pageParamMode() bool {
	return a.cfg.Feed.NextPath == "" && a.cfg.Feed.PageParam != ""
}

func (a *Adapter) fetchError(url string, err error) error {
	return &adapter.FetchError{Brand: a.cfg.Name, URL: url, Err: err}
}

// parseItems extracts the item array and maps each entry through the
// configured field paths. Entries that are not objects are dropped.
func (a *Adapter) parseItems(doc gson.JSON, pageURL string) []catalog.Item {
	itemsDoc := doc
	if path := a.cfg.Feed.ItemsPath; path != "" {
		itemsDoc = doc.Get(path)
	}

	arr, ok := itemsDoc.Val().([]any)
	if !ok {
		slog.Warn("jsonfeed: items path is not an array",
			"brand", a.cfg.Slug, "url", pageURL, "path", a.cfg.Feed.ItemsPath)
		return nil
	}

	items := make([]catalog.Item, 0, len(arr))
	for _, raw := range arr {
		if _, ok := raw.(map[string]any); !ok {
			slog.Debug("jsonfeed: skipping non-object feed entry", "brand", a.cfg.Slug)
			continue
		}
		items = append(items, a.mapItem(gson.New(raw), pageURL))
	}
	return items
}

// mapItem builds one catalog.Item from a feed entry. Fields with a
// configured path are read from there; the rest are read under their
// canonical names. The brand currency fills in when the entry has none,
// and relative product URLs are resolved against the page URL.
func (a *Adapter) mapItem(entry gson.JSON, pageURL string) catalog.Item {
	item := catalog.Item{}
	for _, field := range canonicalFields {
		path := a.cfg.Feed.Fields[field]
		if path == "" {
			path = field
		}
		if v := entry.Get(path).Val(); v != nil {
			item[field] = v
		}
	}

	if _, ok := item["currency"]; !ok && a.cfg.Currency != "" {
		item["currency"] = a.cfg.Currency
	}
	if u, ok := item["url"].(string); ok {
		item["url"] = adapter.ResolveURL(pageURL, u)
	}
	return item
}

// decodeFeed parses a feed page with json.Number so prices keep their
// exact decimal representation.
func decodeFeed(body string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}
	return root, nil
}

// nextLink reads the next page URL out of the feed document.
func nextLink(doc gson.JSON, path string) string {
	next, _ := doc.Get(path).Val().(string)
	return strings.TrimSpace(next)
}
