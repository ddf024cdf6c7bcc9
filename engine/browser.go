package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/stockroom/config"
)

// Browser is the heavyweight engine: a managed headless browser with an
// adaptive page pool. It renders the JavaScript product grids the HTTP
// engine cannot. JSON feed requests fail fast so the dispatcher race
// settles on the HTTP engine.
type Browser struct {
	browser *rod.Browser
	pool    *AdaptivePool
	cfg     config.BrowserConfig

	mu     sync.Mutex
	pages  map[int64]*rod.Page
	nextID atomic.Int64
}

// NewBrowser launches a headless browser and initialises the page pool.
func NewBrowser(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	b := &Browser{
		browser: browser,
		cfg:     cfg,
		pages:   make(map[int64]*rod.Page),
	}

	pool, err := NewAdaptivePool(AdaptivePoolConfig{
		MinPages: cfg.MinPages,
		HardMax:  cfg.MaxPages,
	}, b.createPage, b.destroyPage)
	if err != nil {
		browser.MustClose()
		return nil, fmt.Errorf("browser: page pool: %w", err)
	}
	b.pool = pool
	slog.Info("page pool created", "minPages", cfg.MinPages, "maxPages", cfg.MaxPages)

	return b, nil
}

func (b *Browser) Name() string { return "browser" }

// Fetch renders a catalog page and returns its settled HTML.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard      – hard deadline on the entire operation
//  2. Acquire page       – borrow a pooled tab (health-tracked)
//  3. DEFER: cleanup     – about:blank + return with the outcome
//  4. Stealth + headers  – mask automation, referer, cookies (pre-navigation!)
//  5. Hijack mount       – block images/fonts/media + ad domains (pre-navigation!)
//  6. Context binding    – propagate the deadline to all rod operations
//  7. Navigate           – triggers the page load
//  8. Wait               – DOM stable, grids keep mutating until settled
//  9. Status + overlays  – performance API status, strip cookie walls
//  10. Extract           – page.HTML() + title + final URL
//
// Steps 4-5 must precede step 7: stealth JS and resource blocking only
// apply to navigations that happen after they are installed. Step 3 uses
// the original page reference (no request context), so cleanup succeeds
// even after the request deadline expired.
func (b *Browser) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.WantsJSON() {
		return nil, fmt.Errorf("browser: json fetch for %s is http-only", req.URL)
	}

	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := req.Timeout
	if timeout <= 0 || timeout > b.cfg.MaxTimeout {
		timeout = b.cfg.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Acquire a pooled page ──────────────────────────────────────
	handle, err := b.pool.Get()
	if err != nil {
		return nil, fmt.Errorf("browser: acquire page: %w", err)
	}
	page := b.page(handle.ID)
	if page == nil {
		b.pool.Put(handle, false)
		return nil, fmt.Errorf("browser: page %d missing from pool", handle.ID)
	}

	success := false
	// ── 3. DEFER: blank the tab and return it with its outcome ────────
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("browser: cleanup navigation failed", "error", navErr)
		}
		b.pool.Put(handle, success)
	}()

	// ── 4. Stealth injection (before navigation) ──────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("browser: stealth injection failed, continuing without", "error", evalErr)
		}
	}

	// ── 4b. Headers: Google referer default + custom overrides ───────
	extraHeaders := make(map[string]string, len(req.Headers)+1)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(req.URL); parseErr == nil {
			extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range req.Headers {
		extraHeaders[k] = v
	}
	if len(extraHeaders) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(extraHeaders),
		}.Call(page)
	}

	// ── 4c. Cookies ───────────────────────────────────────────────────
	for _, cookie := range req.Cookies {
		domain := cookie.Domain
		if domain == "" {
			if u, parseErr := url.Parse(req.URL); parseErr == nil {
				domain = u.Host
			}
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		_, _ = proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}.Call(page)
	}

	// ── 5. Mount the hijack router (before navigation) ────────────────
	router := mountHijack(page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 6. Bind the request context to the page ───────────────────────
	p := page.Context(ctx)

	// ── 7. Navigate ───────────────────────────────────────────────────
	if err := p.Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", req.URL, err)
	}

	// ── 8. Wait for the grid to settle ────────────────────────────────
	// WaitRequestIdle conflicts with HijackRequests on Chromium 145+
	// (both use the Fetch domain), so DOM stability is the wait strategy.
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("browser: dom did not settle, using current state",
			"url", req.URL, "error", stableErr)
	}

	// ── 8b. Scroll to trigger lazy-loaded tiles ───────────────────────
	// Grids that load products on scroll render only the first viewport
	// until someone scrolls. A partially loaded grid is still usable, so
	// scroll failures are logged, not fatal.
	if req.ScrollPages > 0 {
		if scrollErr := scrollViewports(p, req.ScrollPages); scrollErr != nil {
			slog.Debug("browser: scroll did not complete",
				"url", req.URL, "error", scrollErr)
		}
		if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
			slog.Debug("browser: dom did not settle after scroll",
				"url", req.URL, "error", stableErr)
		}
	}

	// ── 9. Status code via the performance API ────────────────────────
	// NetworkResponseReceived listeners also clash with the hijack router,
	// so the status comes from the navigation timing entry instead.
	statusCode := 0
	if res, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = res.Value.Int()
	}
	if statusCode >= 400 {
		return nil, fmt.Errorf("browser: status %d for %s", statusCode, req.URL)
	}

	// ── 9b. Strip overlays sitting over the grid ──────────────────────
	if b.cfg.RemoveOverlays {
		removeOverlays(p)
	}

	// ── 10. Extract the rendered page ─────────────────────────────────
	renderedHTML, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: extract html: %w", err)
	}
	title := evalString(p, `() => document.title`)
	finalURL := evalString(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	success = true
	return &FetchResult{
		Body:        renderedHTML,
		Title:       title,
		StatusCode:  statusCode,
		FinalURL:    finalURL,
		ContentType: "text/html",
		EngineName:  b.Name(),
	}, nil
}

// Stats returns a snapshot of the page pool.
func (b *Browser) Stats() PoolStats {
	return PoolStats{
		MaxPages:    b.cfg.MaxPages,
		LivePages:   b.pool.Size(),
		ActivePages: b.pool.ActiveCount(),
	}
}

// Close retires every pooled page and kills the browser process. Call on
// graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining page pool")
	b.pool.Stop()
	slog.Info("browser shutting down: closing browser")
	b.browser.MustClose()
	slog.Info("browser shutdown complete")
}

func (b *Browser) createPage() (int64, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return 0, err
	}
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.pages[id] = page
	b.mu.Unlock()
	return id, nil
}

func (b *Browser) destroyPage(id int64) {
	b.mu.Lock()
	page := b.pages[id]
	delete(b.pages, id)
	b.mu.Unlock()
	if page != nil {
		_ = page.Close()
	}
}

func (b *Browser) page(id int64) *rod.Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[id]
}

// scrollViewports scrolls down by whole viewports, pausing between
// steps so IntersectionObserver-based loaders fire before the next one.
func scrollViewports(p *rod.Page, pages int) error {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < pages; i++ {
		if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
			return fmt.Errorf("scroll step %d: %w", i, err)
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		}
	}
	return nil
}

// evalString evaluates a JS expression and returns the string result,
// swallowing errors (optional metadata only).
func evalString(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders
// type (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// removeOverlays injects JS that removes fixed and sticky elements with
// high z-index, which on retail sites are cookie walls, newsletter
// modals, and region pickers covering the product grid.
func removeOverlays(p *rod.Page) {
	const js = `() => {
		const els = document.querySelectorAll('*');
		for (const el of els) {
			const style = window.getComputedStyle(el);
			const pos = style.position;
			if (pos === 'fixed' || pos === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900 || style.zIndex === 'auto') {
					el.remove();
				}
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[class*="overlay"]',
			'[id*="cookie"]', '[id*="consent"]', '[id*="overlay"]',
			'[class*="popup"]', '[id*="popup"]',
			'[class*="newsletter"]', '[id*="newsletter"]',
			'[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const style = window.getComputedStyle(el);
				if (style.position === 'fixed' || style.position === 'sticky' || style.position === 'absolute') {
					el.remove();
				}
			});
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}
