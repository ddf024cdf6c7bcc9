package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/adapter/brands"
	"github.com/use-agent/stockroom/api"
	"github.com/use-agent/stockroom/api/handler"
	"github.com/use-agent/stockroom/cache"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/engine"
	"github.com/use-agent/stockroom/pipeline"
	"github.com/use-agent/stockroom/store"
	"github.com/use-agent/stockroom/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using system environment")
	}
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("stockroom starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"store", cfg.Store.Driver,
		"brandsFile", cfg.Brands.File,
	)

	// ── 3. Open the product store ────────────────────────────────────
	st, err := openStore(cfg.Store)
	if err != nil {
		slog.Error("failed to open product store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── 4. Build the fetch substrate ─────────────────────────────────
	// The HTTP engine always runs. With multi-engine on, a managed
	// browser joins it behind the racing dispatcher; app-shell detection
	// is only safe then, because there is a browser to escalate to.
	httpEngine := engine.NewHTTPEngine(engine.HTTPOptions{
		Proxy:          cfg.Browser.Proxy,
		UserAgent:      cfg.Ingest.UserAgent,
		DetectAppShell: cfg.Engine.EnableMultiEngine,
	})

	var fetcher adapter.Fetcher = httpEngine
	var pool handler.PoolReporter
	if cfg.Engine.EnableMultiEngine {
		browser, err := engine.NewBrowser(cfg.Browser)
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer browser.Close()
		pool = browser

		engines := []engine.Engine{httpEngine, browser}
		memory := engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
		fetcher = engine.NewDispatcher(engines, cfg.Engine.EscalationDelays, memory)
		slog.Info("multi-engine dispatcher enabled",
			"engines", len(engines),
			"delays", cfg.Engine.EscalationDelays,
		)
	}

	// ── 4b. Fetch cache ──────────────────────────────────────────────
	if cfg.Cache.TTL > 0 {
		fetcher = cache.NewFetcher(fetcher, cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL))
	}

	// ── 5. Register brand adapters ───────────────────────────────────
	brandCfgs, err := config.LoadBrands(cfg.Brands.File)
	if err != nil {
		slog.Error("failed to load brands file", "file", cfg.Brands.File, "error", err)
		os.Exit(1)
	}
	registry, err := brands.BuildRegistry(brandCfgs, fetcher)
	if err != nil {
		slog.Error("failed to build brand registry", "error", err)
		os.Exit(1)
	}
	slog.Info("brand adapters registered", "brands", len(brandCfgs))

	// ── 6. Pipeline, run store, webhooks ─────────────────────────────
	p := pipeline.New(registry, st)
	runs := handler.NewRunStore(cfg.Ingest.RunTTL)
	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)

	// ── 7. Setup router ──────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(p, registry, st, runs, notifier, pool, cfg, startTime)

	// ── 8. Start HTTP server ─────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ─────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete. Background runs are
	// cut off with the process; their writes so far are committed and a
	// re-run is idempotent.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("stockroom stopped")
}

// openStore selects the store backend from configuration.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewMemory(), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.NewPostgres(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
