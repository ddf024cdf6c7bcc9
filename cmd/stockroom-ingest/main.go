// Command stockroom-ingest runs one catalog ingestion from the command
// line and prints the run snapshot as JSON on stdout. Logs go to stderr.
//
// Usage:
//
//	stockroom-ingest -url https://shop.example.com/products.json -slug acme [-dry-run]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/adapter/brands"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/engine"
	"github.com/use-agent/stockroom/models"
	"github.com/use-agent/stockroom/pipeline"
	"github.com/use-agent/stockroom/store"
)

func main() {
	var (
		urlFlag     = flag.String("url", "", "catalog or category URL to ingest (required)")
		slugFlag    = flag.String("slug", "", "brand slug to resolve the adapter by (required)")
		nameFlag    = flag.String("brand", "", "informational brand name")
		dryRun      = flag.Bool("dry-run", false, "classify items without writing to the store")
		brandsFile  = flag.String("brands-file", "", "brands YAML path (overrides STOCKROOM_BRANDS_FILE)")
		multiEngine = flag.Bool("multi-engine", false, "race a headless browser against the HTTP engine")
	)
	flag.Parse()

	if *urlFlag == "" || *slugFlag == "" {
		fmt.Fprintln(os.Stderr, "both -url and -slug are required")
		flag.Usage()
		os.Exit(2)
	}

	// ── 1. Configuration and logging ─────────────────────────────────
	_ = godotenv.Load()
	cfg := config.Load()
	if *brandsFile != "" {
		cfg.Brands.File = *brandsFile
	}
	cfg.Engine.EnableMultiEngine = *multiEngine
	initLogger(cfg.Log)

	if err := run(cfg, *urlFlag, *nameFlag, *slugFlag, *dryRun); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, url, brandName, brandSlug string, dryRun bool) error {
	// ── 2. Open the product store ────────────────────────────────────
	st, err := openStore(cfg.Store)
	if err != nil {
		slog.Error("failed to open product store", "driver", cfg.Store.Driver, "error", err)
		return err
	}
	defer st.Close()

	// ── 3. Build the fetch substrate ─────────────────────────────────
	httpEngine := engine.NewHTTPEngine(engine.HTTPOptions{
		Proxy:          cfg.Browser.Proxy,
		UserAgent:      cfg.Ingest.UserAgent,
		DetectAppShell: cfg.Engine.EnableMultiEngine,
	})

	var fetcher adapter.Fetcher = httpEngine
	if cfg.Engine.EnableMultiEngine {
		browser, err := engine.NewBrowser(cfg.Browser)
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			return err
		}
		defer browser.Close()

		memory := engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
		fetcher = engine.NewDispatcher(
			[]engine.Engine{httpEngine, browser},
			cfg.Engine.EscalationDelays,
			memory,
		)
	}

	// ── 4. Register brand adapters ───────────────────────────────────
	brandCfgs, err := config.LoadBrands(cfg.Brands.File)
	if err != nil {
		slog.Error("failed to load brands file", "file", cfg.Brands.File, "error", err)
		return err
	}
	registry, err := brands.BuildRegistry(brandCfgs, fetcher)
	if err != nil {
		slog.Error("failed to build brand registry", "error", err)
		return err
	}

	// ── 5. Cancel on SIGINT; the pipeline checkpoints between items ──
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Warn("signal received, cancelling run", "signal", sig.String())
		cancel()
		<-sigCh
		os.Exit(1)
	}()

	// ── 6. Execute and print the snapshot ────────────────────────────
	p := pipeline.New(registry, st)
	run := pipeline.NewRun(url, brandName, brandSlug, dryRun)
	execErr := p.Execute(ctx, run)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run.Snapshot()); err != nil {
		slog.Error("failed to encode run snapshot", "error", err)
		return err
	}

	if execErr != nil {
		slog.Error("run failed", "code", models.Classify(execErr).Code, "error", execErr)
		return execErr
	}
	return nil
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

// initLogger configures slog on stderr so stdout stays clean for the
// JSON snapshot.
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
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
