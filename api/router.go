package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/api/handler"
	"github.com/use-agent/stockroom/api/middleware"
	"github.com/use-agent/stockroom/config"
	"github.com/use-agent/stockroom/pipeline"
	"github.com/use-agent/stockroom/store"
	"github.com/use-agent/stockroom/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(
	p *pipeline.Pipeline,
	registry *adapter.Registry,
	st store.Store,
	runs *handler.RunStore,
	notifier *webhook.Notifier,
	pool handler.PoolReporter,
	cfg *config.Config,
	startTime time.Time,
) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(st, pool, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Ingestion
	protected.POST("/ingest", handler.PostIngest(p, runs, notifier))

	// Runs
	protected.GET("/runs", handler.ListRuns(runs))
	protected.GET("/runs/:id", handler.GetRun(runs))
	protected.POST("/runs/:id/cancel", handler.CancelRun(runs))

	// Brands
	protected.GET("/brands", handler.Brands(registry))

	// Products
	protected.GET("/products/:brand", handler.ListProducts(st))
	protected.GET("/products/:brand/:external_id", handler.GetProduct(st))

	return r
}
