package models

import (
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/engine"
	"github.com/use-agent/stockroom/pipeline"
)

// IngestResponse is the response for POST /api/v1/ingest.
//
// wait=true returns the terminal snapshot with the final report;
// otherwise the snapshot is the freshly started run and the caller
// polls GET /runs/:id with its ID.
type IngestResponse struct {
	// Success indicates whether the run completed (or, for async
	// submission, was accepted) without a run-fatal error.
	Success bool `json:"success"`

	// Run is the run snapshot: terminal for wait=true, initial otherwise.
	Run *pipeline.Snapshot `json:"run,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// RunResponse is the response for GET /api/v1/runs/:id and
// POST /api/v1/runs/:id/cancel.
type RunResponse struct {
	Success bool               `json:"success"`
	Run     *pipeline.Snapshot `json:"run,omitempty"`
	Error   *ErrorDetail       `json:"error,omitempty"`
}

// RunListResponse is the response for GET /api/v1/runs.
type RunListResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Runs    []pipeline.Snapshot `json:"runs"`
}

// BrandInfo describes one registered brand adapter.
type BrandInfo struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Adapter string `json:"adapter"`
}

// BrandListResponse is the response for GET /api/v1/brands.
type BrandListResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Brands  []BrandInfo `json:"brands"`
}

// ProductResponse is the response for GET /api/v1/products/:brand/:external_id.
type ProductResponse struct {
	Success bool             `json:"success"`
	Product *catalog.Product `json:"product,omitempty"`
	Error   *ErrorDetail     `json:"error,omitempty"`
}

// ProductListResponse is the response for GET /api/v1/products/:brand.
type ProductListResponse struct {
	Success   bool               `json:"success"`
	BrandSlug string             `json:"brand_slug"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	Products  []*catalog.Product `json:"products"`
	Error     *ErrorDetail       `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string            `json:"status"` // "healthy" or "degraded"
	Uptime    string            `json:"uptime"`
	Store     string            `json:"store"` // "ok" or the ping error
	PoolStats *engine.PoolStats `json:"pool_stats,omitempty"`
	Version   string            `json:"version"`
}
