package engine

import (
	"context"
	"net/http"
	"time"
)

// Accept values for FetchRequest. Catalog sources are either rendered
// HTML grids or JSON feeds; engines validate the response against what
// the adapter asked for.
const (
	AcceptHTML = "html"
	AcceptJSON = "json"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "browser").
	Name() string

	// Fetch retrieves one catalog page for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Cookies []http.Cookie
	Timeout time.Duration
	Stealth bool

	// Accept is AcceptHTML or AcceptJSON; empty means AcceptHTML.
	Accept string

	// ScrollPages asks a rendering engine to scroll that many viewports
	// down before extraction, so grids that lazy-load tiles on scroll are
	// fully populated. Engines without a viewport ignore it.
	ScrollPages int
}

// WantsJSON reports whether the request is for a JSON feed page.
func (r *FetchRequest) WantsJSON() bool { return r.Accept == AcceptJSON }

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	Body        string
	Title       string
	StatusCode  int
	FinalURL    string
	ContentType string
	EngineName  string
}

// PoolStats is a snapshot of the browser page pool, served by the
// health endpoint.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	LivePages   int `json:"live_pages"`
	ActivePages int `json:"active_pages"`
}
