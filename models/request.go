package models

// IngestRequest is the payload for POST /api/v1/ingest.
type IngestRequest struct {
	// URL is the catalog or category page to ingest. Required.
	URL string `json:"url" binding:"required,url"`

	// BrandSlug selects the registered adapter. Required; resolution is
	// by slug alone.
	BrandSlug string `json:"brand_slug" binding:"required"`

	// BrandName is informational and recorded on the run. When empty it
	// is filled from the adapter registration.
	BrandName string `json:"brand_name,omitempty"`

	// DryRun classifies every item (create/update/skip) without writing
	// anything to the store.
	// Default: false.
	DryRun bool `json:"dry_run,omitempty"`

	// Wait blocks the request until the run reaches a terminal state and
	// returns the final report. When false the run executes in the
	// background and the response carries a run_id for polling.
	// Default: false.
	Wait bool `json:"wait,omitempty"`
}

// ListProductsQuery is the query string for GET /api/v1/products/:brand.
type ListProductsQuery struct {
	// Limit caps the number of products returned. Default: 50. Max: 500.
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`

	// Offset skips that many products in external-ID order.
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (q *ListProductsQuery) Defaults() {
	if q.Limit == 0 {
		q.Limit = 50
	}
}
