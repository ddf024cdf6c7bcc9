package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stockroom/models"
	"github.com/use-agent/stockroom/pipeline"
	"github.com/use-agent/stockroom/webhook"
)

// PostIngest returns a handler for POST /api/v1/ingest.
//
// Orchestration flow:
//  1. Parse & validate request.
//  2. Resolve the brand slug so unknown brands fail before a run exists.
//  3. wait=true: execute on the request context, return the final report.
//     wait=false: execute in the background, return 202 with the run ID.
//
// Either way the run is registered in the run store, so polling and
// cancellation work for synchronous runs too.
func PostIngest(p *pipeline.Pipeline, runs *RunStore, notifier *webhook.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.IngestResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Reject unknown brands up front ───────────────────────
		if _, err := p.ResolveBrand(req.BrandSlug); err != nil {
			respondError(c, err)
			return
		}

		run := pipeline.NewRun(req.URL, req.BrandName, req.BrandSlug, req.DryRun)

		// ── 3a. Synchronous: caller waits for the terminal report ───
		if req.Wait {
			ctx, cancel := context.WithCancel(c.Request.Context())
			runs.Add(run, cancel)
			err := p.Execute(ctx, run)
			cancel()

			snap := run.Snapshot()
			notifier.RunFinished(snap)

			if err != nil {
				ingErr := models.Classify(err)
				c.JSON(mapErrorToStatus(ingErr), models.IngestResponse{
					Success: false,
					Run:     &snap,
					Error:   ingErr.ToDetail(),
				})
				return
			}
			c.JSON(http.StatusOK, models.IngestResponse{
				Success: true,
				Run:     &snap,
			})
			return
		}

		// ── 3b. Asynchronous: launch and hand back the run ID ────────
		ctx, cancel := context.WithCancel(context.Background())
		runs.Add(run, cancel)
		go func() {
			defer cancel()
			// Execute logs its own outcome; the snapshot carries the
			// error for pollers.
			_ = p.Execute(ctx, run)
			notifier.RunFinished(run.Snapshot())
		}()

		snap := run.Snapshot()
		c.JSON(http.StatusAccepted, models.IngestResponse{
			Success: true,
			Run:     &snap,
		})
	}
}

// respondError classifies an error and writes the structured JSON error
// response with the matching HTTP status code.
func respondError(c *gin.Context, err error) {
	ingErr := models.Classify(err)
	c.JSON(mapErrorToStatus(ingErr), models.IngestResponse{
		Success: false,
		Error:   ingErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.IngestError) int {
	switch e.Code {
	case models.ErrCodeUnknownBrand:
		return http.StatusNotFound // 404
	case models.ErrCodeRunNotFound, models.ErrCodeProductNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeDuplicateBrand:
		return http.StatusConflict // 409
	case models.ErrCodeRunCancelled:
		return http.StatusConflict // 409
	case models.ErrCodeAdapterFetch:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeNormalization:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
