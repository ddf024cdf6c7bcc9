package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stockroom/engine"
	"github.com/use-agent/stockroom/models"
	"github.com/use-agent/stockroom/store"
)

// PoolReporter exposes browser page pool stats. Nil when the browser
// engine is disabled.
type PoolReporter interface {
	Stats() engine.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when the store is unreachable or > 80% of pooled
// browser pages are active.
func Health(st store.Store, pool PoolReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Store:   "ok",
			Version: "0.1.0",
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		if err := st.Ping(ctx); err != nil {
			resp.Store = err.Error()
			resp.Status = "degraded"
		}
		cancel()

		if pool != nil {
			stats := pool.Stats()
			resp.PoolStats = &stats
			if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
				resp.Status = "degraded"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
