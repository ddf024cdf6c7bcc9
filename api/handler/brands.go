package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/models"
)

// Brands returns a handler for GET /api/v1/brands.
func Brands(registry *adapter.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		regs := registry.Brands()
		brands := make([]models.BrandInfo, 0, len(regs))
		for _, reg := range regs {
			brands = append(brands, models.BrandInfo{
				Slug:    reg.Slug,
				Name:    reg.Name,
				Adapter: reg.Adapter.Name(),
			})
		}
		c.JSON(http.StatusOK, models.BrandListResponse{
			Success: true,
			Count:   len(brands),
			Brands:  brands,
		})
	}
}
