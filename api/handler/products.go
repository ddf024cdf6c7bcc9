package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stockroom/models"
	"github.com/use-agent/stockroom/store"
)

// ListProducts returns a handler for GET /api/v1/products/:brand.
// Products come back in external-ID order; limit/offset page through them.
func ListProducts(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		brand := c.Param("brand")

		var q models.ListProductsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, models.ProductListResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		q.Defaults()

		total, err := st.CountByBrand(c.Request.Context(), brand)
		if err != nil {
			respondError(c, err)
			return
		}
		products, err := st.ListByBrand(c.Request.Context(), brand, q.Limit, q.Offset)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ProductListResponse{
			Success:   true,
			BrandSlug: brand,
			Total:     total,
			Limit:     q.Limit,
			Offset:    q.Offset,
			Products:  products,
		})
	}
}

// GetProduct returns a handler for GET /api/v1/products/:brand/:external_id.
func GetProduct(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		brand := c.Param("brand")
		externalID := c.Param("external_id")

		product, err := st.FindByNaturalKey(c.Request.Context(), brand, externalID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, models.ProductResponse{
					Success: false,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeProductNotFound,
						Message: "no product " + externalID + " for brand " + brand,
					},
				})
				return
			}
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ProductResponse{
			Success: true,
			Product: product,
		})
	}
}
