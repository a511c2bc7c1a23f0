package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetPerformance returns the rollups for a category. Results sit behind the
// read-through cache: rollups only change on recompute, so serving slightly
// stale data is fine.
func (h *Handlers) GetPerformance(c *gin.Context) {
	category := c.Param("category")

	load := func(ctx context.Context, key string) (interface{}, error) {
		return h.reader.PerformanceByCategory(ctx, category)
	}

	var result interface{}
	var err error
	if h.cache != nil {
		result, err = h.cache.Get(c.Request.Context(), "performance:"+category, load)
	} else {
		result, err = load(c.Request.Context(), category)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "records": result})
}
