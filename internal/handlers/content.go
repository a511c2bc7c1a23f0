package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"drumbeat/pkg/models"
)

type createContentRequest struct {
	Body     string `json:"body" binding:"required"`
	Category string `json:"category" binding:"required"`
	HookType string `json:"hook_type"`
	Window   struct {
		Start time.Time `json:"start" binding:"required"`
		End   time.Time `json:"end" binding:"required"`
	} `json:"window" binding:"required"`
}

// CreateContent accepts a draft and schedules it into the requested window.
func (h *Handlers) CreateContent(c *gin.Context) {
	var req createContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.scheduler.Enqueue(c.Request.Context(), req.Body, req.Category, req.HookType,
		models.Window{Start: req.Window.Start, End: req.Window.End})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.recordEnqueued(item.Category)
	c.JSON(http.StatusCreated, item)
}

// ListContent returns content items, optionally filtered by state.
func (h *Handlers) ListContent(c *gin.Context) {
	items, err := h.reader.ListContent(c.Request.Context(), c.Query("state"), limitParam(c, 50, 200))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": items})
}

// GetContent returns one content item.
func (h *Handlers) GetContent(c *gin.Context) {
	item, err := h.reader.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RetryContent requeues a failed item.
func (h *Handlers) RetryContent(c *gin.Context) {
	item, err := h.scheduler.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
