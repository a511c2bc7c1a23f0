package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drumbeat/pkg/models"
)

// IngestEvent accepts one engagement event over HTTP. Mirrors the Kafka
// feed for callers that cannot produce to the broker.
func (h *Handlers) IngestEvent(c *gin.Context) {
	var ev models.EngagementEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev.ID == "" || ev.ContentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and content_id are required"})
		return
	}

	inq, err := h.ingest.IngestEvent(c.Request.Context(), &ev)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.recordIngested("event")
	if inq != nil {
		h.metrics.recordInquiry(inq.Priority)
		c.JSON(http.StatusAccepted, gin.H{"inquiry": inq})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"inquiry": nil})
}

// IngestMetric accepts one metric snapshot over HTTP.
func (h *Handlers) IngestMetric(c *gin.Context) {
	var snap models.MetricSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if snap.ContentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_id is required"})
		return
	}

	if err := h.ingest.IngestMetric(c.Request.Context(), &snap); err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.recordIngested("metric")
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
