package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"drumbeat/pkg/models"
)

// ListInquiries returns inquiries by priority, optionally filtered by status
// and a minimum priority.
func (h *Handlers) ListInquiries(c *gin.Context) {
	minPriority, _ := strconv.Atoi(c.Query("min_priority"))
	if minPriority < 0 {
		minPriority = 0
	}
	inqs, err := h.reader.ListInquiries(c.Request.Context(), c.Query("status"), minPriority, limitParam(c, 50, 200))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inquiries": inqs})
}

// GetInquiry returns one inquiry.
func (h *Handlers) GetInquiry(c *gin.Context) {
	inq, err := h.reader.GetInquiry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inq)
}

type updateInquiryStatusRequest struct {
	Status models.InquiryStatus `json:"status" binding:"required"`
}

// UpdateInquiryStatus applies a review decision.
func (h *Handlers) UpdateInquiryStatus(c *gin.Context) {
	var req updateInquiryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inq, err := h.inquiries.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inq)
}
