package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createExperimentRequest struct {
	Dimension     string   `json:"dimension" binding:"required"`
	Category      string   `json:"category"`
	Variants      []string `json:"variants" binding:"required"`
	MinSampleSize int      `json:"min_sample_size" binding:"required"`
	Confidence    float64  `json:"confidence"`
}

// CreateExperiment defines a new running experiment.
func (h *Handlers) CreateExperiment(c *gin.Context) {
	var req createExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exp, err := h.experiments.Define(c.Request.Context(), req.Dimension, req.Category, req.Variants, req.MinSampleSize, req.Confidence)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

// ListExperiments returns experiments, newest first.
func (h *Handlers) ListExperiments(c *gin.Context) {
	exps, err := h.reader.ListExperiments(c.Request.Context(), limitParam(c, 50, 200))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": exps})
}

// GetExperiment returns one experiment.
func (h *Handlers) GetExperiment(c *gin.Context) {
	exp, err := h.reader.GetExperiment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// EvaluateExperiment runs one on-demand evaluation pass.
func (h *Handlers) EvaluateExperiment(c *gin.Context) {
	outcome, err := h.experiments.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// CancelExperiment stops a running experiment.
func (h *Handlers) CancelExperiment(c *gin.Context) {
	if err := h.experiments.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
