// Package handlers exposes the HTTP surface: a JWT-protected dashboard and
// ops API, a service-token ingestion mirror of the Kafka feeds, and a
// websocket feed of newly detected inquiries.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"drumbeat/internal/experiments"
	"drumbeat/internal/inquiries"
	"drumbeat/internal/scheduler"
	"drumbeat/internal/store"
	"drumbeat/pkg/auth"
	"drumbeat/pkg/cache"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
	"drumbeat/pkg/monitoring"
)

// Scheduler is the content lifecycle surface.
type Scheduler interface {
	Enqueue(ctx context.Context, body, category, hookType string, window models.Window) (*models.ContentItem, error)
	Retry(ctx context.Context, id string) (*models.ContentItem, error)
}

// ExperimentService is the experiment lifecycle surface.
type ExperimentService interface {
	Define(ctx context.Context, dimension, category string, variants []string, minSampleSize int, confidence float64) (*models.Experiment, error)
	Evaluate(ctx context.Context, experimentID string) (*experiments.Outcome, error)
	Cancel(ctx context.Context, experimentID string) error
}

// InquiryService applies review decisions.
type InquiryService interface {
	UpdateStatus(ctx context.Context, id string, status models.InquiryStatus) (*models.Inquiry, error)
}

// Ingest is the HTTP mirror of the engagement feeds.
type Ingest interface {
	IngestEvent(ctx context.Context, ev *models.EngagementEvent) (*models.Inquiry, error)
	IngestMetric(ctx context.Context, snap *models.MetricSnapshot) error
}

// Reader covers the dashboard read queries.
type Reader interface {
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	ListContent(ctx context.Context, state string, limit int) ([]models.ContentItem, error)
	GetExperiment(ctx context.Context, id string) (*models.Experiment, error)
	ListExperiments(ctx context.Context, limit int) ([]models.Experiment, error)
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	ListInquiries(ctx context.Context, status string, minPriority, limit int) ([]models.Inquiry, error)
	PerformanceByCategory(ctx context.Context, category string) ([]models.PerformanceRecord, error)
}

// Metrics holds the pipeline counters.
type Metrics struct {
	contentEnqueued   *prometheus.CounterVec
	eventsIngested    *prometheus.CounterVec
	inquiriesDetected *prometheus.CounterVec
}

// NewMetrics registers the pipeline counters. Nil-safe: a nil collector
// yields nil metrics, and recording on nil metrics is a no-op.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	if mc == nil {
		return nil
	}
	return &Metrics{
		contentEnqueued:   mc.NewCounter("content_enqueued_total", "Content items accepted for scheduling", []string{"category"}),
		eventsIngested:    mc.NewCounter("engagement_events_ingested_total", "Engagement events accepted over HTTP", []string{"kind"}),
		inquiriesDetected: mc.NewCounter("inquiries_detected_total", "Inquiries created from engagement events", []string{"priority"}),
	}
}

func (m *Metrics) recordEnqueued(category string) {
	if m != nil {
		m.contentEnqueued.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) recordIngested(kind string) {
	if m != nil {
		m.eventsIngested.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) recordInquiry(priority int) {
	if m != nil {
		m.inquiriesDetected.WithLabelValues(strconv.Itoa(priority)).Inc()
	}
}

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	reader      Reader
	scheduler   Scheduler
	experiments ExperimentService
	inquiries   InquiryService
	ingest      Ingest
	cache       *cache.Cache
	hub         *Hub
	logger      logging.Logger
	metrics     *Metrics
}

// New creates the handler set. Cache and hub are optional.
func New(reader Reader, sched Scheduler, exps ExperimentService, inqs InquiryService, ing Ingest, c *cache.Cache, hub *Hub, logger logging.Logger, metrics *Metrics) *Handlers {
	return &Handlers{
		reader:      reader,
		scheduler:   sched,
		experiments: exps,
		inquiries:   inqs,
		ingest:      ing,
		cache:       c,
		hub:         hub,
		logger:      logger,
		metrics:     metrics,
	}
}

// RegisterRoutes attaches the API to the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine, jwtSecret []byte, serviceToken string) {
	api := router.Group("/api/v1", auth.JWTAuthMiddleware(jwtSecret))
	{
		api.POST("/content", h.CreateContent)
		api.GET("/content", h.ListContent)
		api.GET("/content/:id", h.GetContent)
		api.POST("/content/:id/retry", h.RetryContent)

		api.POST("/experiments", h.CreateExperiment)
		api.GET("/experiments", h.ListExperiments)
		api.GET("/experiments/:id", h.GetExperiment)
		api.POST("/experiments/:id/evaluate", h.EvaluateExperiment)
		api.POST("/experiments/:id/cancel", h.CancelExperiment)

		api.GET("/inquiries", h.ListInquiries)
		api.GET("/inquiries/:id", h.GetInquiry)
		api.PUT("/inquiries/:id/status", h.UpdateInquiryStatus)

		api.GET("/performance/:category", h.GetPerformance)
	}

	ingest := router.Group("/ingest/v1", auth.ServiceAuthMiddleware(serviceToken))
	{
		ingest.POST("/events", h.IngestEvent)
		ingest.POST("/metrics", h.IngestMetric)
	}

	if h.hub != nil {
		router.GET("/ws", h.ServeWS(jwtSecret))
	}
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, scheduler.ErrInvalidContent),
		errors.Is(err, scheduler.ErrInvalidWindow),
		errors.Is(err, experiments.ErrInvalidExperiment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, experiments.ErrDuplicateExperiment),
		errors.Is(err, experiments.ErrNotRunning),
		errors.Is(err, scheduler.ErrNotRetryable),
		errors.Is(err, inquiries.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrRetriesExhausted):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func limitParam(c *gin.Context, def, max int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
