// Package ingest accepts engagement events and metric snapshots from the
// outside world. The same ingestion path backs both the Kafka feed and the
// HTTP mirror, so replays and out-of-band submissions behave identically.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"drumbeat/internal/store"
	"drumbeat/pkg/kafka"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

// Kafka topics carrying the engagement feeds.
const (
	TopicEngagementEvents  = "engagement.events"
	TopicEngagementMetrics = "engagement.metrics"
)

// Store is the persistence surface the ingestor needs.
type Store interface {
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	InsertMetricSnapshot(ctx context.Context, m *models.MetricSnapshot) error
	HasObservation(ctx context.Context, experimentID, contentID string) (bool, error)
}

// EventProcessor turns raw events into inquiries.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *models.EngagementEvent) (*models.Inquiry, error)
}

// ObservationRecorder appends experiment observations.
type ObservationRecorder interface {
	RecordObservation(ctx context.Context, experimentID, contentID, variant string, value float64) error
}

// Ingestor routes inbound engagement data.
type Ingestor struct {
	store    Store
	events   EventProcessor
	recorder ObservationRecorder
	logger   logging.Logger

	now func() time.Time
}

// New creates an Ingestor.
func New(st Store, events EventProcessor, recorder ObservationRecorder, logger logging.Logger) *Ingestor {
	return &Ingestor{
		store:    st,
		events:   events,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestEvent feeds one engagement event through the inquiry detector.
func (i *Ingestor) IngestEvent(ctx context.Context, ev *models.EngagementEvent) (*models.Inquiry, error) {
	return i.events.ProcessEvent(ctx, ev)
}

// IngestMetric stores a metric snapshot and, when the measured item carries
// an experiment assignment, records the measurement as an observation. An
// item contributes one observation to its experiment no matter how often it
// is re-measured, so repeat snapshots cannot inflate the sample count.
func (i *Ingestor) IngestMetric(ctx context.Context, snap *models.MetricSnapshot) error {
	if snap.ContentID == "" {
		return fmt.Errorf("metric snapshot needs a content id")
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = i.now()
	}

	if err := i.store.InsertMetricSnapshot(ctx, snap); err != nil {
		return err
	}

	item, err := i.store.GetContent(ctx, snap.ContentID)
	if errors.Is(err, store.ErrNotFound) {
		// Metrics can arrive for content this system never scheduled.
		return nil
	}
	if err != nil {
		return err
	}

	if item.ExperimentID != nil && item.Variant != nil {
		seen, err := i.store.HasObservation(ctx, *item.ExperimentID, item.ID)
		if err != nil {
			return fmt.Errorf("check observation: %w", err)
		}
		if !seen {
			if err := i.recorder.RecordObservation(ctx, *item.ExperimentID, item.ID, *item.Variant, snap.EngagementRate); err != nil {
				return fmt.Errorf("record observation: %w", err)
			}
		}
	}
	return nil
}

// EventHandler decodes the engagement.events feed.
func (i *Ingestor) EventHandler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev models.EngagementEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			// A malformed message never becomes valid; drop it instead of
			// blocking the partition.
			i.logger.WithError(err).WithField("offset", msg.Offset).Warn("Dropping malformed engagement event")
			return nil
		}
		_, err := i.IngestEvent(ctx, &ev)
		return err
	}
}

// MetricHandler decodes the engagement.metrics feed.
func (i *Ingestor) MetricHandler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var snap models.MetricSnapshot
		if err := json.Unmarshal(msg.Value, &snap); err != nil {
			i.logger.WithError(err).WithField("offset", msg.Offset).Warn("Dropping malformed metric snapshot")
			return nil
		}
		return i.IngestMetric(ctx, &snap)
	}
}
