// Package scheduler owns the content lifecycle: it places drafts into
// ranked publication slots, pushes due items through the external publisher,
// and walks failures through a bounded retry budget.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"drumbeat/pkg/clients/publisher"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

var (
	// ErrInvalidContent rejects a draft without a body or category.
	ErrInvalidContent = errors.New("content needs a body and a category")
	// ErrInvalidWindow rejects a publication window that is inverted or
	// closes before the minimum lead time.
	ErrInvalidWindow = errors.New("publication window is invalid")
	// ErrNotRetryable is returned when a retry is requested for an item
	// that is not in the failed state.
	ErrNotRetryable = errors.New("content item is not in a retryable state")
	// ErrRetriesExhausted is returned when the retry budget is spent; the
	// item is abandoned as a side effect.
	ErrRetriesExhausted = errors.New("retry budget exhausted")
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	CreateContent(ctx context.Context, item *models.ContentItem) error
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	MarkScheduled(ctx context.Context, id string, slot time.Time, experimentID, variant *string) error
	DueContent(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error)
	RecordPublishAttempt(ctx context.Context, id string) error
	MarkPosted(ctx context.Context, id, remoteID string, postedTime time.Time) (bool, error)
	MarkPublishFailed(ctx context.Context, id, reason string) error
	RequeueFailed(ctx context.Context, id string, slot time.Time, maxRetries int) (bool, error)
	MarkAbandoned(ctx context.Context, id string) error
	TopSlots(ctx context.Context, category, dimension string) ([]models.PerformanceRecord, error)
}

// Assigner resolves the experiment variant for newly scheduled content.
type Assigner interface {
	AssignForCategory(ctx context.Context, category, contentID string) (experimentID, variant *string, err error)
}

// Publisher submits content bodies to the external publishing capability.
type Publisher interface {
	Publish(ctx context.Context, body, idempotencyKey string) (*publisher.Result, error)
}

// Scheduler drives the content lifecycle.
type Scheduler struct {
	store     Store
	assigner  Assigner
	publisher Publisher
	logger    logging.Logger

	minLeadTime time.Duration
	maxRetries  int
	batchSize   int

	now func() time.Time
}

// New creates a Scheduler.
func New(st Store, assigner Assigner, pub Publisher, cfg config.Pipeline, logger logging.Logger) *Scheduler {
	return &Scheduler{
		store:       st,
		assigner:    assigner,
		publisher:   pub,
		logger:      logger,
		minLeadTime: cfg.MinLeadTime,
		maxRetries:  cfg.MaxLifecycleRetries,
		batchSize:   50,
		now:         time.Now,
	}
}

// idempotencyKey derives a stable key from the item identity so every
// publish attempt for the same item carries the same key.
func idempotencyKey(contentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("drumbeat:publish:"+contentID)).String()
}

// Enqueue creates a draft, picks the best slot inside the window, assigns
// an experiment variant when one applies, and schedules the item.
func (s *Scheduler) Enqueue(ctx context.Context, body, category, hookType string, window models.Window) (*models.ContentItem, error) {
	if body == "" || category == "" {
		return nil, ErrInvalidContent
	}

	slot, err := s.pickSlot(ctx, category, window)
	if err != nil {
		return nil, err
	}

	item := &models.ContentItem{
		ID:       uuid.NewString(),
		Body:     body,
		Category: category,
		HookType: hookType,
		State:    models.ContentStateDraft,
	}
	item.IdempotencyKey = idempotencyKey(item.ID)
	if err := s.store.CreateContent(ctx, item); err != nil {
		return nil, err
	}

	experimentID, variant, err := s.assigner.AssignForCategory(ctx, category, item.ID)
	if err != nil {
		return nil, fmt.Errorf("assign variant: %w", err)
	}

	if err := s.store.MarkScheduled(ctx, item.ID, slot, experimentID, variant); err != nil {
		return nil, err
	}

	item.State = models.ContentStateScheduled
	item.ScheduledTime = &slot
	item.ExperimentID = experimentID
	item.Variant = variant

	s.logger.WithFields(logging.Fields{
		"content_id": item.ID,
		"category":   category,
		"slot":       slot.Format(time.RFC3339),
	}).Info("Content scheduled")
	return item, nil
}

// pickSlot ranks the hourly slots inside the window by the posting-hour
// rollups for the category and returns the best one. Slots with equal or no
// scores fall back to the earliest candidate, so a cold start still yields
// a valid schedule.
func (s *Scheduler) pickSlot(ctx context.Context, category string, window models.Window) (time.Time, error) {
	now := s.now()
	earliest := now.Add(s.minLeadTime)
	start := window.Start
	if start.Before(earliest) {
		start = earliest
	}
	if !window.End.After(window.Start) || !window.End.After(earliest) {
		return time.Time{}, ErrInvalidWindow
	}

	// Align the first candidate to the next hour boundary at or after start.
	first := start.Truncate(time.Hour)
	if first.Before(start) {
		first = first.Add(time.Hour)
	}
	if first.After(window.End) {
		// Window too narrow for an aligned slot; use the raw start.
		first = start
	}

	scores, err := s.hourScores(ctx, category)
	if err != nil {
		return time.Time{}, err
	}

	best := first
	bestScore := scores[first.Hour()]
	for t := first.Add(time.Hour); !t.After(window.End); t = t.Add(time.Hour) {
		if sc := scores[t.Hour()]; sc > bestScore {
			best, bestScore = t, sc
		}
	}
	return best, nil
}

func (s *Scheduler) hourScores(ctx context.Context, category string) (map[int]float64, error) {
	recs, err := s.store.TopSlots(ctx, category, models.DimensionPostingHour)
	if err != nil {
		return nil, fmt.Errorf("load slot rankings: %w", err)
	}
	scores := make(map[int]float64, len(recs))
	for _, rec := range recs {
		hour, err := strconv.Atoi(rec.Value)
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		if _, seen := scores[hour]; !seen {
			scores[hour] = rec.Score
		}
	}
	return scores, nil
}

// Tick publishes every due item once. Each item gets exactly one outbound
// call per tick; the publisher client bounds retries internally, and the
// conditional posted transition keeps a slow duplicate tick from committing
// the same item twice.
func (s *Scheduler) Tick(ctx context.Context) (published, failed int, err error) {
	now := s.now()
	due, err := s.store.DueContent(ctx, now, s.batchSize)
	if err != nil {
		return 0, 0, err
	}

	for i := range due {
		item := &due[i]
		if err := s.store.RecordPublishAttempt(ctx, item.ID); err != nil {
			s.logger.WithError(err).WithField("content_id", item.ID).Error("Failed to record publish attempt")
			continue
		}

		res, pubErr := s.publisher.Publish(ctx, item.Body, item.IdempotencyKey)
		if pubErr != nil {
			failed++
			if err := s.store.MarkPublishFailed(ctx, item.ID, pubErr.Error()); err != nil {
				s.logger.WithError(err).WithField("content_id", item.ID).Error("Failed to record publish failure")
			}
			s.logger.WithError(pubErr).WithField("content_id", item.ID).Warn("Publish failed")
			continue
		}

		postedAt := s.now()
		if item.ScheduledTime != nil && postedAt.Before(*item.ScheduledTime) {
			postedAt = *item.ScheduledTime
		}
		committed, err := s.store.MarkPosted(ctx, item.ID, res.RemoteID, postedAt)
		if err != nil {
			s.logger.WithError(err).WithField("content_id", item.ID).Error("Failed to commit posted state")
			continue
		}
		if committed {
			published++
		}
	}
	return published, failed, nil
}

// Retry moves a failed item back into the queue with a fresh slot. Once the
// retry budget is spent the item is abandoned instead.
func (s *Scheduler) Retry(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.State != models.ContentStateFailed {
		return nil, ErrNotRetryable
	}

	slot := s.now().Add(s.minLeadTime)
	ok, err := s.store.RequeueFailed(ctx, id, slot, s.maxRetries)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.store.MarkAbandoned(ctx, id); err != nil {
			return nil, err
		}
		s.logger.WithField("content_id", id).Warn("Content abandoned after exhausting retries")
		return nil, ErrRetriesExhausted
	}

	return s.store.GetContent(ctx, id)
}
