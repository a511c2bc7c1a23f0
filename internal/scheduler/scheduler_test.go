package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"drumbeat/internal/store"
	"drumbeat/pkg/clients/publisher"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

type fakeStore struct {
	items map[string]*models.ContentItem
	slots []models.PerformanceRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]*models.ContentItem)}
}

func (f *fakeStore) CreateContent(ctx context.Context, item *models.ContentItem) error {
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeStore) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (f *fakeStore) MarkScheduled(ctx context.Context, id string, slot time.Time, experimentID, variant *string) error {
	item, ok := f.items[id]
	if !ok || item.State != models.ContentStateDraft {
		return store.ErrNotFound
	}
	item.State = models.ContentStateScheduled
	item.ScheduledTime = &slot
	item.ExperimentID = experimentID
	item.Variant = variant
	return nil
}

func (f *fakeStore) DueContent(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error) {
	var due []models.ContentItem
	for _, item := range f.items {
		if item.State == models.ContentStateScheduled && item.ScheduledTime != nil && !item.ScheduledTime.After(now) {
			due = append(due, *item)
		}
	}
	return due, nil
}

func (f *fakeStore) RecordPublishAttempt(ctx context.Context, id string) error {
	if item, ok := f.items[id]; ok {
		item.Attempts++
	}
	return nil
}

func (f *fakeStore) MarkPosted(ctx context.Context, id, remoteID string, postedTime time.Time) (bool, error) {
	item, ok := f.items[id]
	if !ok || item.State != models.ContentStateScheduled {
		return false, nil
	}
	item.State = models.ContentStatePosted
	item.PostedTime = &postedTime
	item.RemoteID = &remoteID
	return true, nil
}

func (f *fakeStore) MarkPublishFailed(ctx context.Context, id, reason string) error {
	item, ok := f.items[id]
	if !ok || item.State != models.ContentStateScheduled {
		return nil
	}
	item.State = models.ContentStateFailed
	item.LastError = &reason
	return nil
}

func (f *fakeStore) RequeueFailed(ctx context.Context, id string, slot time.Time, maxRetries int) (bool, error) {
	item, ok := f.items[id]
	if !ok || item.State != models.ContentStateFailed || item.Retries >= maxRetries {
		return false, nil
	}
	item.State = models.ContentStateScheduled
	item.ScheduledTime = &slot
	item.Retries++
	return true, nil
}

func (f *fakeStore) MarkAbandoned(ctx context.Context, id string) error {
	if item, ok := f.items[id]; ok && item.State == models.ContentStateFailed {
		item.State = models.ContentStateAbandoned
	}
	return nil
}

func (f *fakeStore) TopSlots(ctx context.Context, category, dimension string) ([]models.PerformanceRecord, error) {
	return f.slots, nil
}

type fakeAssigner struct {
	experimentID *string
	variant      *string
}

func (f *fakeAssigner) AssignForCategory(ctx context.Context, category, contentID string) (*string, *string, error) {
	return f.experimentID, f.variant, nil
}

type fakePublisher struct {
	calls    int
	failures int
	lastKey  string
}

func (f *fakePublisher) Publish(ctx context.Context, body, idempotencyKey string) (*publisher.Result, error) {
	f.calls++
	f.lastKey = idempotencyKey
	if f.calls <= f.failures {
		return nil, errors.New("publisher unavailable")
	}
	return &publisher.Result{RemoteID: "urn:post:1"}, nil
}

func newTestScheduler(t *testing.T, fs *fakeStore, pub Publisher) *Scheduler {
	t.Helper()
	cfg := config.Pipeline{MinLeadTime: time.Hour, MaxLifecycleRetries: 3}
	s := New(fs, &fakeAssigner{}, pub, cfg, logging.NewLogger())
	return s
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	fs := newFakeStore()
	s := newTestScheduler(t, fs, &fakePublisher{})
	now := time.Now()

	if _, err := s.Enqueue(context.Background(), "", "engineering", "", models.Window{Start: now, End: now.Add(4 * time.Hour)}); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected ErrInvalidContent, got %v", err)
	}
	// Window closes before the minimum lead time.
	if _, err := s.Enqueue(context.Background(), "body", "engineering", "", models.Window{Start: now, End: now.Add(10 * time.Minute)}); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	// Inverted window.
	if _, err := s.Enqueue(context.Background(), "body", "engineering", "", models.Window{Start: now.Add(4 * time.Hour), End: now.Add(2 * time.Hour)}); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestEnqueuePicksHighestScoredSlot(t *testing.T) {
	fs := newFakeStore()
	s := newTestScheduler(t, fs, &fakePublisher{})
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	fs.slots = []models.PerformanceRecord{
		{Category: "engineering", Dimension: models.DimensionPostingHour, Value: "17", Score: 0.9},
		{Category: "engineering", Dimension: models.DimensionPostingHour, Value: "9", Score: 0.7},
	}

	window := models.Window{Start: base, End: base.Add(14 * time.Hour)}
	item, err := s.Enqueue(context.Background(), "post body", "engineering", "question", window)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.State != models.ContentStateScheduled {
		t.Fatalf("expected scheduled state, got %s", item.State)
	}
	if item.ScheduledTime == nil || item.ScheduledTime.Hour() != 17 {
		t.Fatalf("expected 17:00 slot, got %v", item.ScheduledTime)
	}
	if item.ScheduledTime.Before(base.Add(time.Hour)) {
		t.Fatalf("slot violates minimum lead time")
	}
}

func TestEnqueueFallsBackToEarliestSlot(t *testing.T) {
	fs := newFakeStore()
	s := newTestScheduler(t, fs, &fakePublisher{})
	base := time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	window := models.Window{Start: base, End: base.Add(8 * time.Hour)}
	item, err := s.Enqueue(context.Background(), "post body", "engineering", "", window)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// No rollups: earliest aligned slot after the lead time, 08:00.
	if item.ScheduledTime == nil || item.ScheduledTime.Hour() != 8 {
		t.Fatalf("expected 08:00 fallback slot, got %v", item.ScheduledTime)
	}
}

func TestTickPublishesDueContent(t *testing.T) {
	fs := newFakeStore()
	pub := &fakePublisher{}
	s := newTestScheduler(t, fs, pub)
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	item, err := s.Enqueue(context.Background(), "post body", "engineering", "", models.Window{Start: base, End: base.Add(6 * time.Hour)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Before the slot nothing is due.
	published, failed, err := s.Tick(context.Background())
	if err != nil || published != 0 || failed != 0 {
		t.Fatalf("early tick: published=%d failed=%d err=%v", published, failed, err)
	}

	s.now = func() time.Time { return item.ScheduledTime.Add(time.Minute) }
	published, failed, err = s.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if published != 1 || failed != 0 {
		t.Fatalf("expected one publish, got published=%d failed=%d", published, failed)
	}

	got := fs.items[item.ID]
	if got.State != models.ContentStatePosted {
		t.Fatalf("expected posted state, got %s", got.State)
	}
	if got.PostedTime == nil || got.PostedTime.Before(*got.ScheduledTime) {
		t.Fatalf("posted time %v precedes scheduled time %v", got.PostedTime, got.ScheduledTime)
	}
	if pub.lastKey != got.IdempotencyKey {
		t.Fatalf("publish used key %q, item has %q", pub.lastKey, got.IdempotencyKey)
	}

	// A second tick must not publish the item again.
	published, _, err = s.Tick(context.Background())
	if err != nil || published != 0 {
		t.Fatalf("second tick republished: published=%d err=%v", published, err)
	}
	if pub.calls != 1 {
		t.Fatalf("expected a single publish call, got %d", pub.calls)
	}
}

func TestFailedPublishThenRetryLifecycle(t *testing.T) {
	fs := newFakeStore()
	pub := &fakePublisher{failures: 1}
	s := newTestScheduler(t, fs, pub)
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	item, err := s.Enqueue(context.Background(), "post body", "engineering", "", models.Window{Start: base, End: base.Add(6 * time.Hour)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s.now = func() time.Time { return item.ScheduledTime.Add(time.Minute) }
	published, failed, err := s.Tick(context.Background())
	if err != nil || published != 0 || failed != 1 {
		t.Fatalf("tick: published=%d failed=%d err=%v", published, failed, err)
	}
	if fs.items[item.ID].State != models.ContentStateFailed {
		t.Fatalf("expected failed state")
	}

	retried, err := s.Retry(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.State != models.ContentStateScheduled || retried.Retries != 1 {
		t.Fatalf("unexpected retried item %+v", retried)
	}

	s.now = func() time.Time { return retried.ScheduledTime.Add(time.Minute) }
	published, failed, err = s.Tick(context.Background())
	if err != nil || published != 1 || failed != 0 {
		t.Fatalf("retry tick: published=%d failed=%d err=%v", published, failed, err)
	}
	if fs.items[item.ID].State != models.ContentStatePosted {
		t.Fatalf("expected posted after retry")
	}
}

func TestRetryBudgetLeadsToAbandonment(t *testing.T) {
	fs := newFakeStore()
	s := newTestScheduler(t, fs, &fakePublisher{})
	now := time.Now()
	reason := "publisher unavailable"
	fs.items["item-1"] = &models.ContentItem{
		ID:        "item-1",
		State:     models.ContentStateFailed,
		Retries:   3,
		LastError: &reason,
		CreatedAt: now,
	}

	_, err := s.Retry(context.Background(), "item-1")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if fs.items["item-1"].State != models.ContentStateAbandoned {
		t.Fatalf("expected abandoned state, got %s", fs.items["item-1"].State)
	}
}

func TestRetryRejectsNonFailedItem(t *testing.T) {
	fs := newFakeStore()
	s := newTestScheduler(t, fs, &fakePublisher{})
	fs.items["item-1"] = &models.ContentItem{ID: "item-1", State: models.ContentStatePosted}

	if _, err := s.Retry(context.Background(), "item-1"); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
}
