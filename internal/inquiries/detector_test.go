package inquiries

import (
	"context"
	"errors"
	"testing"
	"time"

	"drumbeat/internal/store"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

type fakeStore struct {
	events    map[string]*models.EngagementEvent
	inquiries map[string]*models.Inquiry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    make(map[string]*models.EngagementEvent),
		inquiries: make(map[string]*models.Inquiry),
	}
}

func (f *fakeStore) InsertEvent(ctx context.Context, ev *models.EngagementEvent) (bool, error) {
	if _, exists := f.events[ev.ID]; exists {
		return false, nil
	}
	cp := *ev
	f.events[ev.ID] = &cp
	return true, nil
}

func (f *fakeStore) GetEvent(ctx context.Context, id string) (*models.EngagementEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeStore) MarkEventProcessed(ctx context.Context, eventID string, inquiryID *string) error {
	if ev, ok := f.events[eventID]; ok {
		ev.Processed = true
		ev.InquiryID = inquiryID
	}
	return nil
}

func (f *fakeStore) CreateInquiry(ctx context.Context, inq *models.Inquiry) error {
	cp := *inq
	f.inquiries[inq.ID] = &cp
	return nil
}

func (f *fakeStore) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	inq, ok := f.inquiries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inq
	return &cp, nil
}

func (f *fakeStore) FindRecentInquiry(ctx context.Context, actorRef, contentID string, since time.Time) (*models.Inquiry, error) {
	for _, inq := range f.inquiries {
		if inq.ActorRef == actorRef && inq.ContentID == contentID && !inq.CreatedAt.Before(since) {
			cp := *inq
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) IncrementCorroborations(ctx context.Context, id string) error {
	if inq, ok := f.inquiries[id]; ok {
		inq.Corroborations++
	}
	return nil
}

func (f *fakeStore) UpdateInquiryStatus(ctx context.Context, id string, status models.InquiryStatus) error {
	inq, ok := f.inquiries[id]
	if !ok {
		return store.ErrNotFound
	}
	inq.Status = status
	return nil
}

func newTestDetector(t *testing.T) (*Detector, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	cfg := config.Pipeline{DedupWindow: 24 * time.Hour}
	d, err := New(fs, nil, config.DefaultTaxonomy(), cfg, logging.NewLogger())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d, fs
}

func event(id, contentID, actor, text string) *models.EngagementEvent {
	return &models.EngagementEvent{
		ID:         id,
		ContentID:  contentID,
		ActorRef:   actor,
		RawText:    text,
		ReceivedAt: time.Now(),
	}
}

func TestProcessEventCreatesInquiry(t *testing.T) {
	d, fs := newTestDetector(t)
	ctx := context.Background()

	inq, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1",
		"Loved this. We'd like to hire you for a consultation, our budget is flexible."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if inq == nil {
		t.Fatal("expected an inquiry")
	}
	// Strongest signal wins: consultation ask (5) over budget mention (4).
	if inq.Priority != 5 {
		t.Fatalf("expected priority 5, got %d", inq.Priority)
	}
	if len(inq.Categories) != 2 {
		t.Fatalf("expected both categories recorded, got %v", inq.Categories)
	}
	if inq.EstimatedValue != 70000 {
		t.Fatalf("expected band midpoint 70000, got %v", inq.EstimatedValue)
	}
	if inq.Status != models.InquiryStatusNew {
		t.Fatalf("expected new status, got %s", inq.Status)
	}
	if ev := fs.events["ev-1"]; !ev.Processed || ev.InquiryID == nil {
		t.Fatalf("event not linked to inquiry: %+v", ev)
	}
}

func TestPriorityIsMaxNotSum(t *testing.T) {
	d, _ := newTestDetector(t)

	// Matches consultation (5), budget (4) and timeline (3); a summed score
	// would blow past the scale.
	inq, err := d.ProcessEvent(context.Background(), event("ev-1", "content-1", "actor-1",
		"Can we discuss a project? Budget approved, starting date next month."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if inq.Priority != 5 {
		t.Fatalf("expected priority capped at the strongest signal, got %d", inq.Priority)
	}
}

func TestNoSignalStillMarksProcessed(t *testing.T) {
	d, fs := newTestDetector(t)

	inq, err := d.ProcessEvent(context.Background(), event("ev-1", "content-1", "actor-1",
		"Nice weather today."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if inq != nil {
		t.Fatalf("expected no inquiry, got %+v", inq)
	}
	ev := fs.events["ev-1"]
	if !ev.Processed || ev.InquiryID != nil {
		t.Fatalf("expected processed event without inquiry, got %+v", ev)
	}
}

func TestReplayedEventReturnsPriorInquiry(t *testing.T) {
	d, fs := newTestDetector(t)
	ctx := context.Background()

	first, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1", "interested in consulting"))
	if err != nil || first == nil {
		t.Fatalf("first process: inq=%v err=%v", first, err)
	}
	replay, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1", "interested in consulting"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay == nil || replay.ID != first.ID {
		t.Fatalf("expected replay to resolve to inquiry %s, got %+v", first.ID, replay)
	}
	if replay.Corroborations != first.Corroborations {
		t.Fatalf("replay must not corroborate: got %d, want %d", replay.Corroborations, first.Corroborations)
	}
	if len(fs.inquiries) != 1 {
		t.Fatalf("expected one inquiry, got %d", len(fs.inquiries))
	}
}

func TestReplayedNoSignalEventStaysNil(t *testing.T) {
	d, fs := newTestDetector(t)
	ctx := context.Background()

	if inq, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1", "nice weather today")); err != nil || inq != nil {
		t.Fatalf("first process: inq=%v err=%v", inq, err)
	}
	replay, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1", "nice weather today"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay != nil {
		t.Fatalf("no-signal replay should stay nil, got %+v", replay)
	}
	if len(fs.inquiries) != 0 {
		t.Fatalf("expected no inquiries, got %d", len(fs.inquiries))
	}
}

func TestDuplicateActorCorroboratesWithinWindow(t *testing.T) {
	d, fs := newTestDetector(t)
	ctx := context.Background()

	first, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1", "interested in your consulting rates"))
	if err != nil || first == nil {
		t.Fatalf("first process: inq=%v err=%v", first, err)
	}

	second, err := d.ProcessEvent(ctx, event("ev-2", "content-1", "actor-1", "following up, can we discuss a project?"))
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("expected corroboration of %s, got %+v", first.ID, second)
	}
	if second.Corroborations != 1 {
		t.Fatalf("expected 1 corroboration, got %d", second.Corroborations)
	}
	if len(fs.inquiries) != 1 {
		t.Fatalf("expected a single inquiry, got %d", len(fs.inquiries))
	}
	if ev := fs.events["ev-2"]; ev.InquiryID == nil || *ev.InquiryID != first.ID {
		t.Fatalf("corroborating event not linked: %+v", ev)
	}
}

func TestDifferentActorCreatesSeparateInquiry(t *testing.T) {
	d, fs := newTestDetector(t)
	ctx := context.Background()

	if _, err := d.ProcessEvent(ctx, event("ev-1", "content-1", "actor-1", "interested in consulting")); err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := d.ProcessEvent(ctx, event("ev-2", "content-1", "actor-2", "interested in consulting"))
	if err != nil || second == nil {
		t.Fatalf("second: inq=%v err=%v", second, err)
	}
	if len(fs.inquiries) != 2 {
		t.Fatalf("expected two inquiries, got %d", len(fs.inquiries))
	}
}

func TestOnInquiryCallbackFires(t *testing.T) {
	d, _ := newTestDetector(t)
	var got *models.Inquiry
	d.OnInquiry(func(inq *models.Inquiry) { got = inq })

	inq, err := d.ProcessEvent(context.Background(), event("ev-1", "content-1", "actor-1", "interested in consulting"))
	if err != nil || inq == nil {
		t.Fatalf("process: inq=%v err=%v", inq, err)
	}
	if got == nil || got.ID != inq.ID {
		t.Fatalf("callback not fired for inquiry %v", inq.ID)
	}
}

func TestStatusTransitions(t *testing.T) {
	d, fs := newTestDetector(t)
	ctx := context.Background()
	fs.inquiries["inq-1"] = &models.Inquiry{ID: "inq-1", Status: models.InquiryStatusNew}

	if _, err := d.UpdateStatus(ctx, "inq-1", models.InquiryStatusConverted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("new -> converted should fail, got %v", err)
	}
	if _, err := d.UpdateStatus(ctx, "inq-1", models.InquiryStatusQualified); err != nil {
		t.Fatalf("new -> qualified: %v", err)
	}
	if _, err := d.UpdateStatus(ctx, "inq-1", models.InquiryStatusConverted); err != nil {
		t.Fatalf("qualified -> converted: %v", err)
	}
	if _, err := d.UpdateStatus(ctx, "inq-1", models.InquiryStatusRejected); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("converted is terminal, got %v", err)
	}
}
