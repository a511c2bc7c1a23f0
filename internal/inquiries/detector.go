// Package inquiries turns raw engagement events into scored sales leads.
// Matching runs against a configurable pattern taxonomy, priority is the
// strongest matched signal, and repeated signals from the same actor on the
// same content inside the dedup window corroborate the existing inquiry
// instead of creating a new one.
package inquiries

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"drumbeat/internal/store"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

// ErrInvalidTransition rejects a status change the review workflow does not
// allow.
var ErrInvalidTransition = errors.New("invalid inquiry status transition")

// Store is the persistence surface the detector needs.
type Store interface {
	InsertEvent(ctx context.Context, ev *models.EngagementEvent) (bool, error)
	GetEvent(ctx context.Context, id string) (*models.EngagementEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string, inquiryID *string) error
	CreateInquiry(ctx context.Context, inq *models.Inquiry) error
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	FindRecentInquiry(ctx context.Context, actorRef, contentID string, since time.Time) (*models.Inquiry, error)
	IncrementCorroborations(ctx context.Context, id string) error
	UpdateInquiryStatus(ctx context.Context, id string, status models.InquiryStatus) error
}

type matcher struct {
	name     string
	weight   int
	patterns []*regexp.Regexp
}

// Detector scans engagement events for consultation intent.
type Detector struct {
	store    Store
	deduper  Deduper
	logger   logging.Logger
	matchers []matcher
	bands    config.Taxonomy

	dedupWindow time.Duration
	onInquiry   func(*models.Inquiry)

	now func() time.Time
}

// New compiles the taxonomy and creates a Detector. The deduper is optional;
// without one every dedup check goes to the database.
func New(st Store, deduper Deduper, tax config.Taxonomy, cfg config.Pipeline, logger logging.Logger) (*Detector, error) {
	matchers := make([]matcher, 0, len(tax.Categories))
	for _, cat := range tax.Categories {
		m := matcher{name: cat.Name, weight: cat.Weight}
		for _, p := range cat.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for category %q: %w", p, cat.Name, err)
			}
			m.patterns = append(m.patterns, re)
		}
		matchers = append(matchers, m)
	}
	return &Detector{
		store:       st,
		deduper:     deduper,
		logger:      logger,
		matchers:    matchers,
		bands:       tax,
		dedupWindow: cfg.DedupWindow,
		now:         time.Now,
	}, nil
}

// OnInquiry registers a callback fired for every newly created inquiry.
func (d *Detector) OnInquiry(fn func(*models.Inquiry)) {
	d.onInquiry = fn
}

// match returns the matched category names and the strongest weight.
func (d *Detector) match(text string) (categories []string, maxWeight int) {
	for _, m := range d.matchers {
		for _, re := range m.patterns {
			if re.MatchString(text) {
				categories = append(categories, m.name)
				if m.weight > maxWeight {
					maxWeight = m.weight
				}
				break
			}
		}
	}
	return categories, maxWeight
}

// ProcessEvent ingests one engagement event. Processing is idempotent on the
// event id: a replayed event is never re-matched and resolves to whatever the
// first pass produced. Returns the inquiry the event produced or corroborated,
// or nil when the text carries no signal.
func (d *Detector) ProcessEvent(ctx context.Context, ev *models.EngagementEvent) (*models.Inquiry, error) {
	if ev.ID == "" || ev.ContentID == "" {
		return nil, fmt.Errorf("engagement event needs an id and a content id")
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = d.now()
	}

	inserted, err := d.store.InsertEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return d.priorResult(ctx, ev.ID)
	}

	categories, weight := d.match(ev.RawText)
	if len(categories) == 0 {
		if err := d.store.MarkEventProcessed(ctx, ev.ID, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	priority := weight
	if priority < 1 {
		priority = 1
	}
	if priority > 5 {
		priority = 5
	}

	if existing, err := d.corroborate(ctx, ev); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	band, _ := d.bands.Band(priority)
	inq := &models.Inquiry{
		ID:             uuid.NewString(),
		EventID:        ev.ID,
		ContentID:      ev.ContentID,
		ActorRef:       ev.ActorRef,
		Categories:     categories,
		Priority:       priority,
		EstimatedValue: band.Midpoint(),
		Status:         models.InquiryStatusNew,
		CreatedAt:      d.now(),
	}
	if err := d.store.CreateInquiry(ctx, inq); err != nil {
		return nil, err
	}
	if err := d.store.MarkEventProcessed(ctx, ev.ID, &inq.ID); err != nil {
		return nil, err
	}

	if d.deduper != nil {
		if _, _, err := d.deduper.Reserve(ctx, dedupKey(ev.ActorRef, ev.ContentID), inq.ID, d.dedupWindow); err != nil {
			// The database fallback still covers dedup; log and move on.
			d.logger.WithError(err).Warn("Dedup reservation failed")
		}
	}

	d.logger.WithFields(logging.Fields{
		"inquiry_id": inq.ID,
		"content_id": inq.ContentID,
		"priority":   inq.Priority,
		"categories": len(inq.Categories),
	}).Info("Inquiry detected")

	if d.onInquiry != nil {
		d.onInquiry(inq)
	}
	return inq, nil
}

// priorResult resolves a replayed event id to the outcome of its first
// processing: the inquiry it was linked to, or nil when the first pass
// matched nothing.
func (d *Detector) priorResult(ctx context.Context, eventID string) (*models.Inquiry, error) {
	stored, err := d.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if stored.InquiryID == nil {
		return nil, nil
	}
	return d.store.GetInquiry(ctx, *stored.InquiryID)
}

// corroborate looks for an existing inquiry from the same actor on the same
// content inside the dedup window, checking the fast path first.
func (d *Detector) corroborate(ctx context.Context, ev *models.EngagementEvent) (*models.Inquiry, error) {
	var existingID string

	if d.deduper != nil {
		id, found, err := d.deduper.Lookup(ctx, dedupKey(ev.ActorRef, ev.ContentID))
		if err == nil && found && id != "" {
			existingID = id
		}
		// On a miss or an error the database check below still covers us.
	}

	if existingID == "" {
		since := d.now().Add(-d.dedupWindow)
		existing, err := d.store.FindRecentInquiry(ctx, ev.ActorRef, ev.ContentID, since)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		existingID = existing.ID
	}

	if err := d.store.IncrementCorroborations(ctx, existingID); err != nil {
		return nil, err
	}
	if err := d.store.MarkEventProcessed(ctx, ev.ID, &existingID); err != nil {
		return nil, err
	}

	inq, err := d.store.GetInquiry(ctx, existingID)
	if err != nil {
		return nil, err
	}
	d.logger.WithFields(logging.Fields{
		"inquiry_id":     inq.ID,
		"corroborations": inq.Corroborations,
	}).Info("Inquiry corroborated")
	return inq, nil
}

func dedupKey(actorRef, contentID string) string {
	return "drumbeat:dedup:" + actorRef + ":" + contentID
}

var allowedTransitions = map[models.InquiryStatus][]models.InquiryStatus{
	models.InquiryStatusNew:       {models.InquiryStatusQualified, models.InquiryStatusRejected},
	models.InquiryStatusQualified: {models.InquiryStatusConverted, models.InquiryStatusRejected},
}

// UpdateStatus applies a review decision. New inquiries can be qualified or
// rejected, qualified ones converted or rejected; converted and rejected are
// terminal.
func (d *Detector) UpdateStatus(ctx context.Context, id string, status models.InquiryStatus) (*models.Inquiry, error) {
	inq, err := d.store.GetInquiry(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range allowedTransitions[inq.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inq.Status, status)
	}

	if err := d.store.UpdateInquiryStatus(ctx, id, status); err != nil {
		return nil, err
	}
	inq.Status = status
	return inq, nil
}
