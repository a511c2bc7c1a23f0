package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"drumbeat/pkg/models"
)

// InsertEvent stores a raw engagement event keyed by its source identifier.
// Returns false when the event was already stored.
func (s *Store) InsertEvent(ctx context.Context, ev *models.EngagementEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO engagement_events (id, content_id, actor_ref, raw_text, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.ContentID, ev.ActorRef, ev.RawText, ev.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert engagement event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetEvent fetches a stored engagement event by its source identifier.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.EngagementEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, actor_ref, raw_text, received_at, processed, inquiry_id
		FROM engagement_events WHERE id = $1`, id)

	var ev models.EngagementEvent
	err := row.Scan(&ev.ID, &ev.ContentID, &ev.ActorRef, &ev.RawText, &ev.ReceivedAt, &ev.Processed, &ev.InquiryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement event: %w", err)
	}
	return &ev, nil
}

// MarkEventProcessed flags an event as handled, linking the inquiry it
// produced, if any.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string, inquiryID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE engagement_events SET processed = TRUE, inquiry_id = $1 WHERE id = $2`,
		inquiryID, eventID,
	)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// InsertMetricSnapshot stores one engagement measurement.
func (s *Store) InsertMetricSnapshot(ctx context.Context, m *models.MetricSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_metrics (id, content_id, engagement_rate, impressions, reactions, comments, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ContentID, m.EngagementRate, m.Impressions, m.Reactions, m.Comments, m.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert metric snapshot: %w", err)
	}
	return nil
}

// LatestMetricSnapshot returns the most recent measurement for an item.
func (s *Store) LatestMetricSnapshot(ctx context.Context, contentID string) (*models.MetricSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, engagement_rate, impressions, reactions, comments, collected_at
		FROM content_metrics
		WHERE content_id = $1
		ORDER BY collected_at DESC
		LIMIT 1`, contentID)

	var m models.MetricSnapshot
	err := row.Scan(&m.ID, &m.ContentID, &m.EngagementRate, &m.Impressions, &m.Reactions, &m.Comments, &m.CollectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest metric snapshot: %w", err)
	}
	return &m, nil
}
