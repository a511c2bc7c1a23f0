package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"drumbeat/pkg/models"
)

const contentColumns = `id, body, category, hook_type, state, created_at, scheduled_time,
		posted_time, experiment_id, variant, idempotency_key, attempts, retries,
		remote_id, last_error, updated_at`

func scanContent(row interface{ Scan(...interface{}) error }) (*models.ContentItem, error) {
	var item models.ContentItem
	err := row.Scan(
		&item.ID, &item.Body, &item.Category, &item.HookType, &item.State,
		&item.CreatedAt, &item.ScheduledTime, &item.PostedTime, &item.ExperimentID,
		&item.Variant, &item.IdempotencyKey, &item.Attempts, &item.Retries,
		&item.RemoteID, &item.LastError, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateContent inserts a draft content item.
func (s *Store) CreateContent(ctx context.Context, item *models.ContentItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (id, body, category, hook_type, state, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		item.ID, item.Body, item.Category, item.HookType, item.State, item.IdempotencyKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert content item: %w", err)
	}
	return nil
}

// GetContent fetches one item by id.
func (s *Store) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items WHERE id = $1`, id)
	item, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

// ListContent returns items, newest first, optionally filtered by state.
func (s *Store) ListContent(ctx context.Context, state string, limit int) ([]models.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items`
	args := []interface{}{}
	if state != "" {
		query += ` WHERE state = $1`
		args = append(args, state)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// MarkScheduled moves a draft item to scheduled with its slot and any
// experiment assignment. The state predicate makes double scheduling a no-op.
func (s *Store) MarkScheduled(ctx context.Context, id string, slot time.Time, experimentID, variant *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET state = $1, scheduled_time = $2, experiment_id = $3, variant = $4, updated_at = NOW()
		WHERE id = $5 AND state = $6`,
		models.ContentStateScheduled, slot, experimentID, variant, id, models.ContentStateDraft,
	)
	if err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DueContent returns scheduled items whose slot has arrived.
func (s *Store) DueContent(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items
		WHERE state = $1 AND scheduled_time <= $2
		ORDER BY scheduled_time ASC
		LIMIT $3`,
		models.ContentStateScheduled, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due content: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due content: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// RecordPublishAttempt bumps the attempt counter before the outbound call.
func (s *Store) RecordPublishAttempt(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE content_items SET attempts = attempts + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record publish attempt: %w", err)
	}
	return nil
}

// MarkPosted commits a successful publish. The state predicate guarantees a
// single commit per item: a second writer sees zero rows affected.
func (s *Store) MarkPosted(ctx context.Context, id, remoteID string, postedTime time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET state = $1, posted_time = $2, remote_id = $3, last_error = NULL, updated_at = NOW()
		WHERE id = $4 AND state = $5`,
		models.ContentStatePosted, postedTime, remoteID, id, models.ContentStateScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkPublishFailed records an exhausted publish attempt.
func (s *Store) MarkPublishFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET state = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND state = $4`,
		models.ContentStateFailed, reason, id, models.ContentStateScheduled,
	)
	if err != nil {
		return fmt.Errorf("mark publish failed: %w", err)
	}
	return nil
}

// RequeueFailed moves a failed item back to scheduled as long as its retry
// budget is not exhausted. Returns false when the predicate did not match.
func (s *Store) RequeueFailed(ctx context.Context, id string, slot time.Time, maxRetries int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET state = $1, scheduled_time = $2, retries = retries + 1, updated_at = NOW()
		WHERE id = $3 AND state = $4 AND retries < $5`,
		models.ContentStateScheduled, slot, id, models.ContentStateFailed, maxRetries,
	)
	if err != nil {
		return false, fmt.Errorf("requeue failed content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAbandoned retires a failed item whose retry budget ran out.
func (s *Store) MarkAbandoned(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE content_items SET state = $1, updated_at = NOW()
		WHERE id = $2 AND state = $3`,
		models.ContentStateAbandoned, id, models.ContentStateFailed,
	)
	if err != nil {
		return fmt.Errorf("mark abandoned: %w", err)
	}
	return nil
}

// PostedContentBetween returns posted items inside the window, oldest first.
// The upper bound lets the analyzer skip items too fresh to have settled.
func (s *Store) PostedContentBetween(ctx context.Context, from, to time.Time) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items
		WHERE state = $1 AND posted_time >= $2 AND posted_time <= $3
		ORDER BY posted_time ASC`,
		models.ContentStatePosted, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query posted content: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posted content: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
