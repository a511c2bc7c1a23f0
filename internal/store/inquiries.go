package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"drumbeat/pkg/models"
)

const inquiryColumns = `id, event_id, content_id, actor_ref, categories, priority,
		estimated_value, status, corroborations, created_at, updated_at`

func scanInquiry(row interface{ Scan(...interface{}) error }) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := row.Scan(
		&inq.ID, &inq.EventID, &inq.ContentID, &inq.ActorRef, pq.Array(&inq.Categories),
		&inq.Priority, &inq.EstimatedValue, &inq.Status, &inq.Corroborations,
		&inq.CreatedAt, &inq.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inq, nil
}

// CreateInquiry inserts a new inquiry.
func (s *Store) CreateInquiry(ctx context.Context, inq *models.Inquiry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inquiries (id, event_id, content_id, actor_ref, categories, priority, estimated_value, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		inq.ID, inq.EventID, inq.ContentID, inq.ActorRef, pq.Array(inq.Categories),
		inq.Priority, inq.EstimatedValue, inq.Status,
	)
	if err != nil {
		return fmt.Errorf("insert inquiry: %w", err)
	}
	return nil
}

// GetInquiry fetches one inquiry by id.
func (s *Store) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+inquiryColumns+` FROM inquiries WHERE id = $1`, id)
	inq, err := scanInquiry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inquiry: %w", err)
	}
	return inq, nil
}

// ListInquiries returns inquiries by descending priority then recency,
// optionally filtered by status and a minimum priority.
func (s *Store) ListInquiries(ctx context.Context, status string, minPriority, limit int) ([]models.Inquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM inquiries`
	args := []interface{}{}
	conds := []string{}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf(`status = $%d`, len(args)))
	}
	if minPriority > 0 {
		args = append(args, minPriority)
		conds = append(conds, fmt.Sprintf(`priority >= $%d`, len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += fmt.Sprintf(` ORDER BY priority DESC, created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	var inqs []models.Inquiry
	for rows.Next() {
		inq, err := scanInquiry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inquiry: %w", err)
		}
		inqs = append(inqs, *inq)
	}
	return inqs, rows.Err()
}

// FindRecentInquiry looks for an inquiry from the same actor on the same
// content item created at or after the cutoff. Used as the dedup fallback
// when the fast path is unavailable.
func (s *Store) FindRecentInquiry(ctx context.Context, actorRef, contentID string, since time.Time) (*models.Inquiry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+inquiryColumns+` FROM inquiries
		WHERE actor_ref = $1 AND content_id = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`, actorRef, contentID, since)
	inq, err := scanInquiry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recent inquiry: %w", err)
	}
	return inq, nil
}

// IncrementCorroborations bumps the corroboration count on an existing
// inquiry when a duplicate signal arrives inside the dedup window.
func (s *Store) IncrementCorroborations(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE inquiries SET corroborations = corroborations + 1, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment corroborations: %w", err)
	}
	return nil
}

// UpdateInquiryStatus sets the review status. Transition validation happens
// in the detector; this only writes.
func (s *Store) UpdateInquiryStatus(ctx context.Context, id string, status models.InquiryStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inquiries SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update inquiry status: %w", err)
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

// InquiryCountsForContent returns how many inquiries an item generated and
// how many of those converted.
func (s *Store) InquiryCountsForContent(ctx context.Context, contentID string) (total, converted int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1)
		FROM inquiries WHERE content_id = $2`,
		models.InquiryStatusConverted, contentID)
	if err := row.Scan(&total, &converted); err != nil {
		return 0, 0, fmt.Errorf("count inquiries: %w", err)
	}
	return total, converted, nil
}
