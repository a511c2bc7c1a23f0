package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"drumbeat/pkg/models"
)

const experimentColumns = `id, dimension, category, variants, min_sample_size,
		confidence, status, winner, created_at, concluded_at`

func scanExperiment(row interface{ Scan(...interface{}) error }) (*models.Experiment, error) {
	var exp models.Experiment
	err := row.Scan(
		&exp.ID, &exp.Dimension, &exp.Category, pq.Array(&exp.Variants),
		&exp.MinSampleSize, &exp.Confidence, &exp.Status, &exp.Winner,
		&exp.CreatedAt, &exp.ConcludedAt,
	)
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// CreateExperiment inserts a running experiment. The partial unique index on
// dimension rejects a second running experiment for the same dimension.
func (s *Store) CreateExperiment(ctx context.Context, exp *models.Experiment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, dimension, category, variants, min_sample_size, confidence, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		exp.ID, exp.Dimension, exp.Category, pq.Array(exp.Variants),
		exp.MinSampleSize, exp.Confidence, exp.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// GetExperiment fetches one experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id string) (*models.Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+experimentColumns+` FROM experiments WHERE id = $1`, id)
	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return exp, nil
}

// ListExperiments returns experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context, limit int) ([]models.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+experimentColumns+` FROM experiments
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var exps []models.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exps = append(exps, *exp)
	}
	return exps, rows.Err()
}

// RunningExperimentForCategory finds the running experiment that covers the
// given content category. An experiment with an empty category covers all
// categories; a scoped one wins over an unscoped one.
func (s *Store) RunningExperimentForCategory(ctx context.Context, category string) (*models.Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+experimentColumns+` FROM experiments
		WHERE status = $1 AND (category = $2 OR category = '')
		ORDER BY category DESC, created_at ASC
		LIMIT 1`,
		models.ExperimentStatusRunning, category,
	)
	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find running experiment: %w", err)
	}
	return exp, nil
}

// InsertObservation appends an observation. Observations are never updated
// or deleted.
func (s *Store) InsertObservation(ctx context.Context, obs *models.VariantObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variant_observations (id, experiment_id, content_id, variant, metric_value, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		obs.ID, obs.ExperimentID, obs.ContentID, obs.Variant, obs.MetricValue, obs.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// HasObservation reports whether an experiment already holds an observation
// for a content item.
func (s *Store) HasObservation(ctx context.Context, experimentID, contentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM variant_observations
			WHERE experiment_id = $1 AND content_id = $2)`,
		experimentID, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check observation: %w", err)
	}
	return exists, nil
}

// ObservationsByVariant groups metric values per variant for one experiment.
func (s *Store) ObservationsByVariant(ctx context.Context, experimentID string) (map[string][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variant, metric_value FROM variant_observations
		WHERE experiment_id = $1
		ORDER BY observed_at ASC`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	byVariant := make(map[string][]float64)
	for rows.Next() {
		var variant string
		var value float64
		if err := rows.Scan(&variant, &value); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		byVariant[variant] = append(byVariant[variant], value)
	}
	return byVariant, rows.Err()
}

// ConcludeExperiment records the winner. Only a running experiment can be
// concluded; a stale conclusion is a no-op.
func (s *Store) ConcludeExperiment(ctx context.Context, id, winner string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE experiments
		SET status = $1, winner = $2, concluded_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.ExperimentStatusConcluded, winner, at, id, models.ExperimentStatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("conclude experiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CancelExperiment stops a running experiment without a winner.
func (s *Store) CancelExperiment(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE experiments
		SET status = $1, concluded_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.ExperimentStatusCancelled, at, id, models.ExperimentStatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("cancel experiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExtendMinSampleSize raises the sample floor of an inconclusive experiment.
func (s *Store) ExtendMinSampleSize(ctx context.Context, id string, newMin int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE experiments SET min_sample_size = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		newMin, id, models.ExperimentStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("extend min sample size: %w", err)
	}
	return nil
}
