package store

import (
	"context"
	"fmt"

	"drumbeat/pkg/models"
)

const performanceColumns = `category, dimension, value, engagement_rate,
		conversion_rate, score, sample_size, window_days, computed_at`

func scanPerformance(row interface{ Scan(...interface{}) error }) (*models.PerformanceRecord, error) {
	var rec models.PerformanceRecord
	err := row.Scan(
		&rec.Category, &rec.Dimension, &rec.Value, &rec.EngagementRate,
		&rec.ConversionRate, &rec.Score, &rec.SampleSize, &rec.WindowDays, &rec.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReplacePerformanceRecords swaps the full rollup set atomically. Readers
// either see the previous generation or the new one, never a mix.
func (s *Store) ReplacePerformanceRecords(ctx context.Context, records []models.PerformanceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace records: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM performance_records`); err != nil {
		return fmt.Errorf("clear performance records: %w", err)
	}

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO performance_records (category, dimension, value, engagement_rate, conversion_rate, score, sample_size, window_days, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.Category, rec.Dimension, rec.Value, rec.EngagementRate,
			rec.ConversionRate, rec.Score, rec.SampleSize, rec.WindowDays, rec.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("insert performance record: %w", err)
		}
	}

	return tx.Commit()
}

// PerformanceByCategory returns all rollups for one category, best first.
func (s *Store) PerformanceByCategory(ctx context.Context, category string) ([]models.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+performanceColumns+` FROM performance_records
		WHERE category = $1
		ORDER BY dimension ASC, score DESC`, category)
	if err != nil {
		return nil, fmt.Errorf("query performance records: %w", err)
	}
	defer rows.Close()

	var recs []models.PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan performance record: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// TopSlots returns the rollups for one category and dimension ordered by
// descending score. The scheduler uses posting_hour rollups to rank slots.
func (s *Store) TopSlots(ctx context.Context, category, dimension string) ([]models.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+performanceColumns+` FROM performance_records
		WHERE category = $1 AND dimension = $2
		ORDER BY score DESC, sample_size DESC`, category, dimension)
	if err != nil {
		return nil, fmt.Errorf("query top slots: %w", err)
	}
	defer rows.Close()

	var recs []models.PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan top slot: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}
