// Package analyzer derives per-category performance rollups from closed-out
// content. Engagement and conversion are normalized inside each category and
// dimension, blended into a single score, and the full rollup set is swapped
// atomically so scheduling decisions never see a partial recompute.
package analyzer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"drumbeat/internal/store"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

// Store is the persistence surface the analyzer needs.
type Store interface {
	PostedContentBetween(ctx context.Context, from, to time.Time) ([]models.ContentItem, error)
	LatestMetricSnapshot(ctx context.Context, contentID string) (*models.MetricSnapshot, error)
	InquiryCountsForContent(ctx context.Context, contentID string) (total, converted int, err error)
	ReplacePerformanceRecords(ctx context.Context, records []models.PerformanceRecord) error
}

// Analyzer recomputes performance rollups.
type Analyzer struct {
	store  Store
	logger logging.Logger

	windowDays       int
	minObservAge     time.Duration
	minSamples       int
	engagementWeight float64
	conversionWeight float64

	now func() time.Time
}

// New creates an Analyzer.
func New(st Store, cfg config.Pipeline, logger logging.Logger) *Analyzer {
	return &Analyzer{
		store:            st,
		logger:           logger,
		windowDays:       cfg.RecomputeWindowDays,
		minObservAge:     cfg.MinObservationAge,
		minSamples:       cfg.MinSampleThreshold,
		engagementWeight: cfg.EngagementWeight,
		conversionWeight: cfg.ConversionWeight,
		now:              time.Now,
	}
}

type groupKey struct {
	category  string
	dimension string
	value     string
}

type groupAgg struct {
	engagementSum float64
	conversionSum float64
	count         int
}

type itemOutcome struct {
	engagementRate float64
	conversionRate float64
}

// Recompute rebuilds the rollup set over the trailing window and returns
// how many records the new generation holds. Items posted too recently to
// have settled metrics are left for the next pass, and groups below the
// sample threshold are dropped rather than published with noisy scores.
func (a *Analyzer) Recompute(ctx context.Context) (int, error) {
	now := a.now()
	from := now.AddDate(0, 0, -a.windowDays)
	to := now.Add(-a.minObservAge)

	items, err := a.store.PostedContentBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}

	groups := make(map[groupKey]*groupAgg)
	included := 0
	for i := range items {
		item := &items[i]
		outcome, ok, err := a.itemOutcome(ctx, item)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		included++
		for _, key := range groupKeys(item) {
			agg, exists := groups[key]
			if !exists {
				agg = &groupAgg{}
				groups[key] = agg
			}
			agg.engagementSum += outcome.engagementRate
			agg.conversionSum += outcome.conversionRate
			agg.count++
		}
	}

	records := a.scoreGroups(groups, now)
	if err := a.store.ReplacePerformanceRecords(ctx, records); err != nil {
		return 0, err
	}

	a.logger.WithFields(logging.Fields{
		"items":   included,
		"records": len(records),
	}).Info("Performance rollups recomputed")
	return len(records), nil
}

// itemOutcome resolves the measured rates for one item. Items without a
// metric snapshot are skipped entirely; items without inquiries count as
// zero conversion.
func (a *Analyzer) itemOutcome(ctx context.Context, item *models.ContentItem) (itemOutcome, bool, error) {
	snap, err := a.store.LatestMetricSnapshot(ctx, item.ID)
	if errors.Is(err, store.ErrNotFound) {
		return itemOutcome{}, false, nil
	}
	if err != nil {
		return itemOutcome{}, false, err
	}

	total, converted, err := a.store.InquiryCountsForContent(ctx, item.ID)
	if err != nil {
		return itemOutcome{}, false, err
	}
	conversion := 0.0
	if total > 0 {
		conversion = float64(converted) / float64(total)
	}
	return itemOutcome{engagementRate: snap.EngagementRate, conversionRate: conversion}, true, nil
}

func groupKeys(item *models.ContentItem) []groupKey {
	if item.PostedTime == nil {
		return nil
	}
	keys := []groupKey{
		{item.Category, models.DimensionPostingHour, strconv.Itoa(item.PostedTime.Hour())},
		{item.Category, models.DimensionPostingDay, item.PostedTime.Weekday().String()},
	}
	if item.HookType != "" {
		keys = append(keys, groupKey{item.Category, models.DimensionHookType, item.HookType})
	}
	return keys
}

// scoreGroups normalizes each group against its (category, dimension) peers
// and blends the two rates into a score.
func (a *Analyzer) scoreGroups(groups map[groupKey]*groupAgg, computedAt time.Time) []models.PerformanceRecord {
	type scope struct{ category, dimension string }
	type bounds struct{ minEng, maxEng, minConv, maxConv float64 }

	scopes := make(map[scope]*bounds)
	for key, agg := range groups {
		if agg.count < a.minSamples {
			continue
		}
		eng := agg.engagementSum / float64(agg.count)
		conv := agg.conversionSum / float64(agg.count)
		sc := scope{key.category, key.dimension}
		b, ok := scopes[sc]
		if !ok {
			scopes[sc] = &bounds{minEng: eng, maxEng: eng, minConv: conv, maxConv: conv}
			continue
		}
		if eng < b.minEng {
			b.minEng = eng
		}
		if eng > b.maxEng {
			b.maxEng = eng
		}
		if conv < b.minConv {
			b.minConv = conv
		}
		if conv > b.maxConv {
			b.maxConv = conv
		}
	}

	normalize := func(v, min, max float64) float64 {
		if max == min {
			// A scope with a single distinct value gives no ranking signal.
			return 0.5
		}
		return (v - min) / (max - min)
	}

	var records []models.PerformanceRecord
	for key, agg := range groups {
		if agg.count < a.minSamples {
			continue
		}
		eng := agg.engagementSum / float64(agg.count)
		conv := agg.conversionSum / float64(agg.count)
		b := scopes[scope{key.category, key.dimension}]

		normEng := normalize(eng, b.minEng, b.maxEng)
		normConv := normalize(conv, b.minConv, b.maxConv)
		records = append(records, models.PerformanceRecord{
			Category:       key.category,
			Dimension:      key.dimension,
			Value:          key.value,
			EngagementRate: eng,
			ConversionRate: conv,
			Score:          a.engagementWeight*normEng + a.conversionWeight*normConv,
			SampleSize:     agg.count,
			WindowDays:     a.windowDays,
			ComputedAt:     computedAt,
		})
	}
	return records
}
