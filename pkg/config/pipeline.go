package config

import (
	"fmt"
	"time"
)

// Pipeline holds the tunable parameters of the content pipeline. Values come
// from the environment; Validate rejects bad values at startup instead of
// silently falling back.
type Pipeline struct {
	// Scheduler
	MinLeadTime         time.Duration
	TickInterval        time.Duration
	PublishMaxAttempts  int
	PublishBaseDelay    time.Duration
	PublishMaxDelay     time.Duration
	PublishTimeout      time.Duration
	MaxLifecycleRetries int

	// Experiments
	DefaultConfidence float64
	SampleExtension   int
	EvaluateInterval  time.Duration

	// Inquiry detection
	DedupWindow time.Duration

	// Dashboard reads
	ReadCacheTTL time.Duration

	// Performance analysis
	RecomputeWindowDays int
	RecomputeInterval   time.Duration
	MinObservationAge   time.Duration
	MinSampleThreshold  int
	EngagementWeight    float64
	ConversionWeight    float64
}

// LoadPipeline reads pipeline configuration from the environment and
// validates it.
func LoadPipeline() (Pipeline, error) {
	p := Pipeline{
		MinLeadTime:         GetEnvDuration("MIN_LEAD_TIME", time.Hour),
		TickInterval:        GetEnvDuration("TICK_INTERVAL", time.Minute),
		PublishMaxAttempts:  GetEnvInt("PUBLISH_MAX_ATTEMPTS", 3),
		PublishBaseDelay:    GetEnvDuration("PUBLISH_BASE_DELAY", 2*time.Second),
		PublishMaxDelay:     GetEnvDuration("PUBLISH_MAX_DELAY", 30*time.Second),
		PublishTimeout:      GetEnvDuration("PUBLISH_TIMEOUT", 10*time.Second),
		MaxLifecycleRetries: GetEnvInt("MAX_LIFECYCLE_RETRIES", 3),
		DefaultConfidence:   GetEnvFloat("DEFAULT_CONFIDENCE", 0.95),
		SampleExtension:     GetEnvInt("SAMPLE_EXTENSION", 20),
		EvaluateInterval:    GetEnvDuration("EVALUATE_INTERVAL", 15*time.Minute),
		DedupWindow:         GetEnvDuration("DEDUP_WINDOW", 24*time.Hour),
		ReadCacheTTL:        GetEnvDuration("READ_CACHE_TTL", 30*time.Second),
		RecomputeWindowDays: GetEnvInt("RECOMPUTE_WINDOW_DAYS", 30),
		RecomputeInterval:   GetEnvDuration("RECOMPUTE_INTERVAL", 6*time.Hour),
		MinObservationAge:   GetEnvDuration("MIN_OBSERVATION_AGE", 48*time.Hour),
		MinSampleThreshold:  GetEnvInt("MIN_SAMPLE_THRESHOLD", 3),
		EngagementWeight:    GetEnvFloat("ENGAGEMENT_WEIGHT", 0.6),
		ConversionWeight:    GetEnvFloat("CONVERSION_WEIGHT", 0.4),
	}
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// Validate checks every parameter and returns the first violation found.
func (p Pipeline) Validate() error {
	if p.MinLeadTime <= 0 {
		return fmt.Errorf("MIN_LEAD_TIME must be positive, got %s", p.MinLeadTime)
	}
	if p.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", p.TickInterval)
	}
	if p.PublishMaxAttempts < 1 {
		return fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be at least 1, got %d", p.PublishMaxAttempts)
	}
	if p.PublishBaseDelay <= 0 || p.PublishMaxDelay < p.PublishBaseDelay {
		return fmt.Errorf("publish backoff invalid: base %s, max %s", p.PublishBaseDelay, p.PublishMaxDelay)
	}
	if p.PublishTimeout <= 0 {
		return fmt.Errorf("PUBLISH_TIMEOUT must be positive, got %s", p.PublishTimeout)
	}
	if p.MaxLifecycleRetries < 0 {
		return fmt.Errorf("MAX_LIFECYCLE_RETRIES must not be negative, got %d", p.MaxLifecycleRetries)
	}
	if p.DefaultConfidence <= 0 || p.DefaultConfidence >= 1 {
		return fmt.Errorf("DEFAULT_CONFIDENCE must be in (0,1), got %v", p.DefaultConfidence)
	}
	if p.SampleExtension < 1 {
		return fmt.Errorf("SAMPLE_EXTENSION must be at least 1, got %d", p.SampleExtension)
	}
	if p.EvaluateInterval <= 0 {
		return fmt.Errorf("EVALUATE_INTERVAL must be positive, got %s", p.EvaluateInterval)
	}
	if p.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive, got %s", p.DedupWindow)
	}
	if p.ReadCacheTTL <= 0 {
		return fmt.Errorf("READ_CACHE_TTL must be positive, got %s", p.ReadCacheTTL)
	}
	if p.RecomputeWindowDays < 1 {
		return fmt.Errorf("RECOMPUTE_WINDOW_DAYS must be at least 1, got %d", p.RecomputeWindowDays)
	}
	if p.RecomputeInterval <= 0 {
		return fmt.Errorf("RECOMPUTE_INTERVAL must be positive, got %s", p.RecomputeInterval)
	}
	if p.MinObservationAge < 0 {
		return fmt.Errorf("MIN_OBSERVATION_AGE must not be negative, got %s", p.MinObservationAge)
	}
	if p.MinSampleThreshold < 1 {
		return fmt.Errorf("MIN_SAMPLE_THRESHOLD must be at least 1, got %d", p.MinSampleThreshold)
	}
	if p.EngagementWeight < 0 || p.ConversionWeight < 0 {
		return fmt.Errorf("score weights must not be negative: engagement %v, conversion %v", p.EngagementWeight, p.ConversionWeight)
	}
	if sum := p.EngagementWeight + p.ConversionWeight; sum <= 0 {
		return fmt.Errorf("score weights must sum to a positive value, got %v", sum)
	}
	return nil
}
