// Package jobs runs the background loops: the publish tick, the experiment
// evaluation sweep, and the performance recompute.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"drumbeat/internal/experiments"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

// Ticker publishes due content.
type Ticker interface {
	Tick(ctx context.Context) (published, failed int, err error)
}

// ExperimentLister enumerates experiments for the evaluation sweep.
type ExperimentLister interface {
	ListExperiments(ctx context.Context, limit int) ([]models.Experiment, error)
}

// Evaluator evaluates one experiment.
type Evaluator interface {
	Evaluate(ctx context.Context, experimentID string) (*experiments.Outcome, error)
}

// Recomputer rebuilds the performance rollups.
type Recomputer interface {
	Recompute(ctx context.Context) (int, error)
}

// Manager owns the background job loops.
type Manager struct {
	scheduler Ticker
	lister    ExperimentLister
	evaluator Evaluator
	analyzer  Recomputer
	logger    logging.Logger

	tickInterval      time.Duration
	evaluateInterval  time.Duration
	recomputeInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(sched Ticker, lister ExperimentLister, eval Evaluator, analyzer Recomputer, cfg config.Pipeline, logger logging.Logger) *Manager {
	return &Manager{
		scheduler:         sched,
		lister:            lister,
		evaluator:         eval,
		analyzer:          analyzer,
		logger:            logger,
		tickInterval:      cfg.TickInterval,
		evaluateInterval:  cfg.EvaluateInterval,
		recomputeInterval: cfg.RecomputeInterval,
		stopCh:            make(chan struct{}),
	}
}

// Start launches the job loops. They stop when ctx is cancelled or Stop is
// called.
func (m *Manager) Start(ctx context.Context) {
	m.runLoop(ctx, "publish_tick", m.tickInterval, m.publishTick)
	m.runLoop(ctx, "experiment_sweep", m.evaluateInterval, m.evaluateSweep)
	m.runLoop(ctx, "performance_recompute", m.recomputeInterval, m.recompute)
	m.logger.Info("Background jobs started")
}

// Stop halts the job loops and waits for in-flight runs to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.logger.Info("Background jobs stopped")
}

func (m *Manager) runLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	m.logger.WithFields(logging.Fields{
		"job":      name,
		"interval": interval.String(),
	}).Info("Job loop registered")
}

func (m *Manager) publishTick(ctx context.Context) {
	published, failed, err := m.scheduler.Tick(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Publish tick failed")
		return
	}
	if published > 0 || failed > 0 {
		m.logger.WithFields(logging.Fields{
			"published": published,
			"failed":    failed,
		}).Info("Publish tick completed")
	}
}

// evaluateSweep evaluates every running experiment. ErrNotRunning can race
// in when an operator concludes an experiment mid-sweep; it is not a fault.
func (m *Manager) evaluateSweep(ctx context.Context) {
	exps, err := m.lister.ListExperiments(ctx, 100)
	if err != nil {
		m.logger.WithError(err).Error("Experiment sweep failed to list experiments")
		return
	}
	for _, exp := range exps {
		if exp.Status != models.ExperimentStatusRunning {
			continue
		}
		if _, err := m.evaluator.Evaluate(ctx, exp.ID); err != nil && !errors.Is(err, experiments.ErrNotRunning) {
			m.logger.WithError(err).WithField("experiment_id", exp.ID).Error("Experiment evaluation failed")
		}
	}
}

func (m *Manager) recompute(ctx context.Context) {
	if _, err := m.analyzer.Recompute(ctx); err != nil {
		m.logger.WithError(err).Error("Performance recompute failed")
	}
}
