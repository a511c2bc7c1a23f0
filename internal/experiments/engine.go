// Package experiments runs A/B experiments over content variants: variant
// assignment is deterministic per content item, observations are append-only,
// and evaluation concludes an experiment only when the leading variant beats
// every other variant at the configured confidence level.
package experiments

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"drumbeat/internal/store"
	"drumbeat/pkg/config"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

var (
	// ErrInvalidExperiment rejects a definition with fewer than two distinct
	// variants or a bad confidence level.
	ErrInvalidExperiment = errors.New("experiment needs at least two distinct variants")
	// ErrDuplicateExperiment rejects a second running experiment on the same
	// dimension.
	ErrDuplicateExperiment = errors.New("a running experiment already exists for this dimension")
	// ErrNotRunning is returned when evaluating or cancelling an experiment
	// that has already concluded or been cancelled.
	ErrNotRunning = errors.New("experiment is not running")
)

// Store is the persistence surface the engine needs.
type Store interface {
	CreateExperiment(ctx context.Context, exp *models.Experiment) error
	GetExperiment(ctx context.Context, id string) (*models.Experiment, error)
	ListExperiments(ctx context.Context, limit int) ([]models.Experiment, error)
	RunningExperimentForCategory(ctx context.Context, category string) (*models.Experiment, error)
	InsertObservation(ctx context.Context, obs *models.VariantObservation) error
	ObservationsByVariant(ctx context.Context, experimentID string) (map[string][]float64, error)
	ConcludeExperiment(ctx context.Context, id, winner string, at time.Time) (bool, error)
	CancelExperiment(ctx context.Context, id string, at time.Time) (bool, error)
	ExtendMinSampleSize(ctx context.Context, id string, newMin int) error
}

// Outcome reports one evaluation pass.
type Outcome struct {
	Concluded     bool               `json:"concluded"`
	Winner        string             `json:"winner,omitempty"`
	Extended      bool               `json:"extended"`
	MinSampleSize int                `json:"min_sample_size"`
	Means         map[string]float64 `json:"means,omitempty"`
	Counts        map[string]int     `json:"counts,omitempty"`
}

// Engine owns experiment lifecycle and assignment.
type Engine struct {
	store  Store
	logger logging.Logger

	defaultConfidence float64
	sampleExtension   int

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New creates an Engine.
func New(st Store, cfg config.Pipeline, logger logging.Logger) *Engine {
	return &Engine{
		store:             st,
		logger:            logger,
		defaultConfidence: cfg.DefaultConfidence,
		sampleExtension:   cfg.SampleExtension,
		locks:             make(map[string]*sync.Mutex),
		now:               time.Now,
	}
}

// evaluation is serialized per experiment so concurrent sweeps cannot
// double-conclude or double-extend.
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	return mu
}

// Define registers a new running experiment on one dimension.
func (e *Engine) Define(ctx context.Context, dimension, category string, variants []string, minSampleSize int, confidence float64) (*models.Experiment, error) {
	if dimension == "" || len(variants) < 2 {
		return nil, ErrInvalidExperiment
	}
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if v == "" {
			return nil, ErrInvalidExperiment
		}
		if _, dup := seen[v]; dup {
			return nil, ErrInvalidExperiment
		}
		seen[v] = struct{}{}
	}
	if minSampleSize < 1 {
		return nil, fmt.Errorf("%w: min sample size must be positive", ErrInvalidExperiment)
	}
	if confidence == 0 {
		confidence = e.defaultConfidence
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("%w: confidence must be in (0, 1)", ErrInvalidExperiment)
	}

	exp := &models.Experiment{
		ID:            uuid.NewString(),
		Dimension:     dimension,
		Category:      category,
		Variants:      variants,
		MinSampleSize: minSampleSize,
		Confidence:    confidence,
		Status:        models.ExperimentStatusRunning,
		CreatedAt:     e.now(),
	}
	if err := e.store.CreateExperiment(ctx, exp); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateExperiment
		}
		return nil, err
	}

	e.logger.WithFields(logging.Fields{
		"experiment_id": exp.ID,
		"dimension":     exp.Dimension,
		"variants":      len(exp.Variants),
	}).Info("Experiment defined")
	return exp, nil
}

// Assign picks the variant for a content item. The choice hashes the
// experiment and content identifiers, so the same item always lands on the
// same variant regardless of when or where assignment runs.
func (e *Engine) Assign(exp *models.Experiment, contentID string) string {
	h := fnv.New64a()
	h.Write([]byte(exp.ID))
	h.Write([]byte{0})
	h.Write([]byte(contentID))
	return exp.Variants[h.Sum64()%uint64(len(exp.Variants))]
}

// AssignForCategory resolves the running experiment covering a category, if
// any, and assigns a variant. Returns nils when no experiment applies.
func (e *Engine) AssignForCategory(ctx context.Context, category, contentID string) (experimentID, variant *string, err error) {
	exp, err := e.store.RunningExperimentForCategory(ctx, category)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	v := e.Assign(exp, contentID)
	return &exp.ID, &v, nil
}

// RecordObservation appends one measured outcome for an assigned item.
func (e *Engine) RecordObservation(ctx context.Context, experimentID, contentID, variant string, value float64) error {
	obs := &models.VariantObservation{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		ContentID:    contentID,
		Variant:      variant,
		MetricValue:  value,
		ObservedAt:   e.now(),
	}
	return e.store.InsertObservation(ctx, obs)
}

// Evaluate decides whether a running experiment can conclude. It concludes
// only when every variant has reached the sample floor and the variant with
// the best mean beats each of the others at the experiment's confidence
// level. An inconclusive result with full samples extends the floor instead,
// so the experiment keeps collecting rather than flapping.
func (e *Engine) Evaluate(ctx context.Context, experimentID string) (*Outcome, error) {
	mu := e.lockFor(experimentID)
	mu.Lock()
	defer mu.Unlock()

	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != models.ExperimentStatusRunning {
		return nil, ErrNotRunning
	}

	byVariant, err := e.store.ObservationsByVariant(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		MinSampleSize: exp.MinSampleSize,
		Means:         make(map[string]float64, len(exp.Variants)),
		Counts:        make(map[string]int, len(exp.Variants)),
	}
	ready := true
	for _, v := range exp.Variants {
		obs := byVariant[v]
		outcome.Means[v] = mean(obs)
		outcome.Counts[v] = len(obs)
		if len(obs) < exp.MinSampleSize {
			ready = false
		}
	}
	if !ready {
		return outcome, nil
	}

	leader := exp.Variants[0]
	for _, v := range exp.Variants[1:] {
		if outcome.Means[v] > outcome.Means[leader] {
			leader = v
		}
	}

	winnerBeatsAll := true
	for _, v := range exp.Variants {
		if v == leader {
			continue
		}
		if !beatsAtConfidence(byVariant[leader], byVariant[v], exp.Confidence) {
			winnerBeatsAll = false
			break
		}
	}

	if winnerBeatsAll {
		committed, err := e.store.ConcludeExperiment(ctx, experimentID, leader, e.now())
		if err != nil {
			return nil, err
		}
		if !committed {
			return nil, ErrNotRunning
		}
		outcome.Concluded = true
		outcome.Winner = leader
		e.logger.WithFields(logging.Fields{
			"experiment_id": experimentID,
			"winner":        leader,
		}).Info("Experiment concluded")
		return outcome, nil
	}

	newMin := exp.MinSampleSize + e.sampleExtension
	if err := e.store.ExtendMinSampleSize(ctx, experimentID, newMin); err != nil {
		return nil, err
	}
	outcome.Extended = true
	outcome.MinSampleSize = newMin
	e.logger.WithFields(logging.Fields{
		"experiment_id":   experimentID,
		"min_sample_size": newMin,
	}).Info("Experiment inconclusive, extending sample floor")
	return outcome, nil
}

// Cancel stops a running experiment without declaring a winner.
func (e *Engine) Cancel(ctx context.Context, experimentID string) error {
	mu := e.lockFor(experimentID)
	mu.Lock()
	defer mu.Unlock()

	cancelled, err := e.store.CancelExperiment(ctx, experimentID, e.now())
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotRunning
	}
	return nil
}
