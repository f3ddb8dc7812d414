// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tessellon/affinity/internal/metrics"
	"github.com/tessellon/affinity/internal/recommend"
	"github.com/tessellon/affinity/internal/recommend/dataset"
	"github.com/tessellon/affinity/internal/recommend/storage"
	"github.com/tessellon/affinity/internal/source"
)

// Engine is the trainer-facing surface of the recommendation engine.
// Declared here so tests can substitute a mock.
type Engine interface {
	// Train builds and publishes a model from the given dataset.
	Train(ctx context.Context, interactions []dataset.Interaction, items []dataset.Item) error

	// Evaluate scores the published model against a holdout set.
	Evaluate(ctx context.Context, test []dataset.Interaction) (recommend.Evaluation, error)

	// Snapshot serializes the published model for persistence.
	Snapshot() (*storage.Snapshot, error)

	// Status describes the published model.
	Status() recommend.Status
}

// SnapshotStore persists trained models between process runs.
// Satisfied by *storage.Store.
type SnapshotStore interface {
	Save(ctx context.Context, snap *storage.Snapshot) (*storage.Metadata, error)
	Prune(ctx context.Context, keep int) (int, error)
}

// TrainerConfig holds configuration for the trainer service.
type TrainerConfig struct {
	// TrainOnStartup triggers a training cycle when the service starts.
	TrainOnStartup bool

	// Interval is how often to retrain. Default: 24h.
	Interval time.Duration

	// Timeout bounds a single training cycle. Zero means no bound.
	Timeout time.Duration

	// TestFraction is the share of interactions held out for offline
	// evaluation. Zero disables evaluation.
	TestFraction float64

	// Seed drives the deterministic holdout split.
	Seed int64

	// RetainSnapshots is how many snapshots to keep after a save.
	// Zero keeps everything.
	RetainSnapshots int
}

// Trainer periodically rebuilds the recommendation model from the
// configured dataset source. Each cycle loads the dataset, trains,
// evaluates against a holdout when configured, and persists a snapshot
// when a store is attached.
//
// Cycle failures are logged and surfaced to metrics but never returned
// from Serve; the next tick simply tries again.
type Trainer struct {
	engine Engine
	source source.Source
	store  SnapshotStore
	config TrainerConfig
	logger zerolog.Logger
	name   string
}

// NewTrainer creates a trainer service. store may be nil when snapshot
// persistence is disabled.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainer(engine Engine, src source.Source, store SnapshotStore, cfg TrainerConfig, logger zerolog.Logger) *Trainer {
	return &Trainer{
		engine: engine,
		source: src,
		store:  store,
		config: cfg,
		logger: logger.With().Str("service", "trainer").Logger(),
		name:   "trainer-service",
	}
}

// Serve implements the suture.Service interface.
// It manages the training loop until the context is canceled.
func (s *Trainer) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("interval", s.config.Interval).
		Str("source", s.source.Name()).
		Msg("trainer starting")

	if s.config.TrainOnStartup {
		if err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("initial training failed (will retry on schedule)")
		}
	}

	if s.config.Interval <= 0 {
		s.config.Interval = 24 * time.Hour
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info().Msg("trainer running")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("trainer shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.logger.Debug().Msg("scheduled training triggered")
			if err := s.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn().Err(err).Msg("scheduled training failed")
			}
		}
	}
}

// RunOnce executes a single training cycle: load, split, train,
// evaluate, persist. Also called directly for one-shot runs.
func (s *Trainer) RunOnce(ctx context.Context) error {
	runCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	log := s.logger.With().Str("run_id", uuid.NewString()).Logger()

	start := time.Now()
	log.Info().Msg("training cycle started")

	interactions, items, err := s.load(runCtx, log)
	if err != nil {
		metrics.RecordTraining(time.Since(start), err)
		return err
	}

	train := interactions
	var test []dataset.Interaction
	if s.config.TestFraction > 0 {
		train, test = dataset.Split(interactions, s.config.TestFraction, s.config.Seed)
		log.Debug().
			Int("train_rows", len(train)).
			Int("test_rows", len(test)).
			Msg("holdout split")
	}

	if err := s.engine.Train(runCtx, train, items); err != nil {
		metrics.RecordTraining(time.Since(start), err)
		return fmt.Errorf("train: %w", err)
	}
	metrics.RecordTraining(time.Since(start), nil)

	status := s.engine.Status()
	metrics.SetModelStats(int(status.ModelSequence), status.Users, status.Items, status.Interactions)

	if len(test) > 0 {
		s.evaluate(runCtx, log, test)
	}

	s.persist(runCtx, log)

	log.Info().
		Str("model_version", status.ModelVersion).
		Dur("elapsed", time.Since(start)).
		Msg("training cycle complete")
	return nil
}

// load reads the dataset from the source, recording per-table load
// metrics under the source's driver name.
func (s *Trainer) load(ctx context.Context, log zerolog.Logger) ([]dataset.Interaction, []dataset.Item, error) {
	start := time.Now()
	interactions, err := s.source.Interactions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load interactions: %w", err)
	}
	metrics.RecordSourceLoad(s.source.Name(), "interactions", len(interactions), time.Since(start))

	start = time.Now()
	items, err := s.source.Items(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load items: %w", err)
	}
	metrics.RecordSourceLoad(s.source.Name(), "items", len(items), time.Since(start))

	log.Info().
		Int("interactions", len(interactions)).
		Int("catalog_items", len(items)).
		Msg("dataset loaded")
	return interactions, items, nil
}

// evaluate scores the freshly published model against the holdout set.
// Evaluation failure does not fail the cycle; the model is already live.
func (s *Trainer) evaluate(ctx context.Context, log zerolog.Logger, test []dataset.Interaction) {
	eval, err := s.engine.Evaluate(ctx, test)
	if err != nil {
		log.Warn().Err(err).Msg("holdout evaluation failed")
		return
	}
	if eval.IsEmpty() {
		log.Warn().Int("test_rows", len(test)).Msg("holdout has no overlap with model")
		return
	}

	metrics.SetEvaluation(eval.RMSE, eval.MAE, eval.Samples)
	log.Info().
		Float64("rmse", eval.RMSE).
		Float64("mae", eval.MAE).
		Int("samples", eval.Samples).
		Msg("holdout evaluation")
}

// persist saves a snapshot of the published model and prunes old ones.
// Persistence failure does not fail the cycle; the model is already live.
func (s *Trainer) persist(ctx context.Context, log zerolog.Logger) {
	if s.store == nil {
		return
	}

	snap, err := s.engine.Snapshot()
	if err != nil {
		metrics.RecordSnapshot(0, err)
		log.Warn().Err(err).Msg("snapshot assembly failed")
		return
	}

	meta, err := s.store.Save(ctx, snap)
	if err != nil {
		metrics.RecordSnapshot(0, err)
		log.Warn().Err(err).Msg("snapshot save failed")
		return
	}
	metrics.RecordSnapshot(meta.SizeBytes, nil)
	log.Info().
		Int("snapshot_version", meta.Version).
		Int64("size_bytes", meta.SizeBytes).
		Msg("snapshot saved")

	if s.config.RetainSnapshots > 0 {
		removed, err := s.store.Prune(ctx, s.config.RetainSnapshots)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot prune failed")
		} else if removed > 0 {
			log.Debug().Int("removed", removed).Msg("old snapshots pruned")
		}
	}
}

// String returns the service name for logging.
func (s *Trainer) String() string {
	return s.name
}
