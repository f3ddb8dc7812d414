// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tessellon/affinity/internal/cache"
	"github.com/tessellon/affinity/internal/metrics"
	"github.com/tessellon/affinity/internal/recommend/dataset"
	"github.com/tessellon/affinity/internal/recommend/storage"
)

// Engine serves hybrid recommendations from an atomically published
// model. All read paths are lock-free against training: a request either
// sees the previous model or the new one, never a mix.
type Engine struct {
	config  *Config
	weights FusionWeights
	log     zerolog.Logger
	cache   cache.Cache

	current  atomic.Pointer[model]
	lastEval atomic.Pointer[Evaluation]

	trainMu  sync.Mutex
	training atomic.Bool

	modelSeq      atomic.Int64
	requests      atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	errorCount    atomic.Int64
	latencyMicros atomic.Int64
	trainingCount atomic.Int64
	lastTrainMS   atomic.Int64
}

// New constructs an engine. The config is cloned and validated. With
// caching enabled and a nil cache, an in-process cache sized from the
// config is used; pass a cache.Cache to use an external backend.
func New(cfg *Config, c cache.Cache, log zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	if !cfg.Cache.Enabled {
		c = nil
	} else if c == nil {
		c = cache.NewMemory(cfg.Cache.MaxEntries)
	}

	return &Engine{
		config:  cfg,
		weights: cfg.Weights.Normalize(),
		log:     log.With().Str("component", "engine").Logger(),
		cache:   c,
	}, nil
}

// Train builds a new model from the given interactions and catalog and
// publishes it atomically. Requests are served from the previous model
// for the whole run, and a failed run leaves that model in place.
// A second concurrent call fails fast with ErrTrainingInProgress.
func (e *Engine) Train(ctx context.Context, interactions []dataset.Interaction, items []dataset.Item) error {
	if !e.trainMu.TryLock() {
		return ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	e.training.Store(true)
	defer e.training.Store(false)

	start := time.Now()
	e.log.Info().
		Int("interactions", len(interactions)).
		Int("catalog_items", len(items)).
		Msg("training started")

	m, err := buildModel(ctx, e.config, interactions, items)
	if err != nil {
		e.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("training failed")
		return err
	}

	e.current.Store(m)
	seq := e.modelSeq.Add(1)
	e.trainingCount.Add(1)
	elapsed := time.Since(start)
	e.lastTrainMS.Store(elapsed.Milliseconds())

	if e.cache != nil && e.config.Cache.InvalidateOnTrain {
		if err := e.cache.Clear(ctx); err != nil {
			e.log.Warn().Err(err).Msg("cache invalidation failed")
		}
	}

	e.log.Info().
		Str("model_version", m.version).
		Int64("model_sequence", seq).
		Int("users", m.users.Len()).
		Int("items", m.items.Len()).
		Int("interactions", m.interactions).
		Int("factors", m.svd.Factors()).
		Int("vocab_size", m.content.VocabSize()).
		Bool("implicit", m.implicit).
		Dur("elapsed", elapsed).
		Msg("model published")
	return nil
}

// Recommend returns the top k items for a user. Known users get
// hybrid scores over items they have not interacted with; unknown users
// get the popularity fallback. k of zero or less selects the configured
// default and k above the maximum is capped.
func (e *Engine) Recommend(ctx context.Context, userID string, k int) ([]Recommendation, error) {
	start := time.Now()
	e.requests.Add(1)

	m := e.current.Load()
	if m == nil {
		e.errorCount.Add(1)
		metrics.RecordRecommendation("error", time.Since(start))
		return nil, ErrUntrained
	}

	k = e.clampK(k)
	key := fmt.Sprintf("rec:%s:%s:%d", m.version, userID, k)
	if recs, ok := fetchCached[[]Recommendation](ctx, e, key); ok {
		e.observeLatency(start)
		metrics.RecordRecommendation(methodOf(recs), time.Since(start))
		return recs, nil
	}

	recs := m.recommend(userID, k, e.config.Ranking, e.weights)
	putCached(ctx, e, key, recs)
	e.observeLatency(start)
	metrics.RecordRecommendation(methodOf(recs), time.Since(start))
	return recs, nil
}

// SimilarItems returns the k catalog items most similar to itemID by
// content features. Unknown items yield an empty result with no error.
func (e *Engine) SimilarItems(ctx context.Context, itemID string, k int) ([]SimilarItem, error) {
	m := e.current.Load()
	if m == nil {
		e.errorCount.Add(1)
		return nil, ErrUntrained
	}

	k = e.clampK(k)
	key := fmt.Sprintf("sim:%s:%s:%d", m.version, itemID, k)
	if items, ok := fetchCached[[]SimilarItem](ctx, e, key); ok {
		return items, nil
	}

	items := m.similarTo(itemID, k)
	putCached(ctx, e, key, items)
	return items, nil
}

// Evaluate scores the published model's rating predictions against a
// holdout set and remembers the result for Status. Test rows whose user
// or item the model never saw are skipped; when none remain the returned
// metrics carry infinite sentinels with zero samples.
func (e *Engine) Evaluate(ctx context.Context, test []dataset.Interaction) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	m := e.current.Load()
	if m == nil {
		return Evaluation{}, ErrUntrained
	}

	eval := m.evaluate(test)
	e.lastEval.Store(&eval)
	return eval, nil
}

// Snapshot serializes the published model for persistence.
func (e *Engine) Snapshot() (*storage.Snapshot, error) {
	m := e.current.Load()
	if m == nil {
		return nil, ErrUntrained
	}
	return m.snapshot(), nil
}

// Restore publishes a model rebuilt from a persisted snapshot. Meant for
// process startup: it counts as a published model but not as a training
// run. Cached results from older versions age out on their own since
// cache keys carry the model version.
func (e *Engine) Restore(snap *storage.Snapshot) error {
	m, err := modelFromSnapshot(snap, e.config)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	e.current.Store(m)
	e.modelSeq.Add(1)
	e.log.Info().
		Str("model_version", m.version).
		Int("users", m.users.Len()).
		Int("items", m.items.Len()).
		Time("trained_at", m.trainedAt).
		Msg("model restored from snapshot")
	return nil
}

// Status reports the published model's dimensions and the engine
// counters.
func (e *Engine) Status() Status {
	st := Status{
		Training:      e.training.Load(),
		ModelSequence: e.modelSeq.Load(),
		Metrics: Metrics{
			RequestCount:           e.requests.Load(),
			CacheHits:              e.cacheHits.Load(),
			CacheMisses:            e.cacheMisses.Load(),
			ErrorCount:             e.errorCount.Load(),
			TrainingCount:          e.trainingCount.Load(),
			LastTrainingDurationMS: e.lastTrainMS.Load(),
		},
	}
	if n := st.Metrics.RequestCount; n > 0 {
		st.Metrics.AverageLatencyMS = float64(e.latencyMicros.Load()) / float64(n) / 1000.0
	}

	if m := e.current.Load(); m != nil {
		st.Trained = true
		st.ModelVersion = m.version
		st.TrainedAt = m.trainedAt
		st.Users = m.users.Len()
		st.Items = m.items.Len()
		st.Interactions = m.interactions
		st.Implicit = m.implicit
		st.Factors = m.svd.Factors()
		st.VocabSize = m.content.VocabSize()
	}
	if eval := e.lastEval.Load(); eval != nil {
		last := *eval
		st.LastEvaluation = &last
	}
	return st
}

// Close releases the engine's cache resources.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

func (e *Engine) clampK(k int) int {
	if k <= 0 {
		return e.config.Ranking.DefaultK
	}
	if k > e.config.Ranking.MaxK {
		return e.config.Ranking.MaxK
	}
	return k
}

func (e *Engine) observeLatency(start time.Time) {
	e.latencyMicros.Add(time.Since(start).Microseconds())
}

// methodOf labels a result set for metrics. An empty set can only come
// from the hybrid path: popularity always has items to return once a
// model exists.
func methodOf(recs []Recommendation) string {
	if len(recs) > 0 {
		return string(recs[0].Method)
	}
	return string(MethodHybrid)
}

// fetchCached loads and decodes one cached value, counting hit or miss.
// The second return is false on miss, decode failure or disabled cache;
// a disabled cache counts nothing.
func fetchCached[T any](ctx context.Context, e *Engine, key string) (T, bool) {
	var zero T
	if e.cache == nil {
		return zero, false
	}

	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			e.log.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		e.cacheMisses.Add(1)
		metrics.CacheMisses.Inc()
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		e.log.Debug().Err(err).Str("key", key).Msg("cache entry corrupt")
		e.cacheMisses.Add(1)
		metrics.CacheMisses.Inc()
		return zero, false
	}

	e.cacheHits.Add(1)
	metrics.CacheHits.Inc()
	return value, true
}

// putCached encodes and stores one cache value. Failures only cost the
// next request a recompute, so they are logged at debug and swallowed.
func putCached[T any](ctx context.Context, e *Engine, key string, value T) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.config.Cache.TTL); err != nil {
		e.log.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}
