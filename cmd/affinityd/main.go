// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package main is the entry point for the affinityd daemon.
//
// Affinity is a self-hosted hybrid recommendation engine that blends
// collaborative filtering (truncated SVD over the user-item rating matrix)
// with content-based filtering (TF-IDF over item metadata). The daemon
// retrains the model on a schedule, persists snapshots for fast restarts,
// and exposes health and Prometheus metrics on an ops listener.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: Load settings from config file and environment (Koanf v2)
//  2. Result cache: In-memory LRU or Redis, depending on backend
//  3. Engine: Hybrid recommender with the configured weights and model size
//  4. Dataset source: CSV files or DuckDB queries
//  5. Snapshot storage: Restore the latest model so recommendations are
//     available before the first training run completes
//  6. Supervisor tree: Trainer service and ops HTTP listener under suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (AFFINITY_* prefix)
//   - Config file (affinity.yaml, or -config / AFFINITY_CONFIG)
//   - Built-in defaults
//
// # One-Shot Mode
//
// With the -once flag the daemon runs a single training cycle and exits
// instead of starting the supervisor tree. This is intended for cron-style
// scheduling and for warming a snapshot directory before first deployment:
//
//	affinityd -once -config /etc/affinity/affinity.yaml
//
// The exit code is non-zero when the training cycle fails.
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM:
//   - Cancels any in-flight training cycle
//   - Stops accepting new ops connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the dataset source and result cache
//
// # Example Usage
//
// CSV source with the in-memory cache:
//
//	export AFFINITY_CSV_INTERACTIONS=/data/interactions.csv
//	export AFFINITY_CSV_ITEMS=/data/items.csv
//	./affinityd
//
// DuckDB source with Redis caching and snapshots:
//
//	export AFFINITY_SOURCE_DRIVER=duckdb
//	export AFFINITY_DUCKDB_PATH=/data/affinity.db
//	export AFFINITY_CACHE_BACKEND=redis
//	export AFFINITY_REDIS_ADDR=localhost:6379
//	export AFFINITY_STORAGE_ENABLED=true
//	export AFFINITY_STORAGE_DIR=/var/lib/affinity/snapshots
//	./affinityd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tessellon/affinity/internal/cache"
	"github.com/tessellon/affinity/internal/config"
	"github.com/tessellon/affinity/internal/logging"
	"github.com/tessellon/affinity/internal/ops"
	"github.com/tessellon/affinity/internal/recommend"
	"github.com/tessellon/affinity/internal/recommend/storage"
	"github.com/tessellon/affinity/internal/source"
	"github.com/tessellon/affinity/internal/supervisor"
)

// version is overridden at build time:
//
//	go build -ldflags "-X main.version=v1.2.3" ./cmd/affinityd
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (overrides the default search paths)")
	once := flag.Bool("once", false, "run a single training cycle and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("affinityd " + version)
		return
	}

	// Load configuration first to get logging settings
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Affinity")

	cacheBackend := "disabled"
	if cfg.Engine.Cache.Enabled {
		cacheBackend = cfg.Engine.Cache.Backend
	}
	logging.Info().
		Str("source", cfg.Source.Driver).
		Str("cache", cacheBackend).
		Bool("storage", cfg.Storage.Enabled).
		Bool("ops", cfg.Ops.Enabled).
		Msg("Configuration loaded")

	// Result cache (nil when disabled; the engine treats nil as no cache)
	resultCache, err := newCache(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize result cache")
	}

	engine, err := recommend.New(cfg.RecommendConfig(), resultCache, logging.Logger())
	if err != nil {
		// Close the cache before the fatal exit (defers do not run)
		if resultCache != nil {
			if closeErr := resultCache.Close(); closeErr != nil {
				logging.Error().Err(closeErr).Msg("Error closing result cache")
			}
		}
		logging.Fatal().Err(err).Msg("Failed to initialize recommendation engine")
	}
	// The engine owns the cache and closes it
	defer func() {
		if err := engine.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing engine")
		}
	}()

	src, err := newSource(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize dataset source")
	}
	if closer, ok := src.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing dataset source")
			}
		}()
	}
	logging.Info().Str("driver", src.Name()).Msg("Dataset source initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot storage is optional. The typed interface variable stays nil
	// when storage is disabled so the trainer skips persistence entirely.
	var snapStore supervisor.SnapshotStore
	if cfg.Storage.Enabled {
		store, err := storage.NewStore(cfg.Storage.Dir)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize snapshot storage")
		}
		snapStore = store
		logging.Info().Str("dir", cfg.Storage.Dir).Msg("Snapshot storage initialized")
		restoreLatest(ctx, engine, store)
	}

	trainer := supervisor.NewTrainer(engine, src, snapStore, supervisor.TrainerConfig{
		TrainOnStartup:  cfg.Training.OnStartup,
		Interval:        cfg.Training.Interval,
		Timeout:         cfg.Training.Timeout,
		TestFraction:    cfg.Training.TestFraction,
		Seed:            cfg.Engine.Model.Seed,
		RetainSnapshots: cfg.Training.RetainSnapshots,
	}, logging.Logger())

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if *once {
		if err := trainer.RunOnce(ctx); err != nil {
			// Close resources before the fatal exit (defers do not run)
			if closer, ok := src.(io.Closer); ok {
				if closeErr := closer.Close(); closeErr != nil {
					logging.Error().Err(closeErr).Msg("Error closing dataset source")
				}
			}
			if closeErr := engine.Close(); closeErr != nil {
				logging.Error().Err(closeErr).Msg("Error closing engine")
			}
			logging.Fatal().Err(err).Msg("Training run failed")
		}
		logging.Info().Msg("Training run complete")
		return
	}

	// === BUILD SUPERVISOR TREE ===

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddTrainingService(trainer)
	logging.Info().
		Dur("interval", cfg.Training.Interval).
		Bool("on_startup", cfg.Training.OnStartup).
		Msg("Trainer added to supervisor tree")

	if cfg.Ops.Enabled {
		server := &http.Server{
			Addr:         cfg.Ops.Listen,
			Handler:      ops.NewRouter(engine, version).Handler(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		tree.AddOpsService(supervisor.NewHTTPService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("Ops listener added to supervisor tree")
	} else {
		logging.Info().Msg("Ops listener disabled (AFFINITY_OPS_ENABLED=false)")
	}

	// === START SUPERVISOR TREE ===

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// loadConfig loads configuration from the explicit path when given,
// otherwise from the default search paths and environment.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newCache builds the result cache from configuration. It returns nil
// when caching is disabled.
func newCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.Engine.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Engine.Cache.Backend {
	case config.CacheBackendRedis:
		c, err := cache.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("Redis result cache connected")
		return c, nil
	default:
		return cache.NewMemory(cfg.Engine.Cache.MaxEntries), nil
	}
}

// newSource builds the dataset source from configuration.
func newSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Driver {
	case config.SourceDriverDuckDB:
		return source.OpenDuckDB(
			cfg.Source.DuckDB.Path,
			cfg.Source.DuckDB.InteractionsQuery,
			cfg.Source.DuckDB.ItemsQuery,
		)
	default:
		return source.NewCSV(cfg.Source.CSV.Interactions, cfg.Source.CSV.Items), nil
	}
}

// restoreLatest loads the most recent snapshot into the engine so the
// daemon can serve recommendations before the first training run. All
// failures are non-fatal: the daemon starts with an empty model and the
// trainer rebuilds it.
func restoreLatest(ctx context.Context, engine *recommend.Engine, store *storage.Store) {
	snap, meta, err := store.LoadLatest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoSnapshot) {
			logging.Info().Msg("No snapshot found, starting with an empty model")
			return
		}
		logging.Warn().Err(err).Msg("Failed to load snapshot")
		return
	}
	if err := engine.Restore(snap); err != nil {
		logging.Warn().Err(err).Msg("Failed to restore snapshot")
		return
	}
	logging.Info().
		Str("model_version", meta.ModelVersion).
		Int("users", meta.UserCount).
		Int("items", meta.ItemCount).
		Time("trained_at", meta.TrainedAt).
		Msg("Model restored from snapshot")
}
