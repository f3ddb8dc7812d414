// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package config loads and validates the daemon configuration from three
// layered sources: built-in defaults, an optional YAML file and AFFINITY_*
// environment variables. Environment variables win over the file, the
// file wins over defaults.
package config

import (
	"fmt"
	"time"

	"github.com/tessellon/affinity/internal/recommend"
)

// Config is the root configuration for the daemon.
type Config struct {
	Engine   EngineConfig   `koanf:"engine"`
	Training TrainingConfig `koanf:"training"`
	Source   SourceConfig   `koanf:"source"`
	Storage  StorageConfig  `koanf:"storage"`
	Ops      OpsConfig      `koanf:"ops"`
	Logging  LoggingConfig  `koanf:"logging"`
	Redis    RedisConfig    `koanf:"redis"`
}

// EngineConfig mirrors the recommendation engine configuration. The
// RecommendConfig method converts it into the engine's own type.
type EngineConfig struct {
	Weights WeightsConfig       `koanf:"weights"`
	Model   EngineModelConfig   `koanf:"model"`
	Ranking EngineRankingConfig `koanf:"ranking"`
	Cache   EngineCacheConfig   `koanf:"cache"`
}

// WeightsConfig sets the relative contribution of the two models.
// Weights are normalized at runtime and do not need to sum to 1.0.
type WeightsConfig struct {
	CF float64 `koanf:"cf"`
	CB float64 `koanf:"cb"`
}

// EngineModelConfig sets dataset preparation and sub-model parameters.
type EngineModelConfig struct {
	// MinInteractions is the minimum deduplicated interaction count a
	// user or item needs to survive preprocessing.
	// Default: 5
	MinInteractions int `koanf:"min_interactions"`

	// Factors is the number of latent components in the factorization.
	// Default: 50
	Factors int `koanf:"factors"`

	// MaxFeatures bounds the content vocabulary size.
	// Default: 5000
	MaxFeatures int `koanf:"max_features"`

	// FeatureColumns names the item metadata fields concatenated into
	// each item's content document, in order. Environment overrides
	// accept a comma-separated list.
	// Default: name,description,category,brand
	FeatureColumns []string `koanf:"feature_columns"`

	// Seed drives deterministic holdout splits for offline evaluation.
	// Default: 42
	Seed int64 `koanf:"seed"`
}

// EngineRankingConfig sets candidate generation and output limits.
// MMRLambda values in (0, 1) enable diversity re-ranking; 1.0 keeps
// pure relevance order.
type EngineRankingConfig struct {
	DefaultK         int     `koanf:"default_k"`
	MaxK             int     `koanf:"max_k"`
	CFOverfetch      int     `koanf:"cf_overfetch"`
	CBSeedItems      int     `koanf:"cb_seed_items"`
	CBSimilarPerSeed int     `koanf:"cb_similar_per_seed"`
	MMRLambda        float64 `koanf:"mmr_lambda"`
}

// EngineCacheConfig sets result caching parameters. Backend selects the
// cache implementation; the remaining fields apply to whichever backend
// is active.
type EngineCacheConfig struct {
	// Backend is the cache implementation: memory or redis.
	// Default: memory
	Backend string `koanf:"backend"`

	// Enabled controls whether result caching is active.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// TTL is the cache entry time-to-live.
	// Default: 5m
	TTL time.Duration `koanf:"ttl"`

	// MaxEntries bounds the in-memory backend.
	// Default: 10000
	MaxEntries int `koanf:"max_entries"`

	// InvalidateOnTrain clears the cache after a successful training run.
	// Default: true
	InvalidateOnTrain bool `koanf:"invalidate_on_train"`
}

// TrainingConfig sets the retraining schedule.
type TrainingConfig struct {
	// Interval is the time between automatic retraining runs.
	// Default: 24h
	Interval time.Duration `koanf:"interval"`

	// OnStartup trains immediately when the daemon starts.
	// Default: true
	OnStartup bool `koanf:"on_startup"`

	// Timeout bounds a single training run including source loading.
	// Default: 10m
	Timeout time.Duration `koanf:"timeout"`

	// TestFraction is the holdout share used for offline evaluation
	// after each run. Zero disables evaluation.
	// Default: 0.2
	TestFraction float64 `koanf:"test_fraction"`

	// RetainSnapshots is how many model snapshots to keep on disk.
	// Zero keeps everything.
	// Default: 3
	RetainSnapshots int `koanf:"retain_snapshots"`
}

// SourceConfig selects and configures the dataset source.
type SourceConfig struct {
	// Driver is the dataset source: csv or duckdb.
	// Default: csv
	Driver string `koanf:"driver"`

	CSV    CSVSourceConfig    `koanf:"csv"`
	DuckDB DuckDBSourceConfig `koanf:"duckdb"`
}

// CSVSourceConfig names the two input files for the csv driver.
type CSVSourceConfig struct {
	Interactions string `koanf:"interactions"`
	Items        string `koanf:"items"`
}

// DuckDBSourceConfig configures the duckdb driver. The database is
// opened read-only; the two queries must return the column shapes the
// source package documents.
type DuckDBSourceConfig struct {
	Path              string `koanf:"path"`
	InteractionsQuery string `koanf:"interactions_query"`
	ItemsQuery        string `koanf:"items_query"`
}

// StorageConfig configures model snapshot persistence.
type StorageConfig struct {
	// Enabled controls snapshot persistence. When disabled the engine
	// starts untrained after every restart.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Dir is the snapshot directory.
	// Default: ./data/models
	Dir string `koanf:"dir"`
}

// OpsConfig configures the operational HTTP listener.
type OpsConfig struct {
	// Enabled controls the listener.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Listen is the address in host:port form.
	// Default: :9090
	Listen string `koanf:"listen"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes file:line in each event.
	// Default: false
	Caller bool `koanf:"caller"`
}

// RedisConfig configures the redis cache backend. Only read when
// engine.cache.backend is redis.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Cache backend names accepted by engine.cache.backend.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Source driver names accepted by source.driver.
const (
	SourceDriverCSV    = "csv"
	SourceDriverDuckDB = "duckdb"
)

// defaultConfig returns a Config with all default values. These are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Weights: WeightsConfig{
				CF: 0.7,
				CB: 0.3,
			},
			Model: EngineModelConfig{
				MinInteractions: 5,
				Factors:         50,
				MaxFeatures:     5000,
				FeatureColumns:  []string{"name", "description", "category", "brand"},
				Seed:            42,
			},
			Ranking: EngineRankingConfig{
				DefaultK:         10,
				MaxK:             100,
				CFOverfetch:      2,
				CBSeedItems:      5,
				CBSimilarPerSeed: 20,
				MMRLambda:        1.0,
			},
			Cache: EngineCacheConfig{
				Backend:           CacheBackendMemory,
				Enabled:           true,
				TTL:               5 * time.Minute,
				MaxEntries:        10000,
				InvalidateOnTrain: true,
			},
		},
		Training: TrainingConfig{
			Interval:        24 * time.Hour,
			OnStartup:       true,
			Timeout:         10 * time.Minute,
			TestFraction:    0.2,
			RetainSnapshots: 3,
		},
		Source: SourceConfig{
			Driver: SourceDriverCSV,
			CSV: CSVSourceConfig{
				Interactions: "./data/interactions.csv",
				Items:        "./data/items.csv",
			},
			DuckDB: DuckDBSourceConfig{
				Path:              "",
				InteractionsQuery: "",
				ItemsQuery:        "",
			},
		},
		Storage: StorageConfig{
			Enabled: true,
			Dir:     "./data/models",
		},
		Ops: OpsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Redis: RedisConfig{
			Addr:     "127.0.0.1:6379",
			Password: "",
			DB:       0,
		},
	}
}

// RecommendConfig converts the engine section into the recommend
// package's configuration type.
func (c *Config) RecommendConfig() *recommend.Config {
	columns := make([]string, len(c.Engine.Model.FeatureColumns))
	copy(columns, c.Engine.Model.FeatureColumns)

	return &recommend.Config{
		Weights: recommend.FusionWeights{
			CF: c.Engine.Weights.CF,
			CB: c.Engine.Weights.CB,
		},
		Model: recommend.ModelConfig{
			MinInteractions: c.Engine.Model.MinInteractions,
			Factors:         c.Engine.Model.Factors,
			MaxFeatures:     c.Engine.Model.MaxFeatures,
			FeatureColumns:  columns,
			Seed:            c.Engine.Model.Seed,
		},
		Ranking: recommend.RankingConfig{
			DefaultK:         c.Engine.Ranking.DefaultK,
			MaxK:             c.Engine.Ranking.MaxK,
			CFOverfetch:      c.Engine.Ranking.CFOverfetch,
			CBSeedItems:      c.Engine.Ranking.CBSeedItems,
			CBSimilarPerSeed: c.Engine.Ranking.CBSimilarPerSeed,
			MMRLambda:        c.Engine.Ranking.MMRLambda,
		},
		Cache: recommend.CacheConfig{
			Enabled:           c.Engine.Cache.Enabled,
			TTL:               c.Engine.Cache.TTL,
			MaxEntries:        c.Engine.Cache.MaxEntries,
			InvalidateOnTrain: c.Engine.Cache.InvalidateOnTrain,
		},
	}
}

// Validate checks the configuration for errors. The engine section is
// validated through the recommend package so both layers agree.
func (c *Config) Validate() error {
	if err := c.RecommendConfig().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	switch c.Engine.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when engine.cache.backend is %q", CacheBackendRedis)
		}
	default:
		return fmt.Errorf("engine.cache.backend must be %q or %q, got %q",
			CacheBackendMemory, CacheBackendRedis, c.Engine.Cache.Backend)
	}

	if c.Training.Interval <= 0 {
		return fmt.Errorf("training.interval must be positive, got %v", c.Training.Interval)
	}
	if c.Training.Timeout <= 0 {
		return fmt.Errorf("training.timeout must be positive, got %v", c.Training.Timeout)
	}
	if c.Training.TestFraction < 0 || c.Training.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction must be in [0, 1), got %v", c.Training.TestFraction)
	}
	if c.Training.RetainSnapshots < 0 {
		return fmt.Errorf("training.retain_snapshots must be non-negative, got %d", c.Training.RetainSnapshots)
	}

	switch c.Source.Driver {
	case SourceDriverCSV:
		if c.Source.CSV.Interactions == "" {
			return fmt.Errorf("source.csv.interactions is required for the csv driver")
		}
		if c.Source.CSV.Items == "" {
			return fmt.Errorf("source.csv.items is required for the csv driver")
		}
	case SourceDriverDuckDB:
		if c.Source.DuckDB.Path == "" {
			return fmt.Errorf("source.duckdb.path is required for the duckdb driver")
		}
		if c.Source.DuckDB.InteractionsQuery == "" {
			return fmt.Errorf("source.duckdb.interactions_query is required for the duckdb driver")
		}
		if c.Source.DuckDB.ItemsQuery == "" {
			return fmt.Errorf("source.duckdb.items_query is required for the duckdb driver")
		}
	default:
		return fmt.Errorf("source.driver must be %q or %q, got %q",
			SourceDriverCSV, SourceDriverDuckDB, c.Source.Driver)
	}

	if c.Storage.Enabled && c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required when storage is enabled")
	}
	if c.Ops.Enabled && c.Ops.Listen == "" {
		return fmt.Errorf("ops.listen is required when the ops listener is enabled")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
