// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"affinity.yaml",
	"affinity.yml",
	"/etc/affinity/affinity.yaml",
	"/etc/affinity/affinity.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "AFFINITY_CONFIG"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (first found path, or AFFINITY_CONFIG)
//  3. Environment variables: AFFINITY_* overrides via the mapping table
//
// Precedence is ENV > file > defaults. The merged result is validated
// before it is returned.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path
// skips the file layer.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice fields become slices
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings is the explicit table of recognized environment variables.
// Unmapped variables are ignored so unrelated environment state cannot
// leak into the configuration.
var envMappings = map[string]string{
	// Engine weights and model
	"affinity_cf_weight":           "engine.weights.cf",
	"affinity_cb_weight":           "engine.weights.cb",
	"affinity_min_interactions":    "engine.model.min_interactions",
	"affinity_factors":             "engine.model.factors",
	"affinity_max_features":        "engine.model.max_features",
	"affinity_feature_columns":     "engine.model.feature_columns",
	"affinity_seed":                "engine.model.seed",
	"affinity_default_k":           "engine.ranking.default_k",
	"affinity_max_k":               "engine.ranking.max_k",
	"affinity_cf_overfetch":        "engine.ranking.cf_overfetch",
	"affinity_cb_seed_items":       "engine.ranking.cb_seed_items",
	"affinity_cb_similar_per_seed": "engine.ranking.cb_similar_per_seed",
	"affinity_mmr_lambda":          "engine.ranking.mmr_lambda",

	// Result cache
	"affinity_cache_backend":             "engine.cache.backend",
	"affinity_cache_enabled":             "engine.cache.enabled",
	"affinity_cache_ttl":                 "engine.cache.ttl",
	"affinity_cache_max_entries":         "engine.cache.max_entries",
	"affinity_cache_invalidate_on_train": "engine.cache.invalidate_on_train",

	// Training schedule
	"affinity_train_interval":   "training.interval",
	"affinity_train_on_startup": "training.on_startup",
	"affinity_train_timeout":    "training.timeout",
	"affinity_test_fraction":    "training.test_fraction",
	"affinity_retain_snapshots": "training.retain_snapshots",

	// Dataset source
	"affinity_source_driver":             "source.driver",
	"affinity_csv_interactions":          "source.csv.interactions",
	"affinity_csv_items":                 "source.csv.items",
	"affinity_duckdb_path":               "source.duckdb.path",
	"affinity_duckdb_interactions_query": "source.duckdb.interactions_query",
	"affinity_duckdb_items_query":        "source.duckdb.items_query",

	// Snapshot storage
	"affinity_storage_enabled": "storage.enabled",
	"affinity_storage_dir":     "storage.dir",

	// Ops listener
	"affinity_ops_enabled": "ops.enabled",
	"affinity_ops_listen":  "ops.listen",

	// Logging
	"affinity_log_level":  "logging.level",
	"affinity_log_format": "logging.format",
	"affinity_log_caller": "logging.caller",

	// Redis cache backend
	"affinity_redis_addr":     "redis.addr",
	"affinity_redis_password": "redis.password",
	"affinity_redis_db":       "redis.db",
}

// envTransformFunc maps environment variable names to koanf config
// paths. Returning "" skips the variable.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as plain strings from the environment.
var sliceConfigPaths = []string{
	"engine.model.feature_columns",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
