// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package recommend

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Weights defines the relative contribution of the two models.
	// Weights are normalized at runtime, so they don't need to sum to 1.0.
	Weights FusionWeights `json:"weights"`

	// Model contains parameters for dataset preparation and the two
	// sub-models.
	Model ModelConfig `json:"model"`

	// Ranking contains candidate generation and output limits.
	Ranking RankingConfig `json:"ranking"`

	// Cache contains recommendation caching parameters.
	Cache CacheConfig `json:"cache"`
}

// FusionWeights defines the relative contribution of each model.
type FusionWeights struct {
	// CF is the weight of the collaborative filtering score.
	// Default: 0.7.
	CF float64 `json:"cf"`

	// CB is the weight of the content-based score.
	// Default: 0.3.
	CB float64 `json:"cb"`
}

// Normalize returns a copy with weights normalized to sum to 1.0.
func (w FusionWeights) Normalize() FusionWeights {
	sum := w.CF + w.CB
	if sum == 0 {
		return FusionWeights{CF: 0.5, CB: 0.5}
	}
	return FusionWeights{
		CF: w.CF / sum,
		CB: w.CB / sum,
	}
}

// ModelConfig contains dataset and sub-model parameters.
type ModelConfig struct {
	// MinInteractions is the minimum deduplicated interaction count a
	// user or item needs to survive preprocessing.
	// Default: 5.
	MinInteractions int `json:"min_interactions"`

	// Factors is the number of latent SVD components, capped at
	// min(users, items) during training.
	// Default: 50.
	Factors int `json:"factors"`

	// MaxFeatures bounds the content model's vocabulary size.
	// Default: 5000.
	MaxFeatures int `json:"max_features"`

	// FeatureColumns names the item metadata fields concatenated into
	// each item's content document, in order.
	// Default: [name, description, category, brand].
	FeatureColumns []string `json:"feature_columns"`

	// Seed drives deterministic holdout splits for offline evaluation.
	// Default: 42.
	Seed int64 `json:"seed"`
}

// RankingConfig contains candidate generation and output limits.
type RankingConfig struct {
	// DefaultK is the number of recommendations returned when the caller
	// requests zero.
	// Default: 10.
	DefaultK int `json:"default_k"`

	// MaxK caps the number of recommendations per request.
	// Default: 100.
	MaxK int `json:"max_k"`

	// CFOverfetch multiplies k when fetching CF candidates, leaving room
	// for re-ranking against content candidates.
	// Default: 2.
	CFOverfetch int `json:"cf_overfetch"`

	// CBSeedItems is how many of the user's most recent items seed the
	// content similarity lookup.
	// Default: 5.
	CBSeedItems int `json:"cb_seed_items"`

	// CBSimilarPerSeed is how many similar items each seed contributes
	// before seen filtering.
	// Default: 20.
	CBSimilarPerSeed int `json:"cb_similar_per_seed"`

	// MMRLambda balances relevance against diversity when the fused
	// candidate list is re-ranked with maximal marginal relevance.
	// Values in (0, 1) trade relevance for diversity; 1.0 ranks purely
	// by fused score and skips re-ranking. Zero also disables
	// re-ranking, so the zero value of this struct stays inert.
	// Default: 1.0.
	MMRLambda float64 `json:"mmr_lambda"`
}

// CacheConfig contains recommendation caching parameters.
type CacheConfig struct {
	// Enabled controls whether result caching is active.
	// Default: true.
	Enabled bool `json:"enabled"`

	// TTL is the cache entry time-to-live.
	// Default: 5m.
	TTL time.Duration `json:"ttl"`

	// MaxEntries is the maximum number of cached entries for the
	// in-memory backend.
	// Default: 10000.
	MaxEntries int `json:"max_entries"`

	// InvalidateOnTrain controls whether the cache is cleared after a
	// successful training run.
	// Default: true.
	InvalidateOnTrain bool `json:"invalidate_on_train"`
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() *Config {
	return &Config{
		Weights: FusionWeights{
			CF: 0.7,
			CB: 0.3,
		},
		Model: ModelConfig{
			MinInteractions: 5,
			Factors:         50,
			MaxFeatures:     5000,
			FeatureColumns:  []string{"name", "description", "category", "brand"},
			Seed:            42,
		},
		Ranking: RankingConfig{
			DefaultK:         10,
			MaxK:             100,
			CFOverfetch:      2,
			CBSeedItems:      5,
			CBSimilarPerSeed: 20,
			MMRLambda:        1.0,
		},
		Cache: CacheConfig{
			Enabled:           true,
			TTL:               5 * time.Minute,
			MaxEntries:        10000,
			InvalidateOnTrain: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Weights.CF < 0 {
		return fmt.Errorf("weights.cf must be non-negative, got %f", c.Weights.CF)
	}
	if c.Weights.CB < 0 {
		return fmt.Errorf("weights.cb must be non-negative, got %f", c.Weights.CB)
	}
	if c.Weights.CF+c.Weights.CB == 0 {
		return fmt.Errorf("weights.cf and weights.cb must not both be zero")
	}

	if c.Model.MinInteractions < 1 {
		return fmt.Errorf("model.min_interactions must be positive, got %d", c.Model.MinInteractions)
	}
	if c.Model.Factors < 1 {
		return fmt.Errorf("model.factors must be positive, got %d", c.Model.Factors)
	}
	if c.Model.MaxFeatures < 1 {
		return fmt.Errorf("model.max_features must be positive, got %d", c.Model.MaxFeatures)
	}
	if len(c.Model.FeatureColumns) == 0 {
		return fmt.Errorf("model.feature_columns must not be empty")
	}

	if c.Ranking.DefaultK < 1 {
		return fmt.Errorf("ranking.default_k must be positive, got %d", c.Ranking.DefaultK)
	}
	if c.Ranking.MaxK < c.Ranking.DefaultK {
		return fmt.Errorf("ranking.max_k must be >= ranking.default_k, got %d < %d", c.Ranking.MaxK, c.Ranking.DefaultK)
	}
	if c.Ranking.CFOverfetch < 1 {
		return fmt.Errorf("ranking.cf_overfetch must be positive, got %d", c.Ranking.CFOverfetch)
	}
	if c.Ranking.CBSeedItems < 1 {
		return fmt.Errorf("ranking.cb_seed_items must be positive, got %d", c.Ranking.CBSeedItems)
	}
	if c.Ranking.CBSimilarPerSeed < 1 {
		return fmt.Errorf("ranking.cb_similar_per_seed must be positive, got %d", c.Ranking.CBSimilarPerSeed)
	}
	if c.Ranking.MMRLambda < 0 || c.Ranking.MMRLambda > 1 {
		return fmt.Errorf("ranking.mmr_lambda must be in [0, 1], got %f", c.Ranking.MMRLambda)
	}

	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
		}
		if c.Cache.MaxEntries < 1 {
			return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
		}
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := &Config{
		Weights: c.Weights,
		Model:   c.Model,
		Ranking: c.Ranking,
		Cache:   c.Cache,
	}
	clone.Model.FeatureColumns = make([]string, len(c.Model.FeatureColumns))
	copy(clone.Model.FeatureColumns, c.Model.FeatureColumns)
	return clone
}

// MarshalJSON implements custom JSON marshaling for duration fields.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		Cache struct {
			Enabled           bool   `json:"enabled"`
			TTL               string `json:"ttl"`
			MaxEntries        int    `json:"max_entries"`
			InvalidateOnTrain bool   `json:"invalidate_on_train"`
		} `json:"cache"`
	}{
		Alias: (*Alias)(c),
		Cache: struct {
			Enabled           bool   `json:"enabled"`
			TTL               string `json:"ttl"`
			MaxEntries        int    `json:"max_entries"`
			InvalidateOnTrain bool   `json:"invalidate_on_train"`
		}{
			Enabled:           c.Cache.Enabled,
			TTL:               c.Cache.TTL.String(),
			MaxEntries:        c.Cache.MaxEntries,
			InvalidateOnTrain: c.Cache.InvalidateOnTrain,
		},
	})
}
