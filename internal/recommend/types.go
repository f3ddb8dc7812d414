// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package recommend

import (
	"math"
	"time"

	"github.com/goccy/go-json"
)

// Method identifies how a recommendation was produced.
type Method string

const (
	// MethodHybrid marks recommendations from the fused CF and CB models.
	MethodHybrid Method = "hybrid"

	// MethodPopular marks cold-start recommendations from the popularity
	// fallback.
	MethodPopular Method = "popular"
)

// Recommendation is one ranked output record.
type Recommendation struct {
	// ItemID is the external item identifier.
	ItemID string `json:"item_id"`

	// Score is the final ranking score: the weighted hybrid score, or the
	// raw popularity score on the cold-start path.
	Score float64 `json:"score"`

	// CFScore is the collaborative filtering contribution before
	// weighting. Zero when the item was surfaced only by the content
	// model or on the cold-start path.
	CFScore float64 `json:"cf_score"`

	// CBScore is the content similarity contribution before weighting.
	CBScore float64 `json:"cb_score"`

	// Method reports which path produced this recommendation.
	Method Method `json:"method"`
}

// SimilarItem is one entry of a content similarity query.
type SimilarItem struct {
	// ItemID is the external item identifier.
	ItemID string `json:"item_id"`

	// Similarity is the cosine similarity to the query item, in [0, 1].
	Similarity float64 `json:"similarity"`
}

// Evaluation holds offline accuracy metrics from a holdout set.
// When no test row overlaps the trained identity maps, RMSE and MAE are
// +Inf sentinels and Samples is zero.
type Evaluation struct {
	// RMSE is the root mean squared error of SVD predictions.
	RMSE float64 `json:"rmse"`

	// MAE is the mean absolute error of SVD predictions.
	MAE float64 `json:"mae"`

	// Samples is the number of evaluated test rows.
	Samples int `json:"samples"`
}

// IsEmpty reports whether the evaluation carries the no-overlap sentinel.
func (e Evaluation) IsEmpty() bool {
	return e.Samples == 0
}

// MarshalJSON renders the +Inf sentinels as null so the struct stays
// JSON-encodable.
func (e Evaluation) MarshalJSON() ([]byte, error) {
	var rmse, mae *float64
	if !math.IsInf(e.RMSE, 0) && !math.IsNaN(e.RMSE) {
		rmse = &e.RMSE
	}
	if !math.IsInf(e.MAE, 0) && !math.IsNaN(e.MAE) {
		mae = &e.MAE
	}
	return json.Marshal(struct {
		RMSE    *float64 `json:"rmse"`
		MAE     *float64 `json:"mae"`
		Samples int      `json:"samples"`
	}{rmse, mae, e.Samples})
}

// Status describes the engine's published model and counters.
type Status struct {
	// Trained reports whether a model is published.
	Trained bool `json:"trained"`

	// Training reports whether a training run is in progress.
	Training bool `json:"training"`

	// ModelVersion is the unique identifier of the published model.
	ModelVersion string `json:"model_version,omitempty"`

	// ModelSequence counts published models since process start.
	ModelSequence int64 `json:"model_sequence"`

	// TrainedAt is when the published model was built.
	TrainedAt time.Time `json:"trained_at"`

	// Users is the number of users in the published model.
	Users int `json:"users"`

	// Items is the number of items in the published model.
	Items int `json:"items"`

	// Interactions is the number of retained training interactions.
	Interactions int `json:"interactions"`

	// Implicit reports whether the training set carried no explicit
	// ratings.
	Implicit bool `json:"implicit"`

	// Factors is the number of retained latent components.
	Factors int `json:"factors"`

	// VocabSize is the content model's vocabulary size.
	VocabSize int `json:"vocab_size"`

	// LastEvaluation is the most recent offline evaluation, if any.
	LastEvaluation *Evaluation `json:"last_evaluation,omitempty"`

	// Metrics holds request-path counters.
	Metrics Metrics `json:"metrics"`
}

// Metrics contains engine counters for observability.
type Metrics struct {
	// RequestCount is the total number of recommendation requests.
	RequestCount int64 `json:"request_count"`

	// CacheHits is the number of recommendation cache hits.
	CacheHits int64 `json:"cache_hits"`

	// CacheMisses is the number of recommendation cache misses.
	CacheMisses int64 `json:"cache_misses"`

	// ErrorCount is the number of failed requests.
	ErrorCount int64 `json:"error_count"`

	// AverageLatencyMS is the mean recommendation latency.
	AverageLatencyMS float64 `json:"average_latency_ms"`

	// TrainingCount is the number of successful training runs.
	TrainingCount int64 `json:"training_count"`

	// LastTrainingDurationMS is the duration of the last successful
	// training run.
	LastTrainingDurationMS int64 `json:"last_training_duration_ms"`
}
