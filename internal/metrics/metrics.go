// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Training Metrics
	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "affinity_training_duration_seconds",
			Help:    "Duration of full model training runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_training_runs_total",
			Help: "Total number of training runs by outcome",
		},
		[]string{"status"}, // "success", "failure"
	)

	// Model Metrics
	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_model_version",
			Help: "Version of the currently published model",
		},
	)

	ModelUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_model_users",
			Help: "Number of users in the currently published model",
		},
	)

	ModelItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_model_items",
			Help: "Number of items in the currently published model",
		},
	)

	ModelInteractions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_model_interactions",
			Help: "Number of encoded interactions the current model was trained on",
		},
	)

	// Inference Metrics
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_recommend_requests_total",
			Help: "Total number of recommendation requests by ranking method",
		},
		[]string{"method"}, // "hybrid", "popular", "error"
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "affinity_recommend_duration_seconds",
			Help:    "Recommendation request duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
	)

	// Result Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affinity_cache_hits_total",
			Help: "Total number of recommendation cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affinity_cache_misses_total",
			Help: "Total number of recommendation cache misses",
		},
	)

	// Evaluation Metrics
	EvalRMSE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_eval_rmse",
			Help: "Root mean squared error of the last offline evaluation",
		},
	)

	EvalMAE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_eval_mae",
			Help: "Mean absolute error of the last offline evaluation",
		},
	)

	EvalSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_eval_samples",
			Help: "Number of test rows scored in the last offline evaluation",
		},
	)

	// Snapshot Metrics
	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_snapshot_writes_total",
			Help: "Total number of model snapshot writes by outcome",
		},
		[]string{"status"}, // "success", "failure"
	)

	SnapshotSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_snapshot_size_bytes",
			Help: "Compressed size of the last written model snapshot",
		},
	)

	// Source Metrics
	SourceLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affinity_source_load_duration_seconds",
			Help:    "Dataset load duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "table"}, // table: "interactions", "items"
	)

	SourceRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "affinity_source_rows",
			Help: "Rows returned by the last dataset load",
		},
		[]string{"driver", "table"},
	)
)

// RecordTraining records the outcome and duration of one training run.
func RecordTraining(duration time.Duration, err error) {
	TrainingDuration.Observe(duration.Seconds())
	if err != nil {
		TrainingRuns.WithLabelValues("failure").Inc()
		return
	}
	TrainingRuns.WithLabelValues("success").Inc()
}

// RecordRecommendation records one recommendation request.
func RecordRecommendation(method string, duration time.Duration) {
	RecommendRequests.WithLabelValues(method).Inc()
	RecommendDuration.Observe(duration.Seconds())
}

// SetModelStats publishes the dimensions of the active model.
func SetModelStats(version, users, items, interactions int) {
	ModelVersion.Set(float64(version))
	ModelUsers.Set(float64(users))
	ModelItems.Set(float64(items))
	ModelInteractions.Set(float64(interactions))
}

// SetEvaluation publishes the last offline evaluation result.
// Infinite sentinel values from an empty evaluation set are skipped so the
// gauges keep their last real reading.
func SetEvaluation(rmse, mae float64, samples int) {
	EvalSamples.Set(float64(samples))
	if samples == 0 {
		return
	}
	EvalRMSE.Set(rmse)
	EvalMAE.Set(mae)
}

// RecordSnapshot records a snapshot write attempt.
func RecordSnapshot(sizeBytes int64, err error) {
	if err != nil {
		SnapshotWrites.WithLabelValues("failure").Inc()
		return
	}
	SnapshotWrites.WithLabelValues("success").Inc()
	SnapshotSizeBytes.Set(float64(sizeBytes))
}

// RecordSourceLoad records one dataset table load.
func RecordSourceLoad(driver, table string, rows int, duration time.Duration) {
	SourceLoadDuration.WithLabelValues(driver, table).Observe(duration.Seconds())
	SourceRows.WithLabelValues(driver, table).Set(float64(rows))
}
