// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

/*
Package metrics provides Prometheus instrumentation for the Affinity daemon.

All collectors are package-level promauto variables registered against the
default registry and exposed by the ops listener at /metrics.

# Available Metrics

Training:
  - affinity_training_duration_seconds: full training run duration (histogram)
  - affinity_training_runs_total: training runs (counter), labels: status

Model:
  - affinity_model_version: published model version (gauge)
  - affinity_model_users / _items / _interactions: model dimensions (gauges)

Inference:
  - affinity_recommend_requests_total: requests (counter), labels: method
  - affinity_recommend_duration_seconds: request latency (histogram)
  - affinity_cache_hits_total / affinity_cache_misses_total: result cache

Evaluation:
  - affinity_eval_rmse / affinity_eval_mae: last offline evaluation (gauges)
  - affinity_eval_samples: rows scored in the last evaluation (gauge)

Snapshots:
  - affinity_snapshot_writes_total: writes (counter), labels: status
  - affinity_snapshot_size_bytes: last compressed snapshot size (gauge)

Sources:
  - affinity_source_load_duration_seconds: load duration (histogram),
    labels: driver, table
  - affinity_source_rows: rows in the last load (gauge), labels: driver, table

# Usage

	start := time.Now()
	err := engine.Train(ctx, interactions, items)
	metrics.RecordTraining(time.Since(start), err)

Example PromQL:

	# hybrid vs popular request mix
	sum by (method) (rate(affinity_recommend_requests_total[5m]))

	# cache hit rate
	rate(affinity_cache_hits_total[5m])
	/ (rate(affinity_cache_hits_total[5m]) + rate(affinity_cache_misses_total[5m]))

All recording functions are safe for concurrent use; synchronization is
handled by the Prometheus client library.
*/
package metrics
