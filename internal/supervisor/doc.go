// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

/*
Package supervisor provides process supervision for the affinity daemon
using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of the daemon's long-running services. It provides Erlang/OTP-style
supervision with automatic restart, failure isolation, and graceful shutdown.

# Overview

The supervisor tree organizes services into two layers for failure isolation:

	RootSupervisor ("affinity")
	├── TrainingSupervisor ("training-layer")
	│   └── Trainer
	└── OpsSupervisor ("ops-layer")
	    └── HTTPService

This hierarchy ensures that:
  - A trainer crash loop does not take down the ops listener
  - Health and metrics stay reachable while a failure is diagnosed
  - Each layer has independent failure counting

# Usage Example

Basic setup in main:

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    logging.Fatal().Err(err).Msg("supervisor tree")
	}

	tree.AddTrainingService(supervisor.NewTrainer(engine, src, store, trainerCfg, log))
	tree.AddOpsService(supervisor.NewHTTPService(server, 10*time.Second))

	// Blocks until the context is canceled
	if err := tree.Serve(ctx); err != nil {
	    logging.Error().Err(err).Msg("supervisor stopped")
	}

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. Counter decays exponentially over time (FailureDecay seconds)
 3. When counter exceeds FailureThreshold, supervisor enters backoff
 4. During backoff, restarts are delayed by FailureBackoff duration

Default values match suture's production-ready defaults: threshold 5,
decay 30s, backoff 15s, shutdown timeout 10s.

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: service stopped cleanly, will not be restarted
  - Return error: service crashed, will be restarted
  - Context canceled: shutdown requested, return promptly

The Trainer deliberately absorbs per-cycle errors rather than returning
them: a failed training run is retried on the next tick, not by a
supervisor restart. Only context cancellation ends its Serve.

# What Is NOT Supervised

The snapshot store and the dataset sources are not supervised. They are
libraries invoked from the trainer, not long-running services; their
failures surface as failed training cycles.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logging.Warn().Str("service", svc.Name).Msg("service did not stop")
	}

# See Also

  - github.com/thejerf/suture/v4: underlying library
  - github.com/thejerf/sutureslog: slog event hook adapter
*/
package supervisor
