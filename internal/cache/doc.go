// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package cache provides the result cache shared by recommendation and
// similarity lookups.
//
// Two backends implement the Cache interface:
//
//   - Memory: a bounded in-process LRU with per-entry TTL and lazy
//     expiration. The default backend; suitable for single-instance
//     deployments.
//   - Redis: a thin wrapper over go-redis for deployments that share one
//     cache across replicas. Keys are namespaced so a shared database is
//     safe, and Clear only touches the namespace.
//
// Values are opaque byte payloads. Callers serialize what they store;
// the engine uses JSON so cached entries survive process restarts when
// the Redis backend is active.
package cache
