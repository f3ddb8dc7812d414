// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores serialized lookup results under string keys. All methods
// are safe for concurrent use.
type Cache interface {
	// Get returns the payload stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for the given TTL. A non-positive TTL
	// stores the entry without expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes every entry owned by this cache.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
)
