// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package source loads interaction and item catalog rows from external
// data stores. Implementations return plain typed rows; cleaning and
// identifier encoding happen downstream in the dataset package.
//
// Two drivers are provided: CSV files with header rows and DuckDB through
// database/sql. Column matching is by name, case-insensitive, so the two
// drivers produce the same typed rows for equivalent data.
package source

import (
	"context"
	"io"

	"github.com/tessellon/affinity/internal/recommend/dataset"
)

// Source supplies the training inputs for one engine build. Interactions
// and Items may be called independently and repeatedly; implementations
// must be safe for concurrent use.
type Source interface {
	// Name identifies the driver in logs and metric labels.
	Name() string

	// Interactions returns all user-item interaction rows.
	Interactions(ctx context.Context) ([]dataset.Interaction, error)

	// Items returns the item catalog with its free-text feature columns.
	Items(ctx context.Context) ([]dataset.Item, error)
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // Explicitly ignore error - cleanup is best-effort
	}
}
