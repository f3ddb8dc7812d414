// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

/*
Package dataset prepares raw interaction and item tables for model training.

The package owns the tabular input types (Interaction, Item) and the
encoding pipeline that turns opaque external identifiers into dense matrix
coordinates:

	raw rows -> Preprocess -> Prepared (encoded rows + identity maps)
	         -> BuildMatrix -> sparse user x item Matrix

# Identity Maps

An IndexMap is a bidirectional mapping between external string identifiers
and dense zero-based indices. Indices are contiguous [0, n) with no gaps,
assigned in first-occurrence order over the filtered data, and immutable
once built. Lookups signal absence explicitly instead of returning a
default value.

# Preprocessing Contract

Preprocess deduplicates by (user, item) keeping the first occurrence, counts
interactions per user and per item over the deduplicated rows, and retains
only rows whose user AND item both meet the minimum count. The filter is a
single joint pass: dropping a low-count item does not re-trigger user
filtering. This is a deliberate approximation, not an iterative fixed point.

# Holdout Splits

Split produces a deterministic shuffled train/test partition for offline
evaluation, seeded so repeated runs evaluate identical partitions.
*/
package dataset
