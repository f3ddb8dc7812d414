// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

/*
Package recommend implements the hybrid recommendation engine.

The engine learns from sparse user-item interaction history and item
metadata, then serves ranked recommendations per user. Two models are
combined: bias-corrected truncated SVD over the interaction matrix
(collaborative filtering) and TF-IDF content similarity over item
metadata (content-based). Users absent from the training data fall back
to popularity ranking.

# Lifecycle

An Engine starts Untrained. Train builds a complete immutable model
(identity maps, rating matrix, all three fitted sub-models) and publishes
it atomically; inference reads whatever model is currently published and
never blocks on training. A failed training run leaves the previously
published model serving. Recommendation and evaluation calls before the
first successful Train return ErrUntrained.

# Scoring

For a known user the hybrid score of a candidate item is

	score = cf_weight * cf + cb_weight * cb

where cf is the SVD-predicted rating (candidates fetched with a 2x
over-fetch, seen items excluded) and cb is the summed content similarity
to the user's most recent seed items. A candidate surfaced by only one
side keeps zero for the other. Ties order by ascending item index.

# Persistence

Snapshot captures the full trained state and Restore republishes it, so
a process can serve immediately after restart without retraining.
*/
package recommend
