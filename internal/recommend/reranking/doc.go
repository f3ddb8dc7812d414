// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package reranking implements post-processing over ranked candidate
// lists, reordering them for objectives beyond pure relevance.
//
// # Overview
//
// Re-ranking runs after candidate generation and score fusion:
//
//	CF + CB candidates -> fused ranking -> re-ranker -> final top k
//	(relevance)                            (diversity)
//
// Re-rankers operate on internal item indices paired with fused scores,
// so they stay decoupled from identifier mapping and from where the
// pairwise similarities come from. The engine passes the content
// model's cosine similarity; tests can pass any function.
//
// # Maximal Marginal Relevance
//
// MMR iteratively selects the candidate that is both relevant and
// dissimilar to everything already selected:
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max_similarity(i, selected)]
//
// Lambda guidelines:
//   - 1.0: pure relevance, re-ranking disabled
//   - 0.7-0.9: balanced (recommended when diversification is wanted)
//   - 0.5-0.7: strong diversity push
//   - below 0.5: diversity-focused, may sacrifice relevance
//
// Relevance scores are min-max normalized over the candidate pool, so
// lambda keeps the same meaning whether scores are rating predictions
// or summed similarities.
//
// # Performance
//
// Rerank is O(k * n) similarity lookups for n candidates: the maximum
// similarity to the selected set is maintained incrementally rather
// than recomputed per step. The candidate pool is already bounded by
// the ranking limits, so no further pre-filtering is needed.
//
// # Thread Safety
//
// Re-rankers are stateless and safe for concurrent use.
//
// # See Also
//
//   - internal/recommend/algorithms: scoring models and similarities
//   - internal/recommend: engine that orchestrates re-ranking
//   - Carbonell & Goldstein (1998): "The Use of MMR" SIGIR paper
package reranking
