// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package reranking

import "math"

// Candidate is one scored item entering a re-ranker, identified by its
// internal item index.
type Candidate struct {
	Item  int
	Score float64
}

// SimilarityFunc reports the similarity of two item indices in [0, 1].
type SimilarityFunc func(a, b int) float64

// MMR implements Maximal Marginal Relevance re-ranking. It balances
// relevance and diversity by iteratively selecting the candidate that
// maximizes
//
//	lambda * score(i) - (1-lambda) * max(sim(i, s)) for selected s
//
// where lambda 1.0 is pure relevance and 0.0 pure diversity. Relevance
// scores are min-max normalized over the candidate pool before
// selection so the trade-off stays scale-free against rating-scale
// hybrid scores.
//
// Reference:
// Carbonell, J., & Goldstein, J. (1998). "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries." SIGIR 1998.
type MMR struct {
	// lambda balances relevance vs. diversity (0.0 to 1.0)
	lambda float64
}

// NewMMR creates a new MMR re-ranker. Lambda is clamped to [0, 1].
func NewMMR(lambda float64) *MMR {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMR{lambda: lambda}
}

// Name returns the re-ranker identifier.
func (m *MMR) Name() string {
	return "mmr"
}

// Rerank selects up to k candidates greedily by marginal relevance.
// Candidates are expected in descending score order; with lambda 1.0
// the input order is preserved and sim is never called. Ties go to the
// earlier candidate, so selection is deterministic for a fixed input
// order.
func (m *MMR) Rerank(candidates []Candidate, k int, sim SimilarityFunc) []Candidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	if m.lambda >= 1 || len(candidates) == 1 || sim == nil {
		out := make([]Candidate, k)
		copy(out, candidates[:k])
		return out
	}

	relevance := normalizeScores(candidates)

	selected := make([]Candidate, 0, k)
	picked := make([]bool, len(candidates))

	// maxSim[i] is the highest similarity of candidate i to any selected
	// item, updated incrementally after each pick.
	maxSim := make([]float64, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			score := m.lambda*relevance[i] - (1-m.lambda)*maxSim[i]
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		picked[best] = true
		selected = append(selected, candidates[best])

		for i := range candidates {
			if picked[i] {
				continue
			}
			if s := sim(candidates[i].Item, candidates[best].Item); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	return selected
}

// normalizeScores maps candidate scores to [0, 1] by min-max scaling.
// A pool with a single distinct score maps to all ones.
func normalizeScores(candidates []Candidate) []float64 {
	lo, hi := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}

	out := make([]float64, len(candidates))
	span := hi - lo
	if span == 0 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, c := range candidates {
		out[i] = (c.Score - lo) / span
	}
	return out
}
