// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package algorithms

import (
	"context"
	"fmt"
)

// Popularity ranks items by aggregate interaction volume. It is the
// cold-start fallback for users absent from the trained identity maps.
//
// The popularity score of an item is the column sum of the rating
// matrix. For implicit datasets every stored rating is 1.0, so the score
// is simply the interaction count.
type Popularity struct {
	BaseAlgorithm

	// scores holds the per-item column sums, indexed by item.
	scores []float64

	// sorted holds item indices by descending score, ascending index on
	// ties, precomputed at training time.
	sorted []int
}

// NewPopularity creates a new popularity model.
func NewPopularity() *Popularity {
	return &Popularity{
		BaseAlgorithm: NewBaseAlgorithm("popularity"),
	}
}

// Train ranks items by their rating matrix column sums.
func (p *Popularity) Train(ctx context.Context, columnSums []float64) error {
	p.acquireTrainLock()
	defer p.releaseTrainLock()

	if ContextCancelled(ctx) {
		return ctx.Err()
	}
	if len(columnSums) == 0 {
		return fmt.Errorf("popularity: no items to rank")
	}

	scores := make([]float64, len(columnSums))
	copy(scores, columnSums)

	ranked := make([]ItemScore, len(scores))
	for i, s := range scores {
		ranked[i] = ItemScore{Item: i, Score: s}
	}
	sortItemScores(ranked)

	sorted := make([]int, len(ranked))
	for i, r := range ranked {
		sorted[i] = r.Item
	}

	p.scores = scores
	p.sorted = sorted

	p.markTrained()
	return nil
}

// Top returns up to k items by descending popularity, skipping any item
// in exclude.
func (p *Popularity) Top(k int, exclude map[int]struct{}) []ItemScore {
	p.acquirePredictLock()
	defer p.releasePredictLock()

	if !p.trained || k <= 0 {
		return nil
	}

	out := make([]ItemScore, 0, k)
	for _, item := range p.sorted {
		if _, skip := exclude[item]; skip {
			continue
		}
		out = append(out, ItemScore{Item: item, Score: p.scores[item]})
		if len(out) == k {
			break
		}
	}
	return out
}

// Score returns the popularity score for an item index, or 0 when the
// index is out of range.
func (p *Popularity) Score(item int) float64 {
	p.acquirePredictLock()
	defer p.releasePredictLock()

	if item < 0 || item >= len(p.scores) {
		return 0
	}
	return p.scores[item]
}

// Scores returns a copy of the per-item popularity scores.
func (p *Popularity) Scores() []float64 {
	p.acquirePredictLock()
	defer p.releasePredictLock()
	return copyVector(p.scores)
}

// NewPopularityFromScores reconstructs a trained popularity model from
// saved column sums.
func NewPopularityFromScores(scores []float64) *Popularity {
	p := NewPopularity()
	p.acquireTrainLock()
	defer p.releaseTrainLock()

	p.scores = copyVector(scores)
	ranked := make([]ItemScore, len(p.scores))
	for i, s := range p.scores {
		ranked[i] = ItemScore{Item: i, Score: s}
	}
	sortItemScores(ranked)
	p.sorted = make([]int, len(ranked))
	for i, r := range ranked {
		p.sorted[i] = r.Item
	}

	p.markTrained()
	return p
}
