// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package algorithms implements the models behind the hybrid engine.
//
// Each model trains on the encoded output of the dataset package and is
// safe for concurrent use: training acquires an exclusive lock while
// scoring uses a shared lock.
//
// # Models
//
//   - SVD: bias-corrected truncated singular value decomposition of the
//     user x item rating matrix
//   - TFIDF: content similarity over item metadata documents
//   - Popularity: interaction-count baseline for cold-start fallback
package algorithms

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Algorithm is the metadata surface shared by all models.
type Algorithm interface {
	Name() string
	IsTrained() bool
	Version() int
	LastTrainedAt() time.Time
}

// BaseAlgorithm provides common state for all models.
type BaseAlgorithm struct {
	name          string
	trained       bool
	version       int
	lastTrainedAt time.Time
	mu            sync.RWMutex
}

// NewBaseAlgorithm creates a new base with the given name.
func NewBaseAlgorithm(name string) BaseAlgorithm {
	return BaseAlgorithm{
		name: name,
	}
}

// Name returns the model identifier.
func (b *BaseAlgorithm) Name() string {
	return b.name
}

// IsTrained returns whether the model has been trained.
func (b *BaseAlgorithm) IsTrained() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.trained
}

// Version returns the model version.
func (b *BaseAlgorithm) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// LastTrainedAt returns when the model was last trained.
func (b *BaseAlgorithm) LastTrainedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTrainedAt
}

// markTrained updates the trained state.
// Must be called while holding the training lock (acquireTrainLock).
func (b *BaseAlgorithm) markTrained() {
	b.trained = true
	b.version++
	b.lastTrainedAt = time.Now()
}

// acquireTrainLock acquires the exclusive training lock.
func (b *BaseAlgorithm) acquireTrainLock() {
	b.mu.Lock()
}

// releaseTrainLock releases the exclusive training lock.
func (b *BaseAlgorithm) releaseTrainLock() {
	b.mu.Unlock()
}

// acquirePredictLock acquires the shared prediction lock.
func (b *BaseAlgorithm) acquirePredictLock() {
	b.mu.RLock()
}

// releasePredictLock releases the shared prediction lock.
func (b *BaseAlgorithm) releasePredictLock() {
	b.mu.RUnlock()
}

// ItemScore pairs a dense item index with a model score.
type ItemScore struct {
	Item  int
	Score float64
}

// sortItemScores orders scores descending; equal scores order by
// ascending item index so rankings are deterministic.
func sortItemScores(scores []ItemScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Item < scores[j].Item
	})
}

// topK truncates a sorted score slice to at most k entries.
func topK(scores []ItemScore, k int) []ItemScore {
	if k < 0 {
		k = 0
	}
	if len(scores) > k {
		scores = scores[:k]
	}
	return scores
}

// ContextCancelled checks if the context has been canceled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Ensure all models implement the interface.
var (
	_ Algorithm = (*SVD)(nil)
	_ Algorithm = (*TFIDF)(nil)
	_ Algorithm = (*Popularity)(nil)
)
