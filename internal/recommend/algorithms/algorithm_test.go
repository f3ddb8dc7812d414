// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package algorithms

import (
	"context"
	"testing"
)

func TestSortItemScores(t *testing.T) {
	scores := []ItemScore{
		{Item: 4, Score: 1.0},
		{Item: 2, Score: 3.0},
		{Item: 1, Score: 1.0},
		{Item: 0, Score: 3.0},
	}
	sortItemScores(scores)

	want := []ItemScore{
		{Item: 0, Score: 3.0},
		{Item: 2, Score: 3.0},
		{Item: 1, Score: 1.0},
		{Item: 4, Score: 1.0},
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("sorted[%d] = %+v, want %+v", i, scores[i], want[i])
		}
	}
}

func TestTopK(t *testing.T) {
	scores := []ItemScore{{Item: 0, Score: 3}, {Item: 1, Score: 2}, {Item: 2, Score: 1}}

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"truncates", 2, 2},
		{"larger_than_input", 10, 3},
		{"zero", 0, 0},
		{"negative", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := topK(scores, tt.k); len(got) != tt.want {
				t.Errorf("len(topK(scores, %d)) = %d, want %d", tt.k, len(got), tt.want)
			}
		})
	}
}

func TestBaseAlgorithmMetadata(t *testing.T) {
	p := NewPopularity()
	if got := p.Name(); got != "popularity" {
		t.Errorf("Name() = %q, want %q", got, "popularity")
	}
	if p.Version() != 0 {
		t.Errorf("Version() = %d before training, want 0", p.Version())
	}
	if !p.LastTrainedAt().IsZero() {
		t.Error("LastTrainedAt() nonzero before training")
	}

	if err := p.Train(context.Background(), []float64{1, 2}); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if !p.IsTrained() {
		t.Error("IsTrained() = false after training")
	}
	if p.Version() != 1 {
		t.Errorf("Version() = %d after training, want 1", p.Version())
	}
	if p.LastTrainedAt().IsZero() {
		t.Error("LastTrainedAt() zero after training")
	}

	if err := p.Train(context.Background(), []float64{1, 2}); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if p.Version() != 2 {
		t.Errorf("Version() = %d after retraining, want 2", p.Version())
	}
}

func TestContextCancelled(t *testing.T) {
	if ContextCancelled(context.Background()) {
		t.Error("ContextCancelled() = true for background context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !ContextCancelled(ctx) {
		t.Error("ContextCancelled() = false for cancelled context")
	}
}
