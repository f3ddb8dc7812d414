// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package algorithms

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/tessellon/affinity/internal/recommend/dataset"
)

// ratingMatrix builds a sparse matrix from dense rows through the real
// preprocessing pipeline. Tests that depend on item indices matching
// column positions must keep row 0 fully dense.
func ratingMatrix(t *testing.T, rows [][]float64) *dataset.Matrix {
	t.Helper()

	var interactions []dataset.Interaction
	for u := range rows {
		for i, v := range rows[u] {
			if v == 0 {
				continue
			}
			interactions = append(interactions, dataset.Interaction{
				UserID: fmt.Sprintf("u%d", u),
				ItemID: fmt.Sprintf("i%d", i),
				Rating: v,
				Rated:  true,
			})
		}
	}
	p, err := dataset.Preprocess(interactions, 1)
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	return dataset.BuildMatrix(p)
}

func TestNewSVDDefaults(t *testing.T) {
	s := NewSVD(SVDConfig{})
	if s.config.Factors != 50 {
		t.Errorf("Factors = %d, want 50", s.config.Factors)
	}
	if got := DefaultSVDConfig().Factors; got != 50 {
		t.Errorf("DefaultSVDConfig().Factors = %d, want 50", got)
	}
}

func TestSVDTrainEmptyMatrix(t *testing.T) {
	s := NewSVD(DefaultSVDConfig())
	if err := s.Train(context.Background(), nil); err == nil {
		t.Error("Train(nil) error = nil, want error")
	}
	if s.IsTrained() {
		t.Error("IsTrained() = true after failed training")
	}
}

func TestSVDUntrained(t *testing.T) {
	s := NewSVD(DefaultSVDConfig())
	if got := s.Predict(0, 0); got != 0 {
		t.Errorf("Predict() = %v on untrained model, want 0", got)
	}
	if got := s.ScoreUser(0); got != nil {
		t.Errorf("ScoreUser() = %v on untrained model, want nil", got)
	}
}

func TestSVDFullRankPrediction(t *testing.T) {
	// With full rank the factorization reconstructs the matrix exactly,
	// so predictions are gm + bu + bi + rating. Here all biases are zero
	// and gm = 1.5.
	m := ratingMatrix(t, [][]float64{
		{1, 2},
		{2, 1},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if got := s.GlobalMean(); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("GlobalMean() = %v, want 1.5", got)
	}

	tests := []struct {
		user, item int
		want       float64
	}{
		{0, 0, 2.5},
		{0, 1, 3.5},
		{1, 0, 3.5},
		{1, 1, 2.5},
	}
	for _, tt := range tests {
		if got := s.Predict(tt.user, tt.item); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Predict(%d, %d) = %v, want %v", tt.user, tt.item, got, tt.want)
		}
	}
}

func TestSVDPredictRange(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{5, 3, 0, 1},
		{4, 0, 0, 1},
		{1, 1, 0, 5},
		{1, 0, 0, 4},
		{0, 1, 5, 4},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	for u := 0; u < m.Rows(); u++ {
		for i := 0; i < m.Cols(); i++ {
			got := s.Predict(u, i)
			if got < 0 || got > 5 {
				t.Errorf("Predict(%d, %d) = %v, want value in [0, 5]", u, i, got)
			}
		}
	}
}

func TestSVDPredictOutOfRange(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{1, 2},
		{2, 1},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	gm := s.GlobalMean()
	tests := []struct {
		name       string
		user, item int
	}{
		{"user_high", 99, 0},
		{"user_negative", -1, 0},
		{"item_high", 0, 99},
		{"item_negative", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Predict(tt.user, tt.item); got != gm {
				t.Errorf("Predict(%d, %d) = %v, want global mean %v", tt.user, tt.item, got, gm)
			}
		})
	}
}

func TestSVDFactorsCapped(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{1, 2},
		{2, 1},
	})
	s := NewSVD(SVDConfig{Factors: 50})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if got := s.Factors(); got != 2 {
		t.Errorf("Factors() = %d, want 2 (capped at min(users, items))", got)
	}
}

func TestSVDDeterministic(t *testing.T) {
	rows := [][]float64{
		{5, 3, 1, 2},
		{4, 1, 2, 1},
		{1, 5, 3, 4},
	}
	s1 := NewSVD(SVDConfig{Factors: 2})
	s2 := NewSVD(SVDConfig{Factors: 2})
	if err := s1.Train(context.Background(), ratingMatrix(t, rows)); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := s2.Train(context.Background(), ratingMatrix(t, rows)); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	for u := 0; u < 3; u++ {
		for i := 0; i < 4; i++ {
			if p1, p2 := s1.Predict(u, i), s2.Predict(u, i); p1 != p2 {
				t.Errorf("Predict(%d, %d) differs between identical trainings: %v vs %v", u, i, p1, p2)
			}
		}
	}
}

func TestSVDScoreUser(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{5, 3, 1},
		{4, 1, 2},
		{1, 5, 3},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	scores := s.ScoreUser(1)
	if len(scores) != 3 {
		t.Fatalf("len(ScoreUser(1)) = %d, want 3", len(scores))
	}
	for i, score := range scores {
		if want := s.Predict(1, i); score != want {
			t.Errorf("ScoreUser(1)[%d] = %v, want Predict value %v", i, score, want)
		}
	}

	if got := s.ScoreUser(99); got != nil {
		t.Errorf("ScoreUser(99) = %v, want nil", got)
	}
}

func TestSVDRecommend(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{5, 3, 1},
		{4, 1, 2},
		{1, 5, 3},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	exclude := map[int]struct{}{0: {}}
	got := s.Recommend(0, 10, exclude)
	if len(got) != 2 {
		t.Fatalf("len(Recommend(0, 10, {0})) = %d, want 2", len(got))
	}
	for _, r := range got {
		if r.Item == 0 {
			t.Error("Recommend() returned an excluded item")
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Errorf("Recommend() not sorted descending at %d: %v < %v", i, got[i-1].Score, got[i].Score)
		}
	}
	for _, r := range got {
		if want := s.Predict(0, r.Item); r.Score != want {
			t.Errorf("Recommend() score for item %d = %v, want Predict value %v", r.Item, r.Score, want)
		}
	}

	if got := s.Recommend(99, 5, nil); got != nil {
		t.Errorf("Recommend(99, 5, nil) = %v, want nil for out-of-range user", got)
	}
	if got := s.Recommend(0, 1, nil); len(got) != 1 {
		t.Errorf("len(Recommend(0, 1, nil)) = %d, want 1", len(got))
	}
}

func TestSVDParamsRoundTrip(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{5, 3, 1},
		{4, 1, 2},
		{1, 5, 3},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	restored := NewSVDFromParams(SVDConfig{Factors: 2}, s.Params())
	if !restored.IsTrained() {
		t.Fatal("restored model IsTrained() = false, want true")
	}
	for u := 0; u < 3; u++ {
		for i := 0; i < 3; i++ {
			if got, want := restored.Predict(u, i), s.Predict(u, i); got != want {
				t.Errorf("restored Predict(%d, %d) = %v, want %v", u, i, got, want)
			}
		}
	}
}

func TestSVDParamsCopy(t *testing.T) {
	m := ratingMatrix(t, [][]float64{
		{1, 2},
		{2, 1},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(context.Background(), m); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	before := s.Predict(0, 0)
	params := s.Params()
	params.UserFactors[0][0] = 1e9
	params.UserBias[0] = 1e9
	if got := s.Predict(0, 0); got != before {
		t.Errorf("Predict(0, 0) = %v after mutating Params copy, want %v", got, before)
	}
}

func TestSVDTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := ratingMatrix(t, [][]float64{
		{1, 2},
		{2, 1},
	})
	s := NewSVD(SVDConfig{Factors: 2})
	if err := s.Train(ctx, m); err == nil {
		t.Error("Train() error = nil with cancelled context, want error")
	}
	if s.IsTrained() {
		t.Error("IsTrained() = true after cancelled training")
	}
}
