// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package algorithms

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tessellon/affinity/internal/recommend/dataset"
)

// Rating bounds for predictions.
const (
	minRating = 0.0
	maxRating = 5.0
)

// SVDConfig contains configuration for the SVD model.
type SVDConfig struct {
	// Factors is the number of latent components to retain. Capped at
	// min(users, items) during training. Typical range: 20-200.
	Factors int
}

// DefaultSVDConfig returns default SVD configuration.
func DefaultSVDConfig() SVDConfig {
	return SVDConfig{
		Factors: 50,
	}
}

// SVD implements bias-corrected truncated singular value decomposition
// of the user x item rating matrix.
//
// The raw matrix is factorized directly (not mean-centered residuals).
// The thin SVD A = U * S * V' is truncated to the leading k components:
//
//	userFactors = U_k * S_k    (users x k)
//	itemFactors = V_k          (items x k)
//
// Predictions add the bias terms back on top of the reconstruction:
//
//	predict(u, i) = clamp(gm + bu[u] + bi[i] + userFactors[u] . itemFactors[i], 0, 5)
//
// where gm is the mean of nonzero cells, bu[u] is the user's nonzero-cell
// mean minus gm and bi[i] the item's. A stored rating of zero is
// indistinguishable from an absent cell and is excluded from the means.
// The factorization is exact, so identical inputs yield identical models.
type SVD struct {
	BaseAlgorithm
	config SVDConfig

	// userFactors is U_k scaled by the singular values (numUsers x k).
	userFactors [][]float64

	// itemFactors is V_k (numItems x k).
	itemFactors [][]float64

	userBias   []float64
	itemBias   []float64
	globalMean float64
}

// NewSVD creates a new SVD model with the given configuration.
func NewSVD(cfg SVDConfig) *SVD {
	if cfg.Factors <= 0 {
		cfg.Factors = 50
	}
	return &SVD{
		BaseAlgorithm: NewBaseAlgorithm("svd"),
		config:        cfg,
	}
}

// Train factorizes the rating matrix.
func (s *SVD) Train(ctx context.Context, m *dataset.Matrix) error {
	s.acquireTrainLock()
	defer s.releaseTrainLock()

	if ContextCancelled(ctx) {
		return ctx.Err()
	}
	if m == nil || m.Rows() == 0 || m.Cols() == 0 {
		return fmt.Errorf("svd: empty rating matrix")
	}

	numUsers := m.Rows()
	numItems := m.Cols()

	// Bias terms from nonzero cells.
	var globalSum float64
	var globalCount int
	userSum := make([]float64, numUsers)
	userCount := make([]int, numUsers)
	itemSum := make([]float64, numItems)
	itemCount := make([]int, numItems)

	for u := 0; u < numUsers; u++ {
		cols, vals := m.Row(u)
		for k, c := range cols {
			v := vals[k]
			if v == 0 {
				continue
			}
			globalSum += v
			globalCount++
			userSum[u] += v
			userCount[u]++
			itemSum[c] += v
			itemCount[c]++
		}
	}
	if globalCount == 0 {
		return fmt.Errorf("svd: rating matrix has no nonzero cells")
	}

	globalMean := globalSum / float64(globalCount)
	userBias := make([]float64, numUsers)
	for u := 0; u < numUsers; u++ {
		if userCount[u] > 0 {
			userBias[u] = userSum[u]/float64(userCount[u]) - globalMean
		}
	}
	itemBias := make([]float64, numItems)
	for i := 0; i < numItems; i++ {
		if itemCount[i] > 0 {
			itemBias[i] = itemSum[i]/float64(itemCount[i]) - globalMean
		}
	}

	if ContextCancelled(ctx) {
		return ctx.Err()
	}

	// Densify and factorize the raw matrix.
	dense := mat.NewDense(numUsers, numItems, nil)
	for u := 0; u < numUsers; u++ {
		cols, vals := m.Row(u)
		for k, c := range cols {
			dense.Set(u, c, vals[k])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(dense, mat.SVDThin); !ok {
		return fmt.Errorf("svd: factorization did not converge")
	}

	if ContextCancelled(ctx) {
		return ctx.Err()
	}

	values := svd.Values(nil)
	k := s.config.Factors
	if k > len(values) {
		k = len(values)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	userFactors := make([][]float64, numUsers)
	for r := 0; r < numUsers; r++ {
		userFactors[r] = make([]float64, k)
		for f := 0; f < k; f++ {
			userFactors[r][f] = u.At(r, f) * values[f]
		}
	}
	itemFactors := make([][]float64, numItems)
	for r := 0; r < numItems; r++ {
		itemFactors[r] = make([]float64, k)
		for f := 0; f < k; f++ {
			itemFactors[r][f] = v.At(r, f)
		}
	}

	s.userFactors = userFactors
	s.itemFactors = itemFactors
	s.userBias = userBias
	s.itemBias = itemBias
	s.globalMean = globalMean

	s.markTrained()
	return nil
}

// Predict returns the predicted rating for a user and item index. Indices
// outside the trained matrix fall back to the global mean.
func (s *SVD) Predict(user, item int) float64 {
	s.acquirePredictLock()
	defer s.releasePredictLock()
	return s.predictLocked(user, item)
}

func (s *SVD) predictLocked(user, item int) float64 {
	if !s.trained {
		return 0
	}
	if user < 0 || user >= len(s.userFactors) || item < 0 || item >= len(s.itemFactors) {
		return s.globalMean
	}

	pred := s.globalMean + s.userBias[user] + s.itemBias[item]
	uf := s.userFactors[user]
	vf := s.itemFactors[item]
	for f := range uf {
		pred += uf[f] * vf[f]
	}

	if pred < minRating {
		pred = minRating
	}
	if pred > maxRating {
		pred = maxRating
	}
	return pred
}

// ScoreUser returns predicted ratings for every item for one user, indexed
// by item. Returns nil for an untrained model or out-of-range user.
func (s *SVD) ScoreUser(user int) []float64 {
	s.acquirePredictLock()
	defer s.releasePredictLock()

	if !s.trained || user < 0 || user >= len(s.userFactors) {
		return nil
	}

	scores := make([]float64, len(s.itemFactors))
	for i := range s.itemFactors {
		scores[i] = s.predictLocked(user, i)
	}
	return scores
}

// Recommend returns the top-n items for a user by predicted rating,
// skipping items in exclude. Equal scores order by ascending item index.
// An out-of-range user returns nil.
func (s *SVD) Recommend(user, n int, exclude map[int]struct{}) []ItemScore {
	s.acquirePredictLock()
	defer s.releasePredictLock()

	if !s.trained || user < 0 || user >= len(s.userFactors) || n <= 0 {
		return nil
	}

	scores := make([]ItemScore, 0, len(s.itemFactors))
	for i := range s.itemFactors {
		if _, skip := exclude[i]; skip {
			continue
		}
		scores = append(scores, ItemScore{Item: i, Score: s.predictLocked(user, i)})
	}
	sortItemScores(scores)
	return topK(scores, n)
}

// GlobalMean returns the mean of nonzero training cells.
func (s *SVD) GlobalMean() float64 {
	s.acquirePredictLock()
	defer s.releasePredictLock()
	return s.globalMean
}

// Factors returns the number of retained components.
func (s *SVD) Factors() int {
	s.acquirePredictLock()
	defer s.releasePredictLock()
	if len(s.userFactors) == 0 {
		return 0
	}
	return len(s.userFactors[0])
}

// SVDParams is the serializable state of a trained SVD model.
type SVDParams struct {
	UserFactors [][]float64
	ItemFactors [][]float64
	UserBias    []float64
	ItemBias    []float64
	GlobalMean  float64
}

// Params returns a deep copy of the trained model state.
func (s *SVD) Params() SVDParams {
	s.acquirePredictLock()
	defer s.releasePredictLock()

	return SVDParams{
		UserFactors: copyMatrix(s.userFactors),
		ItemFactors: copyMatrix(s.itemFactors),
		UserBias:    copyVector(s.userBias),
		ItemBias:    copyVector(s.itemBias),
		GlobalMean:  s.globalMean,
	}
}

// NewSVDFromParams reconstructs a trained SVD model from saved state.
func NewSVDFromParams(cfg SVDConfig, p SVDParams) *SVD {
	s := NewSVD(cfg)
	s.acquireTrainLock()
	defer s.releaseTrainLock()

	s.userFactors = copyMatrix(p.UserFactors)
	s.itemFactors = copyMatrix(p.ItemFactors)
	s.userBias = copyVector(p.UserBias)
	s.itemBias = copyVector(p.ItemBias)
	s.globalMean = p.GlobalMean

	s.markTrained()
	return s
}

func copyMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = make([]float64, len(m[i]))
		copy(out[i], m[i])
	}
	return out
}

func copyVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
