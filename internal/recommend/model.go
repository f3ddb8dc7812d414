// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tessellon/affinity/internal/recommend/algorithms"
	"github.com/tessellon/affinity/internal/recommend/dataset"
	"github.com/tessellon/affinity/internal/recommend/reranking"
	"github.com/tessellon/affinity/internal/recommend/storage"
)

// model is one immutable trained generation. The engine publishes a new
// model atomically after each successful training run; readers never
// observe partially trained state.
type model struct {
	version      string
	trainedAt    time.Time
	users        *dataset.IndexMap
	items        *dataset.IndexMap
	seen         [][]int
	implicit     bool
	interactions int

	svd        *algorithms.SVD
	content    *algorithms.TFIDF
	popularity *algorithms.Popularity
}

// buildModel runs the full training pipeline: preprocessing, matrix
// factorization, content vectorization and popularity scoring. Failures
// are wrapped in a TrainingError naming the stage.
func buildModel(ctx context.Context, cfg *Config, interactions []dataset.Interaction, items []dataset.Item) (*model, error) {
	prep, err := dataset.Preprocess(interactions, cfg.Model.MinInteractions)
	if err != nil {
		return nil, &TrainingError{Stage: "preprocess", Err: err}
	}

	matrix := dataset.BuildMatrix(prep)

	svd := algorithms.NewSVD(algorithms.SVDConfig{Factors: cfg.Model.Factors})
	if err := svd.Train(ctx, matrix); err != nil {
		return nil, &TrainingError{Stage: "svd", Err: err}
	}

	content := algorithms.NewTFIDF(algorithms.TFIDFConfig{MaxFeatures: cfg.Model.MaxFeatures})
	if err := content.Train(ctx, buildDocuments(prep, items, cfg.Model.FeatureColumns)); err != nil {
		return nil, &TrainingError{Stage: "content", Err: err}
	}

	popularity := algorithms.NewPopularity()
	if err := popularity.Train(ctx, matrix.ColumnSums()); err != nil {
		return nil, &TrainingError{Stage: "popularity", Err: err}
	}

	return &model{
		version:      uuid.NewString(),
		trainedAt:    time.Now().UTC(),
		users:        prep.Users,
		items:        prep.Items,
		seen:         prep.Seen,
		implicit:     prep.Implicit,
		interactions: len(prep.Interactions),
		svd:          svd,
		content:      content,
		popularity:   popularity,
	}, nil
}

// buildDocuments assembles one feature document per item index by
// concatenating the configured catalog columns in order. Items missing
// from the catalog get an empty document, so they vectorize to zero and
// never surface from similarity queries.
func buildDocuments(prep *dataset.Prepared, items []dataset.Item, columns []string) []string {
	byID := make(map[string]dataset.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	docs := make([]string, prep.Items.Len())
	parts := make([]string, 0, len(columns))
	for idx := range docs {
		id, _ := prep.Items.ID(idx)
		it, ok := byID[id]
		if !ok {
			continue
		}
		parts = parts[:0]
		for _, col := range columns {
			if v := it.Fields[col]; v != "" {
				parts = append(parts, v)
			}
		}
		docs[idx] = strings.Join(parts, " ")
	}
	return docs
}

// recommend produces the top k recommendations for an external user ID.
// Known users get fused CF and content scores over unseen items; unknown
// users fall back to global popularity.
func (m *model) recommend(userID string, k int, ranking RankingConfig, weights FusionWeights) []Recommendation {
	user, known := m.users.Index(userID)
	if !known {
		return m.popularFor(k)
	}
	return m.hybridFor(user, k, ranking, weights)
}

// fusedCandidate carries one item's per-model contributions through
// ranking.
type fusedCandidate struct {
	item  int
	cf    float64
	cb    float64
	score float64
}

// hybridFor fuses the two candidate pools for one known user.
//
// The CF pool is the factorization's top unseen items, overfetched past k
// so content-only candidates can still displace them. The CB pool sums
// similarity contributions from the user's most recent seed items; seen
// items are dropped from each seed's neighbor list after retrieval and
// the list is not refilled. Candidates missing from a pool score zero on
// that side.
//
// With MMRLambda in (0, 1), the sorted pool is re-ranked with maximal
// marginal relevance over content similarity before truncation, so a
// diverse lower scorer can displace a near-duplicate of an already
// selected item.
func (m *model) hybridFor(user, k int, ranking RankingConfig, weights FusionWeights) []Recommendation {
	exclude := m.seenSet(user)

	cfScores := make(map[int]float64)
	for _, s := range m.svd.Recommend(user, ranking.CFOverfetch*k, exclude) {
		cfScores[s.Item] = s.Score
	}

	cbScores := make(map[int]float64)
	seeds := m.seen[user]
	if len(seeds) > ranking.CBSeedItems {
		seeds = seeds[len(seeds)-ranking.CBSeedItems:]
	}
	for _, seed := range seeds {
		for _, s := range m.content.SimilarItems(seed, ranking.CBSimilarPerSeed) {
			if _, hidden := exclude[s.Item]; hidden {
				continue
			}
			cbScores[s.Item] += s.Score
		}
	}

	candidates := make([]fusedCandidate, 0, len(cfScores)+len(cbScores))
	for item, cf := range cfScores {
		c := fusedCandidate{item: item, cf: cf}
		if cb, ok := cbScores[item]; ok {
			c.cb = cb
			delete(cbScores, item)
		}
		c.score = weights.CF*c.cf + weights.CB*c.cb
		candidates = append(candidates, c)
	}
	for item, cb := range cbScores {
		candidates = append(candidates, fusedCandidate{item: item, cb: cb, score: weights.CB * cb})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].item < candidates[j].item
	})

	if ranking.MMRLambda > 0 && ranking.MMRLambda < 1 {
		candidates = diversify(candidates, k, ranking.MMRLambda, m.content.Similarity)
	} else if len(candidates) > k {
		candidates = candidates[:k]
	}

	recs := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		id, ok := m.items.ID(c.item)
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{
			ItemID:  id,
			Score:   c.score,
			CFScore: c.cf,
			CBScore: c.cb,
			Method:  MethodHybrid,
		})
	}
	return recs
}

// diversify re-ranks the sorted candidate pool with maximal marginal
// relevance, then restores each selected item's score attribution.
func diversify(candidates []fusedCandidate, k int, lambda float64, sim reranking.SimilarityFunc) []fusedCandidate {
	pool := make([]reranking.Candidate, len(candidates))
	byItem := make(map[int]fusedCandidate, len(candidates))
	for i, c := range candidates {
		pool[i] = reranking.Candidate{Item: c.item, Score: c.score}
		byItem[c.item] = c
	}

	selected := reranking.NewMMR(lambda).Rerank(pool, k, sim)
	out := make([]fusedCandidate, 0, len(selected))
	for _, s := range selected {
		out = append(out, byItem[s.Item])
	}
	return out
}

// popularFor returns the top k items by global popularity. There are no
// exclusions on this path: the caller is a user the model never saw.
func (m *model) popularFor(k int) []Recommendation {
	top := m.popularity.Top(k, nil)
	recs := make([]Recommendation, 0, len(top))
	for _, s := range top {
		id, ok := m.items.ID(s.Item)
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{
			ItemID: id,
			Score:  s.Score,
			Method: MethodPopular,
		})
	}
	return recs
}

// similarTo returns the k catalog items most similar to itemID by
// content features. Unknown identifiers yield an empty result.
func (m *model) similarTo(itemID string, k int) []SimilarItem {
	item, known := m.items.Index(itemID)
	if !known {
		return []SimilarItem{}
	}

	sims := m.content.SimilarItems(item, k)
	out := make([]SimilarItem, 0, len(sims))
	for _, s := range sims {
		id, ok := m.items.ID(s.Item)
		if !ok {
			continue
		}
		out = append(out, SimilarItem{ItemID: id, Similarity: s.Score})
	}
	return out
}

// evaluate scores rating predictions against a holdout set. Rows whose
// user or item the model never saw are skipped; when nothing remains the
// infinite sentinel is returned with zero samples.
func (m *model) evaluate(test []dataset.Interaction) Evaluation {
	var sumSq, sumAbs float64
	samples := 0
	for _, in := range test {
		user, okUser := m.users.Index(in.UserID)
		item, okItem := m.items.Index(in.ItemID)
		if !okUser || !okItem {
			continue
		}

		actual := 1.0
		if in.Rated {
			actual = in.Rating
		}
		diff := m.svd.Predict(user, item) - actual
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		samples++
	}

	if samples == 0 {
		return Evaluation{RMSE: math.Inf(1), MAE: math.Inf(1)}
	}
	n := float64(samples)
	return Evaluation{
		RMSE:    math.Sqrt(sumSq / n),
		MAE:     sumAbs / n,
		Samples: samples,
	}
}

func (m *model) seenSet(user int) map[int]struct{} {
	if user < 0 || user >= len(m.seen) {
		return nil
	}
	set := make(map[int]struct{}, len(m.seen[user]))
	for _, item := range m.seen[user] {
		set[item] = struct{}{}
	}
	return set
}

// snapshot serializes the complete model state for persistence. All
// nested state is copied so the caller cannot alias the live model.
func (m *model) snapshot() *storage.Snapshot {
	svdParams := m.svd.Params()
	contentParams := m.content.Params()

	seen := make([][]int, len(m.seen))
	for i, items := range m.seen {
		seen[i] = make([]int, len(items))
		copy(seen[i], items)
	}

	return &storage.Snapshot{
		ModelVersion: m.version,
		TrainedAt:    m.trainedAt,
		Users:        m.users.IDs(),
		Items:        m.items.IDs(),
		Seen:         seen,
		Implicit:     m.implicit,
		Interactions: m.interactions,
		Factors: storage.FactorState{
			UserFactors: svdParams.UserFactors,
			ItemFactors: svdParams.ItemFactors,
			UserBias:    svdParams.UserBias,
			ItemBias:    svdParams.ItemBias,
			GlobalMean:  svdParams.GlobalMean,
		},
		Content: storage.ContentState{
			Vocabulary:   contentParams.Vocabulary,
			IDF:          contentParams.IDF,
			RowTerms:     contentParams.RowTerms,
			RowWeights:   contentParams.RowWeights,
			Similarities: contentParams.Similarities,
		},
		Popularity: m.popularity.Scores(),
	}
}

// modelFromSnapshot rebuilds a servable model from persisted state,
// validating that the pieces belong together before anything is
// published.
func modelFromSnapshot(snap *storage.Snapshot, cfg *Config) (*model, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot must not be nil")
	}
	if len(snap.Users) == 0 || len(snap.Items) == 0 {
		return nil, fmt.Errorf("snapshot has empty identity maps")
	}
	if len(snap.Seen) != len(snap.Users) {
		return nil, fmt.Errorf("snapshot seen lists do not match user count: %d != %d", len(snap.Seen), len(snap.Users))
	}
	if len(snap.Factors.UserFactors) != len(snap.Users) || len(snap.Factors.UserBias) != len(snap.Users) {
		return nil, fmt.Errorf("snapshot user factors do not match user count %d", len(snap.Users))
	}
	if len(snap.Factors.ItemFactors) != len(snap.Items) || len(snap.Factors.ItemBias) != len(snap.Items) {
		return nil, fmt.Errorf("snapshot item factors do not match item count %d", len(snap.Items))
	}
	if len(snap.Content.Similarities) != len(snap.Items) {
		return nil, fmt.Errorf("snapshot similarity matrix does not match item count %d", len(snap.Items))
	}
	if len(snap.Popularity) != len(snap.Items) {
		return nil, fmt.Errorf("snapshot popularity scores do not match item count %d", len(snap.Items))
	}

	version := snap.ModelVersion
	if version == "" {
		version = uuid.NewString()
	}

	svd := algorithms.NewSVDFromParams(
		algorithms.SVDConfig{Factors: cfg.Model.Factors},
		algorithms.SVDParams{
			UserFactors: snap.Factors.UserFactors,
			ItemFactors: snap.Factors.ItemFactors,
			UserBias:    snap.Factors.UserBias,
			ItemBias:    snap.Factors.ItemBias,
			GlobalMean:  snap.Factors.GlobalMean,
		},
	)
	content := algorithms.NewTFIDFFromParams(
		algorithms.TFIDFConfig{MaxFeatures: cfg.Model.MaxFeatures},
		algorithms.TFIDFParams{
			Vocabulary:   snap.Content.Vocabulary,
			IDF:          snap.Content.IDF,
			RowTerms:     snap.Content.RowTerms,
			RowWeights:   snap.Content.RowWeights,
			Similarities: snap.Content.Similarities,
		},
	)

	return &model{
		version:      version,
		trainedAt:    snap.TrainedAt,
		users:        dataset.NewIndexMap(snap.Users),
		items:        dataset.NewIndexMap(snap.Items),
		seen:         snap.Seen,
		implicit:     snap.Implicit,
		interactions: snap.Interactions,
		svd:          svd,
		content:      content,
		popularity:   algorithms.NewPopularityFromScores(snap.Popularity),
	}, nil
}
