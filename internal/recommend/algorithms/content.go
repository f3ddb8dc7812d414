// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package algorithms

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// TFIDFConfig contains configuration for the content similarity model.
type TFIDFConfig struct {
	// MaxFeatures bounds the vocabulary size. When the corpus has more
	// distinct terms, the most frequent ones are kept. Typical range:
	// 1000-10000.
	MaxFeatures int
}

// DefaultTFIDFConfig returns default content model configuration.
func DefaultTFIDFConfig() TFIDFConfig {
	return TFIDFConfig{
		MaxFeatures: 5000,
	}
}

// TFIDF implements content-based item similarity over metadata documents.
//
// Each item's metadata fields are concatenated into one document by the
// caller. Documents are case-folded and tokenized into terms of two or
// more word characters, stopwords are removed, and the vocabulary is
// bounded to the most frequent MaxFeatures terms. Term weights use
// smoothed inverse document frequency:
//
//	idf(t) = ln((1 + n) / (1 + df(t))) + 1
//
// Each item vector is L2-normalized, so pairwise cosine similarity
// reduces to a dot product. The full item x item similarity matrix is
// precomputed at training time; this is O(n_items^2 * terms) and assumes
// a bounded catalog.
type TFIDF struct {
	BaseAlgorithm
	config TFIDFConfig

	// vocab holds the retained terms in index order (alphabetical).
	vocab      []string
	vocabIndex map[string]int

	// idf is the smoothed inverse document frequency per term.
	idf []float64

	// rowTerms and rowWeights are the L2-normalized sparse item vectors,
	// term indices ascending within each row.
	rowTerms   [][]int
	rowWeights [][]float64

	// sims is the dense symmetric item x item cosine similarity matrix.
	sims [][]float64
}

// NewTFIDF creates a new content similarity model.
func NewTFIDF(cfg TFIDFConfig) *TFIDF {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = 5000
	}
	return &TFIDF{
		BaseAlgorithm: NewBaseAlgorithm("tfidf"),
		config:        cfg,
		vocabIndex:    make(map[string]int),
	}
}

// Train vectorizes the documents and precomputes pairwise similarities.
// docs[i] is the metadata document for item index i; an empty document
// yields a zero vector with zero similarity to every item.
func (t *TFIDF) Train(ctx context.Context, docs []string) error {
	t.acquireTrainLock()
	defer t.releaseTrainLock()

	if ContextCancelled(ctx) {
		return ctx.Err()
	}
	if len(docs) == 0 {
		return fmt.Errorf("tfidf: no documents to vectorize")
	}

	tokenized := make([][]string, len(docs))
	for i, doc := range docs {
		tokenized[i] = tokenize(doc)
	}

	// Corpus term counts and document frequencies.
	termCounts := make(map[string]int)
	docFreq := make(map[string]int)
	for _, tokens := range tokenized {
		inDoc := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			termCounts[tok]++
			inDoc[tok] = struct{}{}
		}
		for tok := range inDoc {
			docFreq[tok]++
		}
	}

	if ContextCancelled(ctx) {
		return ctx.Err()
	}

	vocab := selectVocabulary(termCounts, t.config.MaxFeatures)
	vocabIndex := make(map[string]int, len(vocab))
	for i, term := range vocab {
		vocabIndex[term] = i
	}

	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for i, term := range vocab {
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	// Sparse L2-normalized item vectors.
	rowTerms := make([][]int, len(docs))
	rowWeights := make([][]float64, len(docs))
	for i, tokens := range tokenized {
		tf := make(map[int]float64)
		for _, tok := range tokens {
			if idx, ok := vocabIndex[tok]; ok {
				tf[idx]++
			}
		}
		if len(tf) == 0 {
			continue
		}

		terms := make([]int, 0, len(tf))
		for idx := range tf {
			terms = append(terms, idx)
		}
		sort.Ints(terms)

		weights := make([]float64, len(terms))
		var norm float64
		for k, idx := range terms {
			w := tf[idx] * idf[idx]
			weights[k] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range weights {
				weights[k] /= norm
			}
		}
		rowTerms[i] = terms
		rowWeights[i] = weights
	}

	if ContextCancelled(ctx) {
		return ctx.Err()
	}

	// Dense pairwise cosine matrix. Vectors are unit length so cosine is
	// the sparse dot product.
	sims := make([][]float64, len(docs))
	for i := range sims {
		sims[i] = make([]float64, len(docs))
	}
	for i := 0; i < len(docs); i++ {
		if ContextCancelled(ctx) {
			return ctx.Err()
		}
		sims[i][i] = sparseDot(rowTerms[i], rowWeights[i], rowTerms[i], rowWeights[i])
		for j := i + 1; j < len(docs); j++ {
			s := sparseDot(rowTerms[i], rowWeights[i], rowTerms[j], rowWeights[j])
			sims[i][j] = s
			sims[j][i] = s
		}
	}

	t.vocab = vocab
	t.vocabIndex = vocabIndex
	t.idf = idf
	t.rowTerms = rowTerms
	t.rowWeights = rowWeights
	t.sims = sims

	t.markTrained()
	return nil
}

// SimilarItems returns the top-n items most similar to the given item,
// excluding the item itself, ordered by descending similarity with ties
// on ascending item index. Out-of-range indices return nil.
func (t *TFIDF) SimilarItems(item, n int) []ItemScore {
	t.acquirePredictLock()
	defer t.releasePredictLock()

	if !t.trained || item < 0 || item >= len(t.sims) || n <= 0 {
		return nil
	}

	row := t.sims[item]
	scores := make([]ItemScore, 0, len(row)-1)
	for j, s := range row {
		if j == item {
			continue
		}
		scores = append(scores, ItemScore{Item: j, Score: s})
	}
	sortItemScores(scores)
	return topK(scores, n)
}

// Similarity returns the cosine similarity between two item indices.
// Out-of-range indices return 0.
func (t *TFIDF) Similarity(a, b int) float64 {
	t.acquirePredictLock()
	defer t.releasePredictLock()

	if !t.trained || a < 0 || a >= len(t.sims) || b < 0 || b >= len(t.sims) {
		return 0
	}
	return t.sims[a][b]
}

// VocabSize returns the number of retained vocabulary terms.
func (t *TFIDF) VocabSize() int {
	t.acquirePredictLock()
	defer t.releasePredictLock()
	return len(t.vocab)
}

// NumDocs returns the number of vectorized documents.
func (t *TFIDF) NumDocs() int {
	t.acquirePredictLock()
	defer t.releasePredictLock()
	return len(t.sims)
}

// TFIDFParams is the serializable state of a trained content model.
type TFIDFParams struct {
	Vocabulary   []string
	IDF          []float64
	RowTerms     [][]int
	RowWeights   [][]float64
	Similarities [][]float64
}

// Params returns a deep copy of the trained model state.
func (t *TFIDF) Params() TFIDFParams {
	t.acquirePredictLock()
	defer t.releasePredictLock()

	vocab := make([]string, len(t.vocab))
	copy(vocab, t.vocab)

	terms := make([][]int, len(t.rowTerms))
	for i := range t.rowTerms {
		if t.rowTerms[i] == nil {
			continue
		}
		terms[i] = make([]int, len(t.rowTerms[i]))
		copy(terms[i], t.rowTerms[i])
	}

	return TFIDFParams{
		Vocabulary:   vocab,
		IDF:          copyVector(t.idf),
		RowTerms:     terms,
		RowWeights:   copyMatrix(t.rowWeights),
		Similarities: copyMatrix(t.sims),
	}
}

// NewTFIDFFromParams reconstructs a trained content model from saved state.
func NewTFIDFFromParams(cfg TFIDFConfig, p TFIDFParams) *TFIDF {
	t := NewTFIDF(cfg)
	t.acquireTrainLock()
	defer t.releaseTrainLock()

	t.vocab = make([]string, len(p.Vocabulary))
	copy(t.vocab, p.Vocabulary)
	t.vocabIndex = make(map[string]int, len(p.Vocabulary))
	for i, term := range p.Vocabulary {
		t.vocabIndex[term] = i
	}
	t.idf = copyVector(p.IDF)
	t.rowTerms = make([][]int, len(p.RowTerms))
	for i := range p.RowTerms {
		if p.RowTerms[i] == nil {
			continue
		}
		t.rowTerms[i] = make([]int, len(p.RowTerms[i]))
		copy(t.rowTerms[i], p.RowTerms[i])
	}
	t.rowWeights = copyMatrix(p.RowWeights)
	t.sims = copyMatrix(p.Similarities)

	t.markTrained()
	return t
}

// tokenize lowercases a document and extracts terms of two or more word
// characters, dropping stopwords.
func tokenize(doc string) []string {
	doc = strings.ToLower(doc)

	var tokens []string
	var cur strings.Builder
	runes := 0
	flush := func() {
		if runes >= 2 {
			tok := cur.String()
			if _, stop := stopwords[tok]; !stop {
				tokens = append(tokens, tok)
			}
		}
		cur.Reset()
		runes = 0
	}

	for _, r := range doc {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur.WriteRune(r)
			runes++
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// selectVocabulary keeps the top maxFeatures terms by corpus frequency,
// ties broken alphabetically, and returns them in alphabetical order so
// term indices are stable across runs.
func selectVocabulary(termCounts map[string]int, maxFeatures int) []string {
	type termCount struct {
		term  string
		count int
	}
	counts := make([]termCount, 0, len(termCounts))
	for term, count := range termCounts {
		counts = append(counts, termCount{term, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].term < counts[j].term
	})
	if len(counts) > maxFeatures {
		counts = counts[:maxFeatures]
	}

	vocab := make([]string, len(counts))
	for i, tc := range counts {
		vocab[i] = tc.term
	}
	sort.Strings(vocab)
	return vocab
}

// sparseDot computes the dot product of two sparse vectors whose term
// indices are sorted ascending.
func sparseDot(aTerms []int, aWeights []float64, bTerms []int, bWeights []float64) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(aTerms) && j < len(bTerms) {
		switch {
		case aTerms[i] == bTerms[j]:
			dot += aWeights[i] * bWeights[j]
			i++
			j++
		case aTerms[i] < bTerms[j]:
			i++
		default:
			j++
		}
	}
	return dot
}
