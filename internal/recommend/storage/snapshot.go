// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package storage

import (
	"encoding/gob"
	"time"
)

// FormatVersion identifies the snapshot payload layout. It is bumped
// whenever the Snapshot struct changes incompatibly; Load rejects
// snapshots written with a newer format.
const FormatVersion = 1

// Metadata describes a stored snapshot without its payload. It is kept
// uncompressed in the file envelope so List can report on snapshots
// cheaply.
type Metadata struct {
	// FormatVersion is the payload layout version, see FormatVersion.
	FormatVersion int `json:"format_version"`

	// Version is the store-assigned snapshot number, starting at 1.
	Version int `json:"version"`

	// ModelVersion is the engine-assigned identifier of the trained model.
	ModelVersion string `json:"model_version"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`

	// TrainedAt is when the contained model finished training.
	TrainedAt time.Time `json:"trained_at"`

	// UserCount, ItemCount and InteractionCount describe the training set.
	UserCount        int `json:"user_count"`
	ItemCount        int `json:"item_count"`
	InteractionCount int `json:"interaction_count"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`

	// Checksum is the SHA-256 of the uncompressed payload, hex encoded.
	Checksum string `json:"checksum"`
}

// FactorState holds the matrix factorization parameters of a snapshot.
// Factor rows are indexed by user or item index, matching the order of
// Snapshot.Users and Snapshot.Items.
type FactorState struct {
	UserFactors [][]float64
	ItemFactors [][]float64
	UserBias    []float64
	ItemBias    []float64
	GlobalMean  float64
}

// ContentState holds the fitted content vectorizer of a snapshot.
// RowTerms and RowWeights are the sparse item vectors over Vocabulary;
// Similarities is the dense item by item cosine matrix.
type ContentState struct {
	Vocabulary   []string
	IDF          []float64
	RowTerms     [][]int
	RowWeights   [][]float64
	Similarities [][]float64
}

// Snapshot is the complete serialized state of a trained engine. All
// fields are written and restored together.
type Snapshot struct {
	// FormatVersion records the layout this snapshot was written with.
	FormatVersion int

	// ModelVersion is the engine-assigned identifier of the trained model.
	ModelVersion string

	// TrainedAt is when the contained model finished training.
	TrainedAt time.Time

	// Users and Items are the identity maps in index order: Users[i] is
	// the external identifier of internal user index i.
	Users []string
	Items []string

	// Seen lists, per user index, the item indices that user interacted
	// with during training, in encounter order.
	Seen [][]int

	// Implicit records whether the training set carried no explicit
	// ratings.
	Implicit bool

	// Interactions is the number of encoded interactions after
	// preprocessing.
	Interactions int

	// Factors is the factorization state.
	Factors FactorState

	// Content is the content vectorizer state.
	Content ContentState

	// Popularity holds per-item popularity scores indexed by item index.
	Popularity []float64
}

func init() {
	gob.Register(Snapshot{})
	gob.Register(FactorState{})
	gob.Register(ContentState{})
}
