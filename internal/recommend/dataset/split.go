// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package dataset

import "math/rand"

// Split shuffles interactions with the given seed and partitions them into
// train and test sets. testFraction is clamped to [0, 1]; the test set
// receives floor(n * testFraction) rows. The input slice is not modified
// and the same seed always yields the same partition.
func Split(interactions []Interaction, testFraction float64, seed int64) (train, test []Interaction) {
	if testFraction < 0 {
		testFraction = 0
	}
	if testFraction > 1 {
		testFraction = 1
	}

	n := len(interactions)
	shuffled := make([]Interaction, n)
	copy(shuffled, interactions)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	testN := int(float64(n) * testFraction)
	return shuffled[:n-testN], shuffled[n-testN:]
}
