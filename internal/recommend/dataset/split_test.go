// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package dataset

import (
	"fmt"
	"testing"
)

func TestSplitSizes(t *testing.T) {
	var interactions []Interaction
	for i := 0; i < 100; i++ {
		interactions = append(interactions, implicitIn(fmt.Sprintf("u%d", i), fmt.Sprintf("i%d", i)))
	}

	tests := []struct {
		name      string
		fraction  float64
		wantTrain int
		wantTest  int
	}{
		{"fifth", 0.2, 80, 20},
		{"none", 0.0, 100, 0},
		{"all", 1.0, 0, 100},
		{"below_zero", -0.5, 100, 0},
		{"above_one", 1.5, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test := Split(interactions, tt.fraction, 42)
			if len(train) != tt.wantTrain {
				t.Errorf("len(train) = %d, want %d", len(train), tt.wantTrain)
			}
			if len(test) != tt.wantTest {
				t.Errorf("len(test) = %d, want %d", len(test), tt.wantTest)
			}
		})
	}
}

func TestSplitDeterministic(t *testing.T) {
	var interactions []Interaction
	for i := 0; i < 50; i++ {
		interactions = append(interactions, implicitIn(fmt.Sprintf("u%d", i%10), fmt.Sprintf("i%d", i)))
	}

	train1, test1 := Split(interactions, 0.2, 42)
	train2, test2 := Split(interactions, 0.2, 42)

	for i := range train1 {
		if train1[i] != train2[i] {
			t.Fatalf("train[%d] differs between runs with the same seed", i)
		}
	}
	for i := range test1 {
		if test1[i] != test2[i] {
			t.Fatalf("test[%d] differs between runs with the same seed", i)
		}
	}
}

func TestSplitPreservesRows(t *testing.T) {
	var interactions []Interaction
	for i := 0; i < 30; i++ {
		interactions = append(interactions, implicitIn(fmt.Sprintf("u%d", i), "item"))
	}

	train, test := Split(interactions, 0.3, 7)

	counts := make(map[string]int)
	for _, in := range interactions {
		counts[in.UserID]++
	}
	for _, in := range train {
		counts[in.UserID]--
	}
	for _, in := range test {
		counts[in.UserID]--
	}
	for id, c := range counts {
		if c != 0 {
			t.Errorf("row %q count imbalance %d after split", id, c)
		}
	}
}

func TestSplitDoesNotMutateInput(t *testing.T) {
	interactions := []Interaction{
		implicitIn("a", "1"),
		implicitIn("b", "2"),
		implicitIn("c", "3"),
		implicitIn("d", "4"),
	}
	Split(interactions, 0.5, 99)
	want := []string{"a", "b", "c", "d"}
	for i, in := range interactions {
		if in.UserID != want[i] {
			t.Errorf("input[%d].UserID = %q, want %q (input must stay ordered)", i, in.UserID, want[i])
		}
	}
}
