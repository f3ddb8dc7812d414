// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package dataset

import (
	"fmt"
	"time"
)

// Interaction is one raw user/item event as loaded from a source.
// UserID and ItemID are opaque external identifiers. Rating carries an
// explicit feedback value only when Rated is true; implicit events leave
// Rated false and the pipeline substitutes a unit rating.
type Interaction struct {
	UserID    string
	ItemID    string
	Rating    float64
	Rated     bool
	Timestamp time.Time
}

// Item is one row of the item catalog. Fields holds the free-text metadata
// columns (name, description, category and so on) used to build content
// feature documents.
type Item struct {
	ID     string
	Fields map[string]string
}

// Encoded is an interaction after identifier encoding. Rating is the
// resolved value used in the training matrix: the explicit rating when one
// was present, otherwise 1.0.
type Encoded struct {
	User   int
	Item   int
	Rating float64
}

// IndexMap is a bidirectional mapping between external string identifiers
// and dense indices in [0, n). It is immutable after construction and safe
// for concurrent readers.
type IndexMap struct {
	toIndex map[string]int
	toID    []string
}

// NewIndexMap builds a map over ids in order, assigning index i to ids[i].
// Duplicate identifiers keep their first index.
func NewIndexMap(ids []string) *IndexMap {
	m := &IndexMap{
		toIndex: make(map[string]int, len(ids)),
		toID:    make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		m.add(id)
	}
	return m
}

func (m *IndexMap) add(id string) int {
	if idx, ok := m.toIndex[id]; ok {
		return idx
	}
	idx := len(m.toID)
	m.toIndex[id] = idx
	m.toID = append(m.toID, id)
	return idx
}

// Index returns the dense index for an external identifier. The second
// return reports whether the identifier is known.
func (m *IndexMap) Index(id string) (int, bool) {
	idx, ok := m.toIndex[id]
	return idx, ok
}

// ID returns the external identifier for a dense index. The second return
// reports whether the index is in range.
func (m *IndexMap) ID(idx int) (string, bool) {
	if idx < 0 || idx >= len(m.toID) {
		return "", false
	}
	return m.toID[idx], true
}

// Len returns the number of mapped identifiers.
func (m *IndexMap) Len() int {
	return len(m.toID)
}

// IDs returns the external identifiers in index order. The returned slice
// is a copy.
func (m *IndexMap) IDs() []string {
	out := make([]string, len(m.toID))
	copy(out, m.toID)
	return out
}

// Prepared is the output of Preprocess: encoded interactions plus the
// identity maps that anchor matrix coordinates back to external IDs.
type Prepared struct {
	// Interactions are the retained rows in first-occurrence order, with
	// user and item encoded through Users and Items.
	Interactions []Encoded

	// Users and Items map external identifiers to dense indices.
	Users *IndexMap
	Items *IndexMap

	// Seen lists, per user index, the item indices that user interacted
	// with, in encounter order. Used for recommendation exclusion and for
	// content-based seeding.
	Seen [][]int

	// Implicit reports that no retained interaction carried an explicit
	// rating, so every matrix cell is the unit value.
	Implicit bool
}

type userItem struct {
	user string
	item string
}

// Preprocess deduplicates, filters and encodes raw interactions.
//
// Duplicate (user, item) pairs keep the first occurrence. Per-user and
// per-item counts are taken over the deduplicated rows, and a row is
// retained only when both its user and its item have at least
// minInteractions interactions. The count and the filter happen in one
// joint pass; filtering is not iterated to a fixed point, so a user can
// end up below the threshold after low-count items are dropped.
//
// Indices are assigned in first-occurrence order over the retained rows,
// so both maps are contiguous and every index appears in at least one
// retained interaction.
func Preprocess(interactions []Interaction, minInteractions int) (*Prepared, error) {
	if len(interactions) == 0 {
		return nil, fmt.Errorf("no interactions to preprocess")
	}
	if minInteractions < 1 {
		minInteractions = 1
	}

	// Deduplicate keeping first occurrences in input order.
	seen := make(map[userItem]struct{}, len(interactions))
	deduped := make([]Interaction, 0, len(interactions))
	for _, in := range interactions {
		key := userItem{in.UserID, in.ItemID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, in)
	}

	userCounts := make(map[string]int, len(deduped))
	itemCounts := make(map[string]int, len(deduped))
	for _, in := range deduped {
		userCounts[in.UserID]++
		itemCounts[in.ItemID]++
	}

	users := &IndexMap{toIndex: make(map[string]int)}
	items := &IndexMap{toIndex: make(map[string]int)}
	encoded := make([]Encoded, 0, len(deduped))
	var seenByUser [][]int
	implicit := true

	for _, in := range deduped {
		if userCounts[in.UserID] < minInteractions || itemCounts[in.ItemID] < minInteractions {
			continue
		}
		u := users.add(in.UserID)
		i := items.add(in.ItemID)
		rating := 1.0
		if in.Rated {
			rating = in.Rating
			implicit = false
		}
		encoded = append(encoded, Encoded{User: u, Item: i, Rating: rating})
		if u == len(seenByUser) {
			seenByUser = append(seenByUser, nil)
		}
		seenByUser[u] = append(seenByUser[u], i)
	}

	if len(encoded) == 0 {
		return nil, fmt.Errorf("no interactions remain after filtering (min_interactions=%d)", minInteractions)
	}

	return &Prepared{
		Interactions: encoded,
		Users:        users,
		Items:        items,
		Seen:         seenByUser,
		Implicit:     implicit,
	}, nil
}

// SeenSet returns the seen items of one user as a set for O(1) exclusion
// checks. Returns nil when the user index is out of range.
func (p *Prepared) SeenSet(user int) map[int]struct{} {
	if user < 0 || user >= len(p.Seen) {
		return nil
	}
	set := make(map[int]struct{}, len(p.Seen[user]))
	for _, item := range p.Seen[user] {
		set[item] = struct{}{}
	}
	return set
}
