// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tessellon/affinity/internal/recommend/dataset"
)

// Column names recognized by both drivers. Matching is case-insensitive.
const (
	colUserID    = "user_id"
	colItemID    = "item_id"
	colRating    = "rating"
	colTimestamp = "timestamp"
)

// CSV reads interactions and items from two comma-separated files with
// header rows. The interactions file requires user_id and item_id columns
// and may carry optional rating and timestamp columns. The items file
// requires item_id; every other column is treated as a feature column.
type CSV struct {
	interactionsPath string
	itemsPath        string
}

// NewCSV creates a CSV source over the given file paths. The files are
// opened lazily on each load.
func NewCSV(interactionsPath, itemsPath string) *CSV {
	return &CSV{interactionsPath: interactionsPath, itemsPath: itemsPath}
}

// Name implements Source.
func (s *CSV) Name() string { return "csv" }

// Interactions reads the interactions file. Rows with an empty user_id or
// item_id are skipped. A malformed rating or timestamp value is an error;
// the timestamp column accepts RFC 3339 or unix seconds.
func (s *CSV) Interactions(ctx context.Context) ([]dataset.Interaction, error) {
	file, err := os.Open(s.interactionsPath) //nolint:gosec // G304: path is trusted input from configuration
	if err != nil {
		return nil, fmt.Errorf("open interactions: %w", err)
	}
	defer closeQuietly(file)

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read interactions header: %w", err)
	}
	idx := headerIndex(header)
	for _, col := range []string{colUserID, colItemID} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("interactions file %s: missing column %q", s.interactionsPath, col)
		}
	}

	var interactions []dataset.Interaction
	for row := 1; ; row++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("interactions row %d: %w", row, err)
		}

		userID := field(record, idx, colUserID)
		itemID := field(record, idx, colItemID)
		if userID == "" || itemID == "" {
			continue
		}

		in := dataset.Interaction{UserID: userID, ItemID: itemID}
		if raw := field(record, idx, colRating); raw != "" {
			rating, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("interactions row %d: rating %q: %w", row, raw, err)
			}
			in.Rating = rating
			in.Rated = true
		}
		if raw := field(record, idx, colTimestamp); raw != "" {
			ts, err := parseTimestamp(raw)
			if err != nil {
				return nil, fmt.Errorf("interactions row %d: timestamp %q: %w", row, raw, err)
			}
			in.Timestamp = ts
		}
		interactions = append(interactions, in)
	}

	return interactions, nil
}

// Items reads the catalog file. Feature column names are exposed
// lowercased; empty values are dropped from the field map.
func (s *CSV) Items(ctx context.Context) ([]dataset.Item, error) {
	file, err := os.Open(s.itemsPath) //nolint:gosec // G304: path is trusted input from configuration
	if err != nil {
		return nil, fmt.Errorf("open items: %w", err)
	}
	defer closeQuietly(file)

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read items header: %w", err)
	}
	idx := headerIndex(header)
	if _, ok := idx[colItemID]; !ok {
		return nil, fmt.Errorf("items file %s: missing column %q", s.itemsPath, colItemID)
	}

	var items []dataset.Item
	for row := 1; ; row++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("items row %d: %w", row, err)
		}

		id := field(record, idx, colItemID)
		if id == "" {
			continue
		}

		fields := make(map[string]string)
		for col, i := range idx {
			if col == colItemID || i >= len(record) {
				continue
			}
			if value := strings.TrimSpace(record[i]); value != "" {
				fields[col] = value
			}
		}
		items = append(items, dataset.Item{ID: id, Fields: fields})
	}

	return items, nil
}

// headerIndex maps lowercased, trimmed column names to their positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return idx
}

// field returns the trimmed value of a named column, or "" when the
// column is absent or the record is short.
func field(record []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseTimestamp accepts RFC 3339 or unix seconds.
func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, errors.New("not RFC 3339 or unix seconds")
	}
	return time.Unix(secs, 0).UTC(), nil
}
