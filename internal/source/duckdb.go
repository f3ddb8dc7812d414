// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb database/sql driver

	"github.com/tessellon/affinity/internal/recommend/dataset"
)

// DuckDB reads interactions and items through two configured SQL queries.
// The interactions query must return user_id and item_id columns with
// optional rating and timestamp; the items query must return item_id plus
// any number of feature columns. Columns are matched by name, so aliases
// in the query control the mapping. A NULL rating marks an unrated row.
type DuckDB struct {
	db                *sql.DB
	interactionsQuery string
	itemsQuery        string
}

// NewDuckDB wraps an existing connection. The source takes ownership of
// db and closes it in Close.
func NewDuckDB(db *sql.DB, interactionsQuery, itemsQuery string) *DuckDB {
	return &DuckDB{db: db, interactionsQuery: interactionsQuery, itemsQuery: itemsQuery}
}

// OpenDuckDB opens a database file read-only and returns a source over
// it. Extension auto-install and auto-load are disabled; queries that
// need an extension must target a database that has it installed.
func OpenDuckDB(path, interactionsQuery, itemsQuery string) (*DuckDB, error) {
	connStr := path + "?access_mode=read_only&autoinstall_known_extensions=false&autoload_known_extensions=false"
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("ping duckdb %s: %w", path, err)
	}
	return NewDuckDB(db, interactionsQuery, itemsQuery), nil
}

// Name implements Source.
func (s *DuckDB) Name() string { return "duckdb" }

// Close releases the underlying connection.
func (s *DuckDB) Close() error {
	return s.db.Close()
}

// Interactions runs the interactions query. Rows with a NULL or empty
// user_id or item_id are skipped.
func (s *DuckDB) Interactions(ctx context.Context) ([]dataset.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, s.interactionsQuery)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer closeQuietly(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("interactions columns: %w", err)
	}
	idx := headerIndex(cols)
	for _, col := range []string{colUserID, colItemID} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("interactions query: missing column %q", col)
		}
	}

	var interactions []dataset.Interaction
	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}

		userID := stringValue(values[idx[colUserID]])
		itemID := stringValue(values[idx[colItemID]])
		if userID == "" || itemID == "" {
			continue
		}

		in := dataset.Interaction{UserID: userID, ItemID: itemID}
		if i, ok := idx[colRating]; ok && values[i] != nil {
			rating, err := floatValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("interactions rating: %w", err)
			}
			in.Rating = rating
			in.Rated = true
		}
		if i, ok := idx[colTimestamp]; ok && values[i] != nil {
			ts, err := timeValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("interactions timestamp: %w", err)
			}
			in.Timestamp = ts
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}

	return interactions, nil
}

// Items runs the items query. Feature column names are exposed
// lowercased; NULL and empty values are dropped from the field map.
func (s *DuckDB) Items(ctx context.Context) ([]dataset.Item, error) {
	rows, err := s.db.QueryContext(ctx, s.itemsQuery)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer closeQuietly(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("items columns: %w", err)
	}
	idx := headerIndex(cols)
	if _, ok := idx[colItemID]; !ok {
		return nil, fmt.Errorf("items query: missing column %q", colItemID)
	}

	var items []dataset.Item
	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		id := stringValue(values[idx[colItemID]])
		if id == "" {
			continue
		}

		fields := make(map[string]string)
		for col, i := range idx {
			if col == colItemID {
				continue
			}
			if value := stringValue(values[i]); value != "" {
				fields[col] = value
			}
		}
		items = append(items, dataset.Item{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return items, nil
}

// scanRow scans the current row into a slice of driver values.
func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func floatValue(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	default:
		return 0, fmt.Errorf("unsupported rating type %T", v)
	}
}

func timeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case string:
		return parseTimestamp(strings.TrimSpace(t))
	case []byte:
		return parseTimestamp(strings.TrimSpace(string(t)))
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}
