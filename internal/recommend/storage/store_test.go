// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		ModelVersion: "7a1d2f9c-0000-0000-0000-000000000001",
		TrainedAt:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Users:        []string{"u1", "u2"},
		Items:        []string{"i1", "i2", "i3"},
		Seen:         [][]int{{0, 1}, {0, 2}},
		Implicit:     false,
		Interactions: 4,
		Factors: FactorState{
			UserFactors: [][]float64{{0.1, 0.2}, {0.3, 0.4}},
			ItemFactors: [][]float64{{0.5, 0.6}, {0.7, 0.8}, {0.9, 1.0}},
			UserBias:    []float64{0.25, -0.25},
			ItemBias:    []float64{0.5, -0.1, -0.4},
			GlobalMean:  3.5,
		},
		Content: ContentState{
			Vocabulary:   []string{"space", "opera"},
			IDF:          []float64{1.2, 1.7},
			RowTerms:     [][]int{{0}, {0, 1}, {1}},
			RowWeights:   [][]float64{{1.0}, {0.6, 0.8}, {1.0}},
			Similarities: [][]float64{{1, 0.6, 0}, {0.6, 1, 0}, {0, 0, 1}},
		},
		Popularity: []float64{9, 3, 2},
	}
}

func TestNewStoreRequiresBaseDir(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Error("NewStore(\"\") error = nil, want error")
	}
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	if _, err := NewStore(dir); err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Stat(%q) error = %v, want directory to exist", dir, err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	want := sampleSnapshot()
	meta, err := store.Save(ctx, want)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if meta.Version != 1 {
		t.Errorf("meta.Version = %d, want 1", meta.Version)
	}
	if meta.ModelVersion != want.ModelVersion {
		t.Errorf("meta.ModelVersion = %q, want %q", meta.ModelVersion, want.ModelVersion)
	}
	if meta.UserCount != 2 || meta.ItemCount != 3 || meta.InteractionCount != 4 {
		t.Errorf("meta counts = (%d, %d, %d), want (2, 3, 4)",
			meta.UserCount, meta.ItemCount, meta.InteractionCount)
	}
	if meta.SizeBytes <= 0 {
		t.Errorf("meta.SizeBytes = %d, want > 0", meta.SizeBytes)
	}

	got, gotMeta, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	if gotMeta.Version != 1 {
		t.Errorf("loaded meta.Version = %d, want 1", gotMeta.Version)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadLatest() snapshot = %+v, want %+v", got, want)
	}
}

func TestLoadLatestEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, _, err := store.LoadLatest(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("LoadLatest() error = %v, want ErrNoSnapshot", err)
	}
}

func TestLoadMissingVersion(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, _, err := store.Load(context.Background(), 7); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Load(7) error = %v, want ErrNoSnapshot", err)
	}
}

func TestSaveAssignsMonotonicVersions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		meta, err := store.Save(ctx, sampleSnapshot())
		if err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
		if meta.Version != i {
			t.Errorf("Save() #%d version = %d, want %d", i, meta.Version, i)
		}
	}
	if v, ok := store.LatestVersion(); !ok || v != 3 {
		t.Errorf("LatestVersion() = (%d, %v), want (3, true)", v, ok)
	}
}

func TestNewStoreScansExisting(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	if v, ok := reopened.LatestVersion(); !ok || v != 2 {
		t.Errorf("reopened LatestVersion() = (%d, %v), want (2, true)", v, ok)
	}

	meta, err := reopened.Save(ctx, sampleSnapshot())
	if err != nil {
		t.Fatalf("Save() after reopen error = %v", err)
	}
	if meta.Version != 3 {
		t.Errorf("Save() after reopen version = %d, want 3", meta.Version)
	}
}

// writeTampered writes a snapshot file whose envelope metadata carries the
// given checksum and format version, bypassing Save.
func writeTampered(t *testing.T, dir string, version int, checksum string, formatVersion int) {
	t.Helper()

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(sampleSnapshot()); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(payload.Bytes()); err != nil {
		t.Fatalf("compress payload: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compress payload: %v", err)
	}

	stored := storedFile{
		Metadata: Metadata{
			FormatVersion: formatVersion,
			Version:       version,
			Checksum:      checksum,
		},
		CompressedData: compressed.Bytes(),
	}
	var envelope bytes.Buffer
	if err := gob.NewEncoder(&envelope).Encode(&stored); err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	name := filepath.Join(dir, "engine_v"+strconv.Itoa(version)+".gob.gz")
	if err := os.WriteFile(name, envelope.Bytes(), 0o644); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func TestLoadChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTampered(t, dir, 1, "deadbeef", FormatVersion)

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	_, _, err = store.Load(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Load() error = %v, want checksum mismatch", err)
	}
}

func TestLoadRejectsNewerFormat(t *testing.T) {
	dir := t.TempDir()
	writeTampered(t, dir, 1, "ignored", FormatVersion+1)

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	_, _, err = store.Load(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "format version") {
		t.Errorf("Load() error = %v, want format version error", err)
	}
}

func TestList(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Save(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	metas, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(metas))
	}
	for i, want := range []int{3, 2, 1} {
		if metas[i].Version != want {
			t.Errorf("List()[%d].Version = %d, want %d", i, metas[i].Version, want)
		}
	}
}

func TestPrune(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Save(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed = %d, want 3", removed)
	}

	metas, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var versions []int
	for _, meta := range metas {
		versions = append(versions, meta.Version)
	}
	if !reflect.DeepEqual(versions, []int{5, 4}) {
		t.Errorf("versions after prune = %v, want [5 4]", versions)
	}

	// The latest snapshots survive and remain loadable.
	if _, _, err := store.LoadLatest(ctx); err != nil {
		t.Errorf("LoadLatest() after prune error = %v", err)
	}
}

func TestPruneKeepZeroIsNoop(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	removed, err := store.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Prune(0) removed = %d, want 0", removed)
	}
	if _, _, err := store.LoadLatest(ctx); err != nil {
		t.Errorf("LoadLatest() after noop prune error = %v", err)
	}
}

func TestDeleteRecomputesLatest(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Save(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	if err := store.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete(3) error = %v", err)
	}
	if v, ok := store.LatestVersion(); !ok || v != 2 {
		t.Errorf("LatestVersion() after delete = (%d, %v), want (2, true)", v, ok)
	}
	if err := store.Delete(ctx, 3); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Delete(3) again error = %v, want ErrNoSnapshot", err)
	}
}

func TestParseSnapshotFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion int
		wantOK      bool
	}{
		{"engine_v1.gob.gz", 1, true},
		{"engine_v42.gob.gz", 42, true},
		{"engine_v0.gob.gz", 0, false},
		{"engine_vX.gob.gz", 0, false},
		{"engine_v1.gob", 0, false},
		{"other_v1.gob.gz", 0, false},
		{"engine_v1.gob.gz.tmp", 0, false},
	}

	for _, tt := range tests {
		version, ok := parseSnapshotFilename(tt.name)
		if version != tt.wantVersion || ok != tt.wantOK {
			t.Errorf("parseSnapshotFilename(%q) = (%d, %v), want (%d, %v)",
				tt.name, version, ok, tt.wantVersion, tt.wantOK)
		}
	}
}
