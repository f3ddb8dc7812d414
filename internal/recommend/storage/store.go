// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoSnapshot is returned by LoadLatest when the store holds no
// snapshots.
var ErrNoSnapshot = errors.New("no snapshot found")

const (
	snapshotPrefix = "engine_v"
	snapshotSuffix = ".gob.gz"
)

// storedFile is the on-disk envelope: uncompressed metadata followed by
// the gzip-compressed gob payload.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Store persists engine snapshots as versioned files under a base
// directory. Versions are assigned monotonically starting at 1. Store is
// safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	latest  int
}

// NewStore opens a snapshot store rooted at baseDir, creating the
// directory if needed and scanning it for existing snapshots.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	s := &Store{baseDir: baseDir}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan walks the base directory and records the highest snapshot version
// present. Files that do not match the snapshot naming scheme are
// ignored.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read snapshot directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := parseSnapshotFilename(entry.Name())
		if !ok {
			continue
		}
		if version > s.latest {
			s.latest = version
		}
	}
	return nil
}

// parseSnapshotFilename extracts the version from a snapshot filename of
// the form engine_v{N}.gob.gz.
func parseSnapshotFilename(name string) (int, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	version, err := strconv.Atoi(raw)
	if err != nil || version < 1 {
		return 0, false
	}
	return version, true
}

func (s *Store) snapshotPath(version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s%d%s", snapshotPrefix, version, snapshotSuffix))
}

// LatestVersion reports the highest stored snapshot version, or false
// when the store is empty.
func (s *Store) LatestVersion() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest > 0
}

// Save writes snap as a new snapshot version and returns its metadata.
// The payload is gob encoded, checksummed and gzip compressed before
// being written.
func (s *Store) Save(ctx context.Context, snap *Snapshot) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot must not be nil")
	}

	snap.FormatVersion = FormatVersion

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	checksum := sha256.Sum256(payload.Bytes())

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(payload.Bytes()); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.latest + 1
	meta := Metadata{
		FormatVersion:    FormatVersion,
		Version:          version,
		ModelVersion:     snap.ModelVersion,
		SavedAt:          time.Now().UTC(),
		TrainedAt:        snap.TrainedAt,
		UserCount:        len(snap.Users),
		ItemCount:        len(snap.Items),
		InteractionCount: snap.Interactions,
		SizeBytes:        int64(compressed.Len()),
		Checksum:         hex.EncodeToString(checksum[:]),
	}

	file, err := os.Create(s.snapshotPath(version))
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	defer file.Close()

	stored := storedFile{Metadata: meta, CompressedData: compressed.Bytes()}
	if err := gob.NewEncoder(file).Encode(&stored); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("write snapshot file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("sync snapshot file: %w", err)
	}

	s.latest = version
	return &meta, nil
}

// Load reads the snapshot with the given version, verifying the payload
// checksum before decoding.
func (s *Store) Load(ctx context.Context, version int) (*Snapshot, *Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	path := s.snapshotPath(version)
	s.mu.RUnlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("snapshot version %d: %w", version, ErrNoSnapshot)
		}
		return nil, nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	var stored storedFile
	if err := gob.NewDecoder(file).Decode(&stored); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot file: %w", err)
	}
	if stored.Metadata.FormatVersion > FormatVersion {
		return nil, nil, fmt.Errorf("snapshot format version %d is newer than supported version %d", stored.Metadata.FormatVersion, FormatVersion)
	}

	zr, err := gzip.NewReader(bytes.NewReader(stored.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	payload, err := io.ReadAll(zr)
	if err != nil {
		zr.Close()
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}

	checksum := sha256.Sum256(payload)
	if got := hex.EncodeToString(checksum[:]); got != stored.Metadata.Checksum {
		return nil, nil, fmt.Errorf("snapshot version %d checksum mismatch: stored %s, computed %s", version, stored.Metadata.Checksum, got)
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot payload: %w", err)
	}

	meta := stored.Metadata
	return &snap, &meta, nil
}

// LoadLatest reads the most recent snapshot. It returns ErrNoSnapshot
// when the store is empty.
func (s *Store) LoadLatest(ctx context.Context) (*Snapshot, *Metadata, error) {
	version, ok := s.LatestVersion()
	if !ok {
		return nil, nil, ErrNoSnapshot
	}
	return s.Load(ctx, version)
}

// List returns metadata for all stored snapshots, newest first. Files
// that fail to decode are skipped.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries, err := os.ReadDir(s.baseDir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	var metas []Metadata
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := parseSnapshotFilename(entry.Name()); !ok {
			continue
		}

		file, err := os.Open(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var stored storedFile
		decodeErr := gob.NewDecoder(file).Decode(&stored)
		file.Close()
		if decodeErr != nil {
			continue
		}
		metas = append(metas, stored.Metadata)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Version > metas[j].Version })
	return metas, nil
}

// Delete removes the snapshot with the given version.
func (s *Store) Delete(ctx context.Context, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.snapshotPath(version)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snapshot version %d: %w", version, ErrNoSnapshot)
		}
		return fmt.Errorf("delete snapshot file: %w", err)
	}
	if version == s.latest {
		s.latest = 0
		for v := version - 1; v >= 1; v-- {
			if _, err := os.Stat(s.snapshotPath(v)); err == nil {
				s.latest = v
				break
			}
		}
	}
	return nil
}

// Prune removes all but the keep most recent snapshots. A keep of zero
// or less leaves the store untouched.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	metas, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(metas) <= keep {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, meta := range metas[keep:] {
		if err := os.Remove(s.snapshotPath(meta.Version)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("prune snapshot version %d: %w", meta.Version, err)
		}
		removed++
	}
	return removed, nil
}
