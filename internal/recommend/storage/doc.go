// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package storage persists trained engine state to disk as versioned
// snapshot files.
//
// A snapshot captures everything needed to serve recommendations without
// retraining: both identity maps, the factorization parameters, the
// content vectorizer state including the similarity matrix, and the
// popularity scores. The pieces are always written and read together so
// a restored model can never mix state from different training runs.
//
// On disk each snapshot is a single file named engine_v{N}.gob.gz holding
// a gob-encoded envelope of metadata plus the gzip-compressed snapshot
// payload. A SHA-256 checksum of the uncompressed payload is verified on
// load. Versions are assigned monotonically by the store; Prune removes
// all but the most recent snapshots.
package storage
