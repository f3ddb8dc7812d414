// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package recommend

import (
	"errors"
	"fmt"
)

var (
	// ErrUntrained is returned by inference and evaluation calls before
	// the first successful training run publishes a model.
	ErrUntrained = errors.New("model not trained")

	// ErrTrainingInProgress is returned when Train is called while
	// another training run holds the training lock.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// TrainingError wraps a failure inside a training run with the pipeline
// stage that produced it. The engine logs it once and propagates it; the
// previously published model, if any, keeps serving.
type TrainingError struct {
	// Stage names the pipeline step that failed: preprocess, svd,
	// content or popularity.
	Stage string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed at stage %q: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *TrainingError) Unwrap() error {
	return e.Err
}
