// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tessellon/affinity/internal/recommend"
	"github.com/tessellon/affinity/internal/recommend/dataset"
	"github.com/tessellon/affinity/internal/recommend/storage"
)

var _ suture.Service = (*Trainer)(nil)

// mockEngine is a controllable Engine implementation for trainer tests.
type mockEngine struct {
	mu            sync.Mutex
	trainCalls    int
	trainRows     int
	trainErr      error
	trainDelay    time.Duration
	evalCalls     int
	evalRows      int
	evalErr       error
	eval          recommend.Evaluation
	snapshotCalls int
	snapshotErr   error
}

func (m *mockEngine) Train(ctx context.Context, interactions []dataset.Interaction, _ []dataset.Item) error {
	m.mu.Lock()
	m.trainCalls++
	m.trainRows = len(interactions)
	m.mu.Unlock()

	if m.trainDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.trainDelay):
		}
	}

	return m.trainErr
}

func (m *mockEngine) Evaluate(_ context.Context, test []dataset.Interaction) (recommend.Evaluation, error) {
	m.mu.Lock()
	m.evalCalls++
	m.evalRows = len(test)
	m.mu.Unlock()
	return m.eval, m.evalErr
}

func (m *mockEngine) Snapshot() (*storage.Snapshot, error) {
	m.mu.Lock()
	m.snapshotCalls++
	m.mu.Unlock()
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return &storage.Snapshot{}, nil
}

func (m *mockEngine) Status() recommend.Status {
	return recommend.Status{
		Trained:       true,
		ModelVersion:  "test-model",
		ModelSequence: 1,
		Users:         2,
		Items:         3,
		Interactions:  6,
	}
}

func (m *mockEngine) getTrainCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainCalls
}

func (m *mockEngine) getTrainRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainRows
}

func (m *mockEngine) getEvalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evalCalls
}

func (m *mockEngine) getEvalRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evalRows
}

func (m *mockEngine) getSnapshotCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotCalls
}

// mockSource is a fixed-dataset source.Source for trainer tests.
type mockSource struct {
	interactions []dataset.Interaction
	items        []dataset.Item
	err          error
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Interactions(_ context.Context) ([]dataset.Interaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.interactions, nil
}

func (m *mockSource) Items(_ context.Context) ([]dataset.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

// mockStore records snapshot persistence calls.
type mockStore struct {
	mu         sync.Mutex
	saveCalls  int
	saveErr    error
	pruneCalls int
	pruneKeep  int
}

func (m *mockStore) Save(_ context.Context, _ *storage.Snapshot) (*storage.Metadata, error) {
	m.mu.Lock()
	m.saveCalls++
	m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	return &storage.Metadata{Version: 1, SizeBytes: 256}, nil
}

func (m *mockStore) Prune(_ context.Context, keep int) (int, error) {
	m.mu.Lock()
	m.pruneCalls++
	m.pruneKeep = keep
	m.mu.Unlock()
	return 1, nil
}

func (m *mockStore) getSaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

func (m *mockStore) getPruneCalls() (calls, keep int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneCalls, m.pruneKeep
}

func testRows(n int) []dataset.Interaction {
	rows := make([]dataset.Interaction, n)
	for i := range rows {
		rows[i] = dataset.Interaction{
			UserID: "u1",
			ItemID: string(rune('a' + i)),
			Rating: 3,
			Rated:  true,
		}
	}
	return rows
}

func TestTrainerString(t *testing.T) {
	trainer := NewTrainer(&mockEngine{}, &mockSource{}, nil, TrainerConfig{}, zerolog.Nop())

	if got := trainer.String(); got != "trainer-service" {
		t.Errorf("String() = %q, want %q", got, "trainer-service")
	}
}

func TestTrainerTrainOnStartup(t *testing.T) {
	engine := &mockEngine{}
	src := &mockSource{interactions: testRows(4)}
	cfg := TrainerConfig{
		TrainOnStartup: true,
		Interval:       time.Hour, // Long interval to avoid scheduled training
	}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = trainer.Serve(ctx)

	if got := engine.getTrainCalls(); got != 1 {
		t.Errorf("Train() called %d times, want 1", got)
	}
}

func TestTrainerNoTrainOnStartup(t *testing.T) {
	engine := &mockEngine{}
	src := &mockSource{interactions: testRows(4)}
	cfg := TrainerConfig{
		TrainOnStartup: false,
		Interval:       time.Hour,
	}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_ = trainer.Serve(ctx)

	if got := engine.getTrainCalls(); got != 0 {
		t.Errorf("Train() called %d times, want 0", got)
	}
}

func TestTrainerScheduledTraining(t *testing.T) {
	engine := &mockEngine{}
	src := &mockSource{interactions: testRows(4)}
	cfg := TrainerConfig{
		TrainOnStartup: false,
		Interval:       50 * time.Millisecond, // Short interval for testing
	}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	// Run long enough for 2 scheduled trainings
	ctx, cancel := context.WithTimeout(context.Background(), 130*time.Millisecond)
	defer cancel()

	_ = trainer.Serve(ctx)

	if got := engine.getTrainCalls(); got < 2 {
		t.Errorf("Train() called %d times, want >= 2", got)
	}
}

func TestTrainerGracefulShutdown(t *testing.T) {
	engine := &mockEngine{trainDelay: 50 * time.Millisecond}
	src := &mockSource{interactions: testRows(4)}
	cfg := TrainerConfig{
		TrainOnStartup: true,
		Interval:       time.Hour,
	}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- trainer.Serve(ctx)
	}()

	// Wait for training to start, then cancel
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not complete in time")
	}
}

func TestTrainerSurvivesTrainingError(t *testing.T) {
	engine := &mockEngine{trainErr: errors.New("factorization failed")}
	src := &mockSource{interactions: testRows(4)}
	cfg := TrainerConfig{
		TrainOnStartup: true,
		Interval:       time.Hour,
	}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	// Serve should keep running despite the failed cycle
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := trainer.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() returned %v, want context.DeadlineExceeded", err)
	}

	if got := engine.getTrainCalls(); got != 1 {
		t.Errorf("Train() called %d times, want 1", got)
	}
}

func TestTrainerRunOnce(t *testing.T) {
	engine := &mockEngine{eval: recommend.Evaluation{RMSE: 0.5, MAE: 0.3, Samples: 2}}
	src := &mockSource{
		interactions: testRows(10),
		items:        []dataset.Item{{ID: "a", Fields: map[string]string{"title": "A"}}},
	}
	store := &mockStore{}
	cfg := TrainerConfig{
		TestFraction:    0.2,
		Seed:            42,
		RetainSnapshots: 3,
	}

	trainer := NewTrainer(engine, src, store, cfg, zerolog.Nop())

	if err := trainer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// 10 rows at fraction 0.2 leaves 8 for training, 2 held out
	if got := engine.getTrainRows(); got != 8 {
		t.Errorf("Train() received %d rows, want 8", got)
	}
	if got := engine.getEvalCalls(); got != 1 {
		t.Errorf("Evaluate() called %d times, want 1", got)
	}
	if got := engine.getEvalRows(); got != 2 {
		t.Errorf("Evaluate() received %d rows, want 2", got)
	}
	if got := engine.getSnapshotCalls(); got != 1 {
		t.Errorf("Snapshot() called %d times, want 1", got)
	}
	if got := store.getSaveCalls(); got != 1 {
		t.Errorf("Save() called %d times, want 1", got)
	}
	pruneCalls, keep := store.getPruneCalls()
	if pruneCalls != 1 {
		t.Errorf("Prune() called %d times, want 1", pruneCalls)
	}
	if keep != 3 {
		t.Errorf("Prune() keep = %d, want 3", keep)
	}
}

func TestTrainerRunOnceNoHoldout(t *testing.T) {
	engine := &mockEngine{}
	src := &mockSource{interactions: testRows(10)}
	cfg := TrainerConfig{TestFraction: 0}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	if err := trainer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if got := engine.getTrainRows(); got != 10 {
		t.Errorf("Train() received %d rows, want 10", got)
	}
	if got := engine.getEvalCalls(); got != 0 {
		t.Errorf("Evaluate() called %d times, want 0", got)
	}
}

func TestTrainerRunOnceWithoutStore(t *testing.T) {
	engine := &mockEngine{}
	src := &mockSource{interactions: testRows(4)}

	trainer := NewTrainer(engine, src, nil, TrainerConfig{}, zerolog.Nop())

	if err := trainer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if got := engine.getSnapshotCalls(); got != 0 {
		t.Errorf("Snapshot() called %d times, want 0", got)
	}
}

func TestTrainerRunOnceSourceError(t *testing.T) {
	wantErr := errors.New("connection refused")
	engine := &mockEngine{}
	src := &mockSource{err: wantErr}

	trainer := NewTrainer(engine, src, nil, TrainerConfig{}, zerolog.Nop())

	err := trainer.RunOnce(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("RunOnce() error = %v, want wrapped %v", err, wantErr)
	}
	if got := engine.getTrainCalls(); got != 0 {
		t.Errorf("Train() called %d times, want 0", got)
	}
}

func TestTrainerRunOncePersistFailureIsNotFatal(t *testing.T) {
	engine := &mockEngine{}
	src := &mockSource{interactions: testRows(4)}
	store := &mockStore{saveErr: errors.New("disk full")}

	trainer := NewTrainer(engine, src, store, TrainerConfig{RetainSnapshots: 3}, zerolog.Nop())

	// The model is already published, so a failed save only logs
	if err := trainer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if got := store.getSaveCalls(); got != 1 {
		t.Errorf("Save() called %d times, want 1", got)
	}
	pruneCalls, _ := store.getPruneCalls()
	if pruneCalls != 0 {
		t.Errorf("Prune() called %d times after failed save, want 0", pruneCalls)
	}
}

func TestTrainerRunOnceEvaluationFailureIsNotFatal(t *testing.T) {
	engine := &mockEngine{evalErr: errors.New("no overlap")}
	src := &mockSource{interactions: testRows(10)}
	cfg := TrainerConfig{TestFraction: 0.2, Seed: 42}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	if err := trainer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if got := engine.getEvalCalls(); got != 1 {
		t.Errorf("Evaluate() called %d times, want 1", got)
	}
}

func TestTrainerRunOnceTimeout(t *testing.T) {
	engine := &mockEngine{trainDelay: 200 * time.Millisecond}
	src := &mockSource{interactions: testRows(4)}
	cfg := TrainerConfig{Timeout: 20 * time.Millisecond}

	trainer := NewTrainer(engine, src, nil, cfg, zerolog.Nop())

	err := trainer.RunOnce(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunOnce() error = %v, want context.DeadlineExceeded", err)
	}
}
