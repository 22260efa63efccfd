package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testSessionStore implements SessionStore for job tests.
type testSessionStore struct {
	calls      atomic.Int32
	deleteFunc func(cutoff time.Time) (int, error)
}

func (s *testSessionStore) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.calls.Add(1)
	if s.deleteFunc != nil {
		return s.deleteFunc(cutoff)
	}
	return 0, nil
}

func TestSessionSweepJob_Name(t *testing.T) {
	t.Parallel()
	j := &SessionSweepJob{Logger: slog.Default()}
	if j.Name() != "session_sweep" {
		t.Errorf("name = %q, want %q", j.Name(), "session_sweep")
	}
}

func TestSessionSweepJob_Schedule(t *testing.T) {
	t.Parallel()
	j := &SessionSweepJob{Logger: slog.Default()}
	if j.Schedule() != "*/10 * * * *" {
		t.Errorf("schedule = %q, want %q", j.Schedule(), "*/10 * * * *")
	}
	j.ScheduleExpr = "0 * * * *"
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q, want override", j.Schedule())
	}
}

func TestSessionSweepJob_Run(t *testing.T) {
	t.Parallel()

	store := &testSessionStore{
		deleteFunc: func(cutoff time.Time) (int, error) {
			idle := time.Since(cutoff)
			if idle < 29*time.Minute || idle > 31*time.Minute {
				t.Errorf("cutoff implies idle ttl %v, want ~30m", idle)
			}
			return 3, nil
		},
	}

	j := &SessionSweepJob{
		Store:   store,
		IdleTTL: 30 * time.Minute,
		Logger:  slog.Default(),
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls.Load() != 1 {
		t.Errorf("delete calls = %d, want 1", store.calls.Load())
	}
}

func TestSessionSweepJob_RunError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("db locked")
	store := &testSessionStore{
		deleteFunc: func(time.Time) (int, error) { return 0, wantErr },
	}
	j := &SessionSweepJob{Store: store, IdleTTL: time.Hour, Logger: slog.Default()}

	if err := j.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
