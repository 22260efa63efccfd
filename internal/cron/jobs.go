package cron

import (
	"context"
	"log/slog"
	"time"
)

// SessionStore is the subset of session.Store needed by cron jobs.
// Defined here to avoid a dependency on the session package.
type SessionStore interface {
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionSweepJob deletes sessions that have been idle longer than
// IdleTTL, together with their turn records.
type SessionSweepJob struct {
	Store        SessionStore
	IdleTTL      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

var _ Job = (*SessionSweepJob)(nil)

// Name implements Job.
func (j *SessionSweepJob) Name() string { return "session_sweep" }

// Schedule implements Job.
func (j *SessionSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run deletes sessions whose last activity predates the TTL cutoff.
func (j *SessionSweepJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.IdleTTL)
	deleted, err := j.Store.DeleteIdle(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.Logger.Info("cron: swept idle sessions", "count", deleted, "idle_ttl", j.IdleTTL)
	}
	return nil
}
