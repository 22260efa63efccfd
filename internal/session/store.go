package session

import (
	"context"
	"sync"
	"time"
)

// Store persists sessions and turn records. Implementations live under
// modules/session.
type Store interface {
	// Get returns the stored session, or a fresh empty one if absent.
	Get(ctx context.Context, uid, sessionID string) (*Session, error)

	// Save persists the whole session state atomically.
	Save(ctx context.Context, uid, sessionID string, s *Session) error

	// SaveTurn appends one turn record into the session's turn history.
	SaveTurn(ctx context.Context, uid, sessionID, turnID string, record map[string]any) error

	// IncrementTokens atomically adds to the user's token ledger.
	IncrementTokens(ctx context.Context, uid string, inputTokens, outputTokens int) error

	// DeleteIdle removes sessions not touched since the cutoff and
	// returns how many were removed.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// Locks provides per-(uid, session_id) mutual exclusion. Concurrent
// requests for the same session serialize; distinct sessions proceed
// independently. Lock entries are never evicted; the key space is small
// (active users) and a stale mutex is harmless.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the session and returns the release function. The release
// function must be called exactly once, typically via defer so the lock is
// released on cancellation too.
func (l *Locks) Acquire(uid, sessionID string) func() {
	key := uid + "\x00" + sessionID

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
