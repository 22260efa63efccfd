// Package sqlite provides the SQLite-backed session store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cathlab/stackcheck/internal/session"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// Store implements session.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, enables WAL, and migrates
// the schema. SQLite serialises writes, so the pool is capped at a single
// connection.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements session.Store. A missing row yields a fresh session.
func (s *Store) Get(ctx context.Context, uid, sessionID string) (*session.Session, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT state_json FROM sessions WHERE uid = ? AND session_id = ?",
		uid, sessionID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return session.New(uid, sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(stateJSON), &sess); err != nil {
		return nil, fmt.Errorf("sqlite: decode session state: %w", err)
	}
	sess.UID = uid
	sess.SessionID = sessionID
	return &sess, nil
}

// Save implements session.Store. Opaque state maps are key-sanitized
// before persisting.
func (s *Store) Save(ctx context.Context, uid, sessionID string, sess *session.Session) error {
	if sess.PendingClinicalClarification != nil {
		sess.PendingClinicalClarification = session.SanitizeKeys(sess.PendingClinicalClarification).(map[string]any)
	}
	if sess.LastClinicalAssessment != nil {
		sess.LastClinicalAssessment = session.SanitizeKeys(sess.LastClinicalAssessment).(map[string]any)
	}

	stateJSON, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlite: encode session state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (uid, session_id, state_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (uid, session_id)
		DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		uid, sessionID, string(stateJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save session: %w", err)
	}
	return nil
}

// SaveTurn implements session.Store.
func (s *Store) SaveTurn(ctx context.Context, uid, sessionID, turnID string, record map[string]any) error {
	record = session.SanitizeKeys(record).(map[string]any)

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sqlite: encode turn record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO turns (uid, session_id, turn_id, record_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uid, sessionID, turnID, string(recordJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save turn: %w", err)
	}
	return nil
}

// IncrementTokens implements session.Store with an atomic upsert, the
// increment primitive the token ledger contract requires.
func (s *Store) IncrementTokens(ctx context.Context, uid string, inputTokens, outputTokens int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_ledger (uid, input_tokens, output_tokens)
		VALUES (?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			input_tokens  = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens`,
		uid, inputTokens, outputTokens,
	)
	if err != nil {
		return fmt.Errorf("sqlite: increment tokens: %w", err)
	}
	return nil
}

// TokenTotals returns a user's ledger totals.
func (s *Store) TokenTotals(ctx context.Context, uid string) (inputTokens, outputTokens int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT input_tokens, output_tokens FROM token_ledger WHERE uid = ?", uid,
	).Scan(&inputTokens, &outputTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: token totals: %w", err)
	}
	return inputTokens, outputTokens, nil
}

// DeleteIdle implements session.Store. Turn history is removed with its
// session.
func (s *Store) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin sweep tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cut := cutoff.UTC().Format(time.RFC3339)

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns WHERE (uid, session_id) IN
			(SELECT uid, session_id FROM sessions WHERE updated_at < ?)`, cut); err != nil {
		return 0, fmt.Errorf("sqlite: sweep turns: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cut)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep sessions: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit sweep: %w", err)
	}
	return int(n), nil
}

var _ session.Store = (*Store)(nil)
