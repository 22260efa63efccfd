package sqlite

import (
	"database/sql"
	"fmt"
)

// schema mirrors the document layout users/{uid}/chats/{session_id} and
// .../turn_history/{turn_id} as composite-key tables, plus a per-user
// token ledger with atomic increments.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	uid        TEXT NOT NULL,
	session_id TEXT NOT NULL,
	state_json TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (uid, session_id)
);

CREATE TABLE IF NOT EXISTS turns (
	uid         TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	turn_id     TEXT NOT NULL,
	record_json TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (uid, session_id, turn_id)
);

CREATE TABLE IF NOT EXISTS token_ledger (
	uid           TEXT PRIMARY KEY,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions (updated_at);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate schema: %w", err)
	}
	return nil
}
