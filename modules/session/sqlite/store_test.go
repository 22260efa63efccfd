package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetCreatesFreshSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.Get(ctx, "u1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.UID != "u1" || sess.SessionID != "s1" || len(sess.History) != 0 {
		t.Errorf("fresh session = %+v", sess)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, _ := s.Get(ctx, "u1", "s1")
	sess.Append("user", "can I use A with B?")
	sess.Append("assistant", "yes")
	sess.TokenCounters.InputTokens = 120
	sess.PendingClinicalClarification = map[string]any{"nihss.score": 14}

	if err := s.Save(ctx, "u1", "s1", sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Get(ctx, "u1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.History) != 2 || loaded.History[1].Content != "yes" {
		t.Errorf("history = %+v", loaded.History)
	}
	if loaded.TokenCounters.InputTokens != 120 {
		t.Errorf("counters = %+v", loaded.TokenCounters)
	}
	// Dotted keys sanitized on save.
	if _, ok := loaded.PendingClinicalClarification["nihss_score"]; !ok {
		t.Errorf("pending state = %+v", loaded.PendingClinicalClarification)
	}
}

func TestSaveTurn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.SaveTurn(ctx, "u1", "s1", "t1", map[string]any{
		"query":  "q",
		"result": map[string]any{"status.code": "complete"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var recordJSON string
	if err := s.db.QueryRow(
		"SELECT record_json FROM turns WHERE uid = 'u1' AND turn_id = 't1'",
	).Scan(&recordJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(recordJSON, "status_code") {
		t.Errorf("turn record = %s", recordJSON)
	}
}

func TestIncrementTokensAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.IncrementTokens(ctx, "u1", 100, 40); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementTokens(ctx, "u1", 50, 10); err != nil {
		t.Fatal(err)
	}

	in, out, err := s.TokenTotals(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if in != 150 || out != 50 {
		t.Errorf("totals = %d/%d, want 150/50", in, out)
	}

	// Absent user reads as zero.
	in, out, err = s.TokenTotals(ctx, "nobody")
	if err != nil || in != 0 || out != 0 {
		t.Errorf("absent user = %d/%d, %v", in, out, err)
	}
}

func TestDeleteIdle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, _ := s.Get(ctx, "u1", "old")
	if err := s.Save(ctx, "u1", "old", sess); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTurn(ctx, "u1", "old", "t1", map[string]any{"q": 1}); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteIdle(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}

	var turnCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM turns").Scan(&turnCount); err != nil {
		t.Fatal(err)
	}
	if turnCount != 0 {
		t.Errorf("%d orphan turns after sweep", turnCount)
	}
}
