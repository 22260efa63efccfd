// Package session defines per-user conversation state, the persistence
// contract, and per-session mutual exclusion.
package session

import "time"

// Turn is one history entry. History is append-only and ordered.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// TokenCounters accumulates LLM token usage across a session's turns.
type TokenCounters struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Session is the per-(uid, session_id) conversation state. Mutable only
// under the session lock.
type Session struct {
	UID       string `json:"uid"`
	SessionID string `json:"session_id"`

	History []Turn `json:"conversation_history"`

	// PendingClinicalClarification carries a partially parsed patient
	// record when the previous turn asked the user for missing clinical
	// parameters. Consumed or cleared by the next turn.
	PendingClinicalClarification map[string]any `json:"pending_clinical_clarification,omitempty"`

	// LastClinicalAssessment is a compact summary of the most recent
	// clinical evaluation, used for guideline-question enrichment.
	LastClinicalAssessment map[string]any `json:"last_clinical_assessment,omitempty"`

	TokenCounters TokenCounters `json:"token_counters"`
}

// New creates an empty session.
func New(uid, sessionID string) *Session {
	return &Session{UID: uid, SessionID: sessionID}
}

// Append adds a turn to the history with the current timestamp and returns
// its index.
func (s *Session) Append(role, content string) int {
	s.History = append(s.History, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return len(s.History) - 1
}

// RecentHistory returns up to the last n turns.
func (s *Session) RecentHistory(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
