// Package providertest provides test doubles for the provider package.
package providertest

import (
	"context"
	"strings"
	"sync"

	"github.com/cathlab/stackcheck/internal/provider"
)

// Mock is a scripted test double for provider.Provider. Responses are
// consumed in order; when the script is exhausted the last entry repeats.
// Safe for concurrent use.
type Mock struct {
	// Responses are returned by Complete calls in order.
	Responses []provider.CompletionResponse

	// BySystem routes a Complete call to a fixed response when the
	// request's system prompt contains the key. Checked before the
	// ordered script, so concurrent agents stay deterministic.
	BySystem map[string]provider.CompletionResponse

	// Errs, when non-nil at the matching index, is returned instead.
	Errs []error

	// StreamText, when set, is split into per-rune chunks by Stream,
	// followed by a terminal usage chunk.
	StreamText  string
	StreamUsage provider.TokenUsage

	// Model reported by ModelName. Defaults to "mock".
	Model string

	mu            sync.Mutex
	completeCalls int
	streamCalls   int
	requests      []provider.CompletionRequest
}

// Complete returns the next scripted response.
func (m *Mock) Complete(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.completeCalls
	m.completeCalls++
	m.requests = append(m.requests, req)

	for key, resp := range m.BySystem {
		if strings.Contains(req.System, key) {
			return resp, nil
		}
	}

	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return provider.CompletionResponse{}, m.Errs[idx]
	}
	if len(m.Responses) == 0 {
		return provider.CompletionResponse{FinishReason: provider.FinishReasonStop}, nil
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// Stream emits StreamText one rune at a time, then the usage record.
func (m *Mock) Stream(_ context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.streamCalls++
	m.requests = append(m.requests, req)
	text := m.StreamText
	usage := m.StreamUsage
	m.mu.Unlock()

	ch := make(chan provider.StreamChunk, len(text)+1)
	for _, r := range text {
		ch <- provider.StreamChunk{Content: string(r)}
	}
	ch <- provider.StreamChunk{FinishReason: provider.FinishReasonStop, Usage: &usage}
	close(ch)
	return ch, nil
}

// ContextWindowSize implements provider.Provider.
func (m *Mock) ContextWindowSize() int { return 128000 }

// ModelName implements provider.Provider.
func (m *Mock) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// CompleteCalls returns how many Complete calls were made.
func (m *Mock) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

// StreamCalls returns how many Stream calls were made.
func (m *Mock) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// Requests returns a copy of all observed requests in call order.
func (m *Mock) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ provider.Provider = (*Mock)(nil)
