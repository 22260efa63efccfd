package orchestrator

import (
	"sync"
	"testing"

	"github.com/cathlab/stackcheck/internal/provider"
)

func TestUsageTracker(t *testing.T) {
	u := newUsageTracker()
	u.track("input_rewriter", provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5})
	u.track("intent_classifier", provider.TokenUsage{PromptTokens: 20, CompletionTokens: 8})
	u.track("zero_call", provider.TokenUsage{})

	total := u.Total()
	if total.InputTokens != 30 || total.OutputTokens != 13 {
		t.Errorf("total = %+v, want 30/13", total)
	}

	summary := u.Summary()
	if got := summary["total_input_tokens"]; got != 30 {
		t.Errorf("summary input = %v", got)
	}
	calls := summary["sub_agent_calls"].([]subAgentCall)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want zero-usage call skipped", len(calls))
	}
	if calls[0].Tool != "input_rewriter" || calls[1].Tool != "intent_classifier" {
		t.Errorf("call order = %+v", calls)
	}
}

func TestUsageTrackerEngineShapes(t *testing.T) {
	u := newUsageTracker()

	// Engines attach the typed shape in-process.
	u.trackEngine("chain_engine", map[string]any{
		"token_usage": map[string]int{"input_tokens": 100, "output_tokens": 40},
	})
	// The JSON-decoded shape arrives from serialized results.
	u.trackEngine("database_engine", map[string]any{
		"token_usage": map[string]any{"input_tokens": float64(50), "output_tokens": float64(10)},
	})
	// Missing usage is a no-op.
	u.trackEngine("vector_engine", map[string]any{})

	total := u.Total()
	if total.InputTokens != 150 || total.OutputTokens != 50 {
		t.Errorf("total = %+v, want 150/50", total)
	}
}

func TestUsageTrackerConcurrent(t *testing.T) {
	u := newUsageTracker()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.track("agent", provider.TokenUsage{PromptTokens: 1, CompletionTokens: 1})
		}()
	}
	wg.Wait()
	if total := u.Total(); total.InputTokens != 20 || total.OutputTokens != 20 {
		t.Errorf("total = %+v, want 20/20", total)
	}
}
