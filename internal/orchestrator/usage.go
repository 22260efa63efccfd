package orchestrator

import (
	"sync"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/provider"
)

type subAgentCall struct {
	Tool         string `json:"tool"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// usageTracker accumulates token usage across every LLM call in a turn,
// keeping a per-tool breakdown for the turn record.
type usageTracker struct {
	mu    sync.Mutex
	total broker.TokenUsage
	calls []subAgentCall
}

func newUsageTracker() *usageTracker {
	return &usageTracker{}
}

func (u *usageTracker) track(tool string, usage provider.TokenUsage) {
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		return
	}
	tokensUsed.WithLabelValues(tool, "input").Add(float64(usage.PromptTokens))
	tokensUsed.WithLabelValues(tool, "output").Add(float64(usage.CompletionTokens))

	u.mu.Lock()
	defer u.mu.Unlock()
	u.total.InputTokens += usage.PromptTokens
	u.total.OutputTokens += usage.CompletionTokens
	u.calls = append(u.calls, subAgentCall{
		Tool:         tool,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	})
}

// trackEngine reads the token_usage entry an engine leaves on its result
// data. Both the typed and the JSON-decoded shapes occur.
func (u *usageTracker) trackEngine(tool string, data map[string]any) {
	switch tu := data["token_usage"].(type) {
	case map[string]int:
		u.track(tool, provider.TokenUsage{
			PromptTokens:     tu["input_tokens"],
			CompletionTokens: tu["output_tokens"],
		})
	case map[string]any:
		u.track(tool, provider.TokenUsage{
			PromptTokens:     asInt(tu["input_tokens"]),
			CompletionTokens: asInt(tu["output_tokens"]),
		})
	}
}

func (u *usageTracker) Total() broker.TokenUsage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

func (u *usageTracker) Summary() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	calls := make([]subAgentCall, len(u.calls))
	copy(calls, u.calls)
	return map[string]any{
		"total_input_tokens":  u.total.InputTokens,
		"total_output_tokens": u.total.OutputTokens,
		"sub_agent_calls":     calls,
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
