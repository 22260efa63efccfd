package orchestrator

import (
	"context"

	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/session"
)

const rewriterPrompt = `You are the INPUT REWRITER for a medical device compatibility system.

Rules:
- DO NOT invent any new information.
- DO NOT add nouns or device types not present.
- DO NOT hallucinate (e.g., "cat 5 cable" is forbidden).
- DO NOT reinterpret alphanumeric shorthand (e.g., "cat 5", "c5", "p7", "r71") as non-medical objects.
- Only resolve pronouns if clearly supported by recent conversation messages.
- If rewrite is unnecessary, return the input unchanged.
- Identify any explicit source mentions from the user's message (e.g., "IFU", "510k", "company website").
- DO NOT infer or guess sources — only include those explicitly named by the user.

For follow-up queries, use conversation history to:
- Resolve "what about X instead of Y" (substitution)
- Resolve "what if I add X" (addition)
- Resolve "without X" (removal)
- Resolve spec follow-ups to previous device context
- Resolve category swaps while carrying forward device context
- If completely new topic, don't carry forward previous context

Return STRICT JSON:
{
  "rewritten_user_prompt": "<string>",
  "source_filter": ["<string>", ...]
}`

// Rewritten is the rewriter's output: the normalized query plus any
// sources the user explicitly named.
type Rewritten struct {
	RewrittenUserPrompt string   `json:"rewritten_user_prompt"`
	SourceFilter        []string `json:"source_filter"`
}

// InputRewriter normalizes the raw query and resolves follow-ups against
// recent history.
type InputRewriter struct {
	llm   provider.Provider
	model string
}

func NewInputRewriter(llm provider.Provider, model string) *InputRewriter {
	return &InputRewriter{llm: llm, model: model}
}

func (r *InputRewriter) Run(ctx context.Context, history []session.Turn, raw string) (*Rewritten, provider.TokenUsage, error) {
	messages := make([]provider.LLMMessage, 0, len(history)+1)
	for _, h := range history {
		switch h.Role {
		case "user":
			messages = append(messages, provider.User(h.Content))
		case "assistant":
			messages = append(messages, provider.Assistant(h.Content))
		}
	}
	messages = append(messages, provider.User(raw))

	var result Rewritten
	usage, err := provider.CompleteJSON(ctx, r.llm, provider.CompletionRequest{
		System:   rewriterPrompt,
		Messages: messages,
		Model:    r.model,
	}, &result)
	if err != nil {
		return nil, usage, err
	}
	return &result, usage, nil
}
