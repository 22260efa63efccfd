package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/session"
)

const generalOutputSystem = `You are a medical device compatibility assistant.

## What You Handle

1. **Greetings**: "Hi", "Hello", "Hey there"
   -> Respond warmly but briefly. Mention you help with medical device compatibility.

2. **Scope questions**: "What can you do?", "What devices do you know about?"
   -> Explain: You help physicians check whether neurointerventional medical devices are physically compatible (fit together) based on dimensional specifications. You can check specific device pairs, validate multi-device stacks, and discover compatible devices by category.

3. **Out-of-scope**: Questions about drug interactions, clinical protocols, pricing, non-medical topics
   -> Politely redirect: "I specialize in medical device compatibility checking based on physical specifications. For [topic], please consult [appropriate resource]."

4. **Clarification needed**: Ambiguous device references, unclear intent
   -> Ask a specific clarifying question. Don't guess.

5. **Thanks/acknowledgment**: "Thanks!", "Got it"
   -> Brief acknowledgment. Offer to help with more device questions.`

// GeneralOutput answers greetings, scope questions, and anything that
// needs no engine, with recent history for context.
type GeneralOutput struct {
	llm   provider.Provider
	model string
}

func NewGeneralOutput(llm provider.Provider, model string) *GeneralOutput {
	return &GeneralOutput{llm: llm, model: model}
}

func (a *GeneralOutput) Run(ctx context.Context, brk *broker.Broker, history []session.Turn, query string) (string, provider.TokenUsage, error) {
	messages := make([]provider.LLMMessage, 0, len(history)+1)
	for _, h := range history {
		switch h.Role {
		case "user":
			messages = append(messages, provider.User(h.Content))
		case "assistant":
			messages = append(messages, provider.Assistant(h.Content))
		}
	}
	messages = append(messages, provider.User(query))

	return streamOut(ctx, a.llm, brk, "general_output_agent", provider.CompletionRequest{
		System:   generalOutputSystem,
		Messages: messages,
		Model:    a.model,
	})
}

const clarificationOutputSystem = `You are a medical device compatibility assistant. The user asked a question that references one or more devices you could not find in your device database.

Your job: Write a SHORT, helpful clarification message.

Rules:
1. Acknowledge what you DID find (if anything).
2. For each unresolved device name, explain it was not found.
3. If close-match suggestions are provided, present them naturally:
   - One suggestion: "Did you mean **[suggestion]**?"
   - Multiple suggestions: "Did you mean one of these: **[A]**, **[B]**, or **[C]**?"
4. If NO suggestions exist, ask the user to verify the full product name or check spelling.
5. Keep it conversational - one short paragraph, no bullet lists.
6. Do NOT attempt to answer the original question. Just ask for clarification.
7. Do NOT apologize excessively. Be direct and helpful.
8. Use **bold** for device names.`

// ClarificationOutput asks the user to disambiguate unresolved device
// names before a relational question is attempted.
type ClarificationOutput struct {
	llm   provider.Provider
	model string
}

func NewClarificationOutput(llm provider.Provider, model string) *ClarificationOutput {
	return &ClarificationOutput{llm: llm, model: model}
}

func (a *ClarificationOutput) Run(ctx context.Context, brk *broker.Broker, query string, resolved, notFound []string, suggestions map[string][]string) (string, provider.TokenUsage, error) {
	parts := []string{"User's original question: " + query}

	if len(resolved) > 0 {
		parts = append(parts, "Devices found in database: "+strings.Join(resolved, ", "))
	} else {
		parts = append(parts, "Devices found in database: none")
	}
	parts = append(parts, "Devices NOT found: "+strings.Join(notFound, ", "))

	if len(suggestions) > 0 {
		names := make([]string, 0, len(suggestions))
		for name := range suggestions {
			names = append(names, name)
		}
		sort.Strings(names)
		var lines []string
		for _, name := range names {
			if alts := suggestions[name]; len(alts) > 0 {
				lines = append(lines, fmt.Sprintf("  '%s' -> possible matches: %s", name, strings.Join(alts, ", ")))
			} else {
				lines = append(lines, fmt.Sprintf("  '%s' -> no close matches found", name))
			}
		}
		parts = append(parts, "Close match suggestions:\n"+strings.Join(lines, "\n"))
	} else {
		parts = append(parts, "Close match suggestions: none available")
	}
	parts = append(parts, "Generate a clarification message.")

	return streamOut(ctx, a.llm, brk, "clarification_output_agent", provider.CompletionRequest{
		System:   clarificationOutputSystem,
		Messages: []provider.LLMMessage{provider.User(strings.Join(parts, "\n\n"))},
		Model:    a.model,
	})
}
