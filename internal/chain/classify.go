package chain

import (
	"context"
	"encoding/json"

	"github.com/cathlab/stackcheck/internal/provider"
)

// Classification places a compatibility query along three axes plus a
// result sub-type used to pick the output rendering.
type Classification struct {
	QueryMode  string  `json:"query_mode"`
	Framing    string  `json:"framing"`
	Structure  string  `json:"structure"`
	SubType    string  `json:"sub_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Map converts the classification into the loose form carried on the
// engine result contract.
func (c *Classification) Map() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return map[string]any{
		"query_mode": c.QueryMode,
		"framing":    c.Framing,
		"structure":  c.Structure,
		"sub_type":   c.SubType,
		"confidence": c.Confidence,
		"reasoning":  c.Reasoning,
	}
}

const classifierSystemPrompt = `You are a medical device query classifier. Given a user query and extracted device information, classify the query along three dimensions.

## Classification Schema

### query_mode — what is the user trying to accomplish?
- "exploratory": Open-ended, "what works with", "what can I use", wants options
- "specific": Named devices, yes/no question, "can I use X with Y"
- "comparison": "X or Y", "which is better", comparing options
- "discovery": Wants to find devices in a category that work with a named device
- "stack_validation": 3+ named devices, full setup check

### response_framing — what tone does the user expect?
- "positive": User expects/hopes it works ("Can I use X with Y?", hopeful tone)
- "negative": User expects it won't work ("I don't think X works with Y", skeptical)
- "neutral": No expectation either way ("Check if X works with Y", "List...")

### query_structure — what shape does the input take?
- "two_device": Exactly 2 named devices, no categories
- "multi_device": 3+ named devices
- "named_plus_category": At least 1 named device + at least 1 category mention
- "single_device": 1 named device, asking about its specs or what works with it
- "category_only": Only category mentions, no named devices

## Response Format
Return valid JSON only:
{
    "query_mode": "exploratory|specific|comparison|discovery|stack_validation",
    "framing": "positive|negative|neutral",
    "structure": "two_device|multi_device|named_plus_category|single_device|category_only",
    "sub_type": "COMPATIBILITY_CHECK|DEVICE_DISCOVERY|STACK_VALIDATION|SPEC_LOOKUP",
    "confidence": 0.0-1.0,
    "reasoning": "Brief explanation of classification"
}`

// Classifier is the LLM agent that classifies compatibility queries.
type Classifier struct {
	llm   provider.Provider
	model string
}

func NewClassifier(llm provider.Provider, model string) *Classifier {
	return &Classifier{llm: llm, model: model}
}

func (c *Classifier) Run(ctx context.Context, query string, devices map[string]DeviceRef, categories []string) (*Classification, provider.TokenUsage, error) {
	prompt, err := json.Marshal(map[string]any{
		"user_query": query,
		"devices":    devices,
		"categories": categories,
	})
	if err != nil {
		return nil, provider.TokenUsage{}, err
	}

	var result Classification
	usage, err := provider.CompleteJSON(ctx, c.llm, provider.CompletionRequest{
		System:   classifierSystemPrompt,
		Messages: []provider.LLMMessage{provider.User(string(prompt))},
		Model:    c.model,
	}, &result)
	if err != nil {
		return nil, usage, err
	}
	return &result, usage, nil
}
