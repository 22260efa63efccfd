package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/provider/providertest"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"no closing fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := provider.StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompleteJSON(t *testing.T) {
	mock := &providertest.Mock{
		Responses: []provider.CompletionResponse{{
			Content: "```json\n{\"intent\": \"equipment_compatibility\", \"confidence\": 0.9}\n```",
			Usage:   provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
		}},
	}

	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	usage, err := provider.CompleteJSON(context.Background(), mock, provider.CompletionRequest{}, &out)
	if err != nil {
		t.Fatalf("CompleteJSON error: %v", err)
	}
	if out.Intent != "equipment_compatibility" || out.Confidence != 0.9 {
		t.Errorf("decoded %+v", out)
	}
	if usage.PromptTokens != 10 || usage.CompletionTokens != 5 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestCompleteJSONMalformed(t *testing.T) {
	mock := &providertest.Mock{
		Responses: []provider.CompletionResponse{{
			Content: "sorry, I cannot respond in JSON",
			Usage:   provider.TokenUsage{PromptTokens: 3, CompletionTokens: 7},
		}},
	}

	var out map[string]any
	usage, err := provider.CompleteJSON(context.Background(), mock, provider.CompletionRequest{}, &out)
	if !errors.Is(err, provider.ErrBadJSON) {
		t.Fatalf("err = %v, want ErrBadJSON", err)
	}
	// Usage still accounted on parse failure.
	if usage.CompletionTokens != 7 {
		t.Errorf("usage lost on parse failure: %+v", usage)
	}
}
