package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding markdown code fence from a JSON-mode
// response. Models wrap JSON in ```json ... ``` despite instructions;
// already-bare JSON passes through unchanged.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CompleteJSON performs a JSON-mode completion and decodes the response
// into out. Markdown fences are stripped before decoding. The usage record
// is returned even when decoding fails so callers can account for tokens.
func CompleteJSON(ctx context.Context, p Provider, req CompletionRequest, out any) (TokenUsage, error) {
	req.JSONMode = true

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return TokenUsage{}, err
	}

	raw := StripFences(resp.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return resp.Usage, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	return resp.Usage, nil
}
