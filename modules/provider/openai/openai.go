// Package openai provides an LLM provider for any API implementing the
// OpenAI chat completions interface (OpenAI, Mistral, Groq, vLLM, LiteLLM,
// etc.) via a configurable base_url.
package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cathlab/stackcheck/internal/provider"
)

// Provider is an OpenAI-compatible LLM provider.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New builds a provider from config.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Provider{
		config: cfg,
		logger: logger.With("component", "provider.openai"),
		// A transport-level response-header timeout instead of a global
		// client timeout: a global timeout would kill long SSE streams.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}, nil
}

// ContextWindowSize implements provider.Provider.
func (p *Provider) ContextWindowSize() int { return p.config.ContextWindow }

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string { return p.config.Model }

// Complete implements provider.Provider. Transient failures (rate limit,
// 5xx, connection reset) are retried with exponential backoff.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	oaiReq := buildRequest(p.config.Model, p.config.MaxTokens, req, false)

	op := func() (provider.CompletionResponse, error) {
		resp, err := p.doRequest(ctx, oaiReq)
		if err != nil {
			return provider.CompletionResponse{}, retryable(err)
		}
		defer resp.Body.Close() //nolint:errcheck // best-effort close

		if resp.StatusCode != http.StatusOK {
			return provider.CompletionResponse{}, retryable(handleErrorResponse(resp))
		}

		var oaiResp oaiResponse
		if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
			return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
		}
		return parseResponse(oaiResp), nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(p.config.MaxRetries)),
		backoff.WithMaxElapsedTime(2*time.Minute),
	)
}

// retryable marks transient provider errors for the backoff loop and wraps
// everything else as permanent.
func retryable(err error) error {
	if provider.IsRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

// Stream implements provider.Provider. The stream itself is not retried;
// only the caller decides whether a broken stream is worth replaying.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	oaiReq := buildRequest(p.config.Model, p.config.MaxTokens, req, true)

	resp, err := p.doRequest(ctx, oaiReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, handleErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ch := p.parseSSEStream(ctx, scanner, resp.Body)
	return ch, nil
}

var _ provider.Provider = (*Provider)(nil)
