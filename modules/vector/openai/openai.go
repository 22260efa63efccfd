// Package openai implements the vector store contract against the OpenAI
// Vector Stores search API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/vector"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3

	maxErrorBodySize = 4096
)

// Config holds the store configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	APIKey string

	// StoreID is the vector store to search, e.g. "vs_...".
	StoreID string

	// Timeout bounds time-to-first-byte per request.
	Timeout time.Duration

	// MaxRetries caps backoff retries on rate-limit and 5xx responses.
	MaxRetries int
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) validate() error {
	if c.StoreID == "" {
		return errors.New("vector openai: store_id is required")
	}
	return nil
}

// Store searches one OpenAI vector store.
type Store struct {
	config Config
	client *http.Client
}

// New builds a store client from config.
func New(cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Store{
		config: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}, nil
}

type searchRequest struct {
	Query         string         `json:"query"`
	MaxNumResults int            `json:"max_num_results"`
	Filters       *vector.Filter `json:"filters,omitempty"`
}

type searchResponse struct {
	Data []vector.Result `json:"data"`
}

// Search implements vector.Store. Transient failures (rate limit, 5xx,
// connection reset) are retried with exponential backoff.
func (s *Store) Search(ctx context.Context, query string, filter *vector.Filter, maxResults int) ([]vector.Result, error) {
	body := searchRequest{
		Query:         query,
		MaxNumResults: maxResults,
		Filters:       filter,
	}

	op := func() ([]vector.Result, error) {
		resp, err := s.doRequest(ctx, body)
		if err != nil {
			return nil, retryable(err)
		}
		defer resp.Body.Close() //nolint:errcheck // best-effort close

		if resp.StatusCode != http.StatusOK {
			return nil, retryable(handleErrorResponse(resp))
		}

		var parsed searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return parsed.Data, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.config.MaxRetries)),
		backoff.WithMaxElapsedTime(2*time.Minute),
	)
}

func (s *Store) doRequest(ctx context.Context, body searchRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := s.config.BaseURL + "/vector_stores/" + s.config.StoreID + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return resp, nil
}

func retryable(err error) error {
	if provider.IsRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, resp.StatusCode, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

var _ vector.Store = (*Store)(nil)
