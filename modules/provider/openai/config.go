package openai

import (
	"errors"
	"time"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxTokens     = 4096
	defaultContextWindow = 128000
	defaultMaxRetries    = 3
)

// Config holds the provider configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	APIKey string

	// Model is the default model; per-request overrides win.
	Model string

	// MaxTokens is the fallback completion budget when a request
	// does not set one.
	MaxTokens int

	// Timeout bounds time-to-first-byte per request. Streaming bodies are
	// governed by the request context, not this timeout.
	Timeout time.Duration

	ContextWindow int

	// MaxRetries caps backoff retries on rate-limit and 5xx responses.
	MaxRetries int
}

func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = defaultContextWindow
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("openai: base_url is required")
	}
	if c.Model == "" {
		return errors.New("openai: model is required")
	}
	return nil
}
