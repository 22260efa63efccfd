package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// Redactor replaces secret values in strings with a redaction
// placeholder. It combines regex matching for well-known API key
// formats with literal matching for secrets loaded from configuration
// (the provider API key, the vector store key, the gateway bearer
// token). All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with patterns for the API
// key formats this service handles.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// OpenAI keys, both legacy and project-scoped.
			regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{20,}`),
			// Bearer tokens in captured headers or error strings.
			regexp.MustCompile(`Bearer [a-zA-Z0-9\-._~+/]{16,}=*`),
		},
	}
}

// AddLiteral registers a runtime secret that should be redacted on
// sight. Empty and very short strings are ignored so a blank config
// field cannot turn the redactor into a noise generator.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 8 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces all known secret patterns and literal values in s
// with RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	return s
}
