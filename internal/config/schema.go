// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for stackcheck.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version" validate:"required,eq=1"`

	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider" validate:"required"`
	Catalog  CatalogConfig  `yaml:"catalog" validate:"required"`
	Session  SessionConfig  `yaml:"session"`
	Vector   VectorConfig   `yaml:"vector"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Auth, when configured, protects the chat endpoint.
	Auth AuthConfig `yaml:"auth"`

	// RequestsPerMin rate-limits chat turns per user. Zero uses the
	// default; negative disables limiting.
	RequestsPerMin int `yaml:"requests_per_min"`
}

// AuthConfig configures gateway authentication. Empty means open access.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any auth method is set.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// ProviderConfig configures the LLM provider.
type ProviderConfig struct {
	// BaseURL is the chat-completions endpoint root
	// (any OpenAI-compatible API).
	BaseURL string `yaml:"base_url" validate:"required,url"`
	APIKey  string `yaml:"api_key"`

	// Model is the provider default, overridable per agent via
	// AGENT_<NAME>_MODEL or the fast-tier model.
	Model     string        `yaml:"model" validate:"required"`
	FastModel string        `yaml:"fast_model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	// ContextWindow is the model context window in tokens.
	ContextWindow int `yaml:"context_window"`
}

// CatalogConfig locates the device catalog snapshot.
type CatalogConfig struct {
	// Path is a JSON file holding the full device catalog,
	// loaded once at startup.
	Path string `yaml:"path" validate:"required"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Path is the SQLite database file. Defaults to {DataDir}/sessions.db.
	Path string `yaml:"path"`

	// IdleTTL is how long an untouched session survives before the
	// periodic sweep removes it. Zero disables the sweep.
	IdleTTL time.Duration `yaml:"idle_ttl"`

	// SweepSchedule is a cron expression for the idle sweep.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// VectorConfig configures the vector store client.
type VectorConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`

	// DeviceStoreID indexes IFU and spec documents.
	DeviceStoreID string `yaml:"device_store_id"`

	// GuidelineStoreID indexes clinical guideline documents. Searched
	// as a fallback when a query carries no device filter.
	GuidelineStoreID string `yaml:"guideline_store_id"`

	Timeout time.Duration `yaml:"timeout"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`

	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// LogConfig controls process logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is "text" or "json".
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

const (
	defaultBind            = "127.0.0.1:8080"
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 0 // streaming responses must not be cut off
	defaultShutdownTimeout = 10 * time.Second
	defaultCallTimeout     = 30 * time.Second
	defaultMaxTokens       = 4096
	defaultContextWindow   = 128000
	defaultSweepSchedule   = "@hourly"
)

// Defaults fills unset fields in place.
func (c *Config) Defaults() {
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = defaultCallTimeout
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = defaultMaxTokens
	}
	if c.Provider.ContextWindow == 0 {
		c.Provider.ContextWindow = defaultContextWindow
	}
	if c.Vector.Timeout == 0 {
		c.Vector.Timeout = defaultCallTimeout
	}
	if c.Session.SweepSchedule == "" {
		c.Session.SweepSchedule = defaultSweepSchedule
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "stackcheck"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}
