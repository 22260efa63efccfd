package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
version: "1"
provider:
  base_url: http://localhost:9999/v1
  model: test-model
catalog:
  path: devices.json
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Bind != defaultBind {
		t.Errorf("default bind = %q, want %q", cfg.Server.Bind, defaultBind)
	}
	if cfg.Provider.Timeout != defaultCallTimeout {
		t.Errorf("default timeout = %v, want %v", cfg.Provider.Timeout, defaultCallTimeout)
	}
	if cfg.Provider.MaxTokens != defaultMaxTokens {
		t.Errorf("default max_tokens = %d, want %d", cfg.Provider.MaxTokens, defaultMaxTokens)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("default log = %q/%q", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("STACKCHECK_TEST_MODEL", "env-model")

	body := `
version: "1"
provider:
  base_url: ${STACKCHECK_TEST_URL:-http://localhost:9999/v1}
  model: ${STACKCHECK_TEST_MODEL}
catalog:
  path: devices.json
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.Model != "env-model" {
		t.Errorf("model = %q, want env-model", cfg.Provider.Model)
	}
	if cfg.Provider.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("base_url = %q, default not applied", cfg.Provider.BaseURL)
	}
}

func TestLoadUnresolvedVariable(t *testing.T) {
	body := `
version: "1"
provider:
  base_url: ${STACKCHECK_DEFINITELY_UNSET_VAR}
  model: m
catalog:
  path: devices.json
`
	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "STACKCHECK_DEFINITELY_UNSET_VAR") {
		t.Fatalf("Load() = %v, want unresolved variable error", err)
	}
}

func TestLoadValidation(t *testing.T) {
	body := `
version: "1"
provider:
  base_url: not-a-url
  model: m
catalog:
  path: devices.json
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("Load() accepted invalid base_url")
	}
}

func TestModelResolution(t *testing.T) {
	r := NewModelResolver(ProviderConfig{Model: "default-model", FastModel: "fast-model"})

	t.Run("agent override wins", func(t *testing.T) {
		t.Setenv("AGENT_INTENT_CLASSIFIER_MODEL", "override")
		if got := r.Resolve("intent_classifier"); got != "override" {
			t.Errorf("Resolve = %q, want override", got)
		}
	})

	t.Run("fast agent gets fast tier", func(t *testing.T) {
		if got := r.Resolve("input_rewriter"); got != "fast-model" {
			t.Errorf("Resolve = %q, want fast-model", got)
		}
	})

	t.Run("global env beats default for slow agents", func(t *testing.T) {
		t.Setenv("LLM_MODEL", "global")
		if got := r.Resolve("chain_output"); got != "global" {
			t.Errorf("Resolve = %q, want global", got)
		}
	})

	t.Run("provider default", func(t *testing.T) {
		if got := r.Resolve("chain_output"); got != "default-model" {
			t.Errorf("Resolve = %q, want default-model", got)
		}
	})
}
