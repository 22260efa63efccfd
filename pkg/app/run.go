// Package app provides the shared entry point for the stackcheck binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/clinical"
	"github.com/cathlab/stackcheck/internal/config"
	"github.com/cathlab/stackcheck/internal/cron"
	"github.com/cathlab/stackcheck/internal/dbengine"
	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/gateway"
	"github.com/cathlab/stackcheck/internal/orchestrator"
	"github.com/cathlab/stackcheck/internal/security"
	"github.com/cathlab/stackcheck/internal/vector"
	openaiprov "github.com/cathlab/stackcheck/modules/provider/openai"
	sqlitestore "github.com/cathlab/stackcheck/modules/session/sqlite"
	openaivec "github.com/cathlab/stackcheck/modules/vector/openai"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// Run loads configuration, wires the engines and the gateway, and blocks
// until a shutdown signal is received.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	// Secrets go into the redactor before the first log line.
	redactor := security.NewRedactor()
	redactor.AddLiteral(cfg.Provider.APIKey)
	redactor.AddLiteral(cfg.Vector.APIKey)
	redactor.AddLiteral(cfg.Server.Auth.BearerToken)
	redactor.AddLiteral(cfg.Server.Auth.BasicPass)
	logger := newLogger(cfg.Log, redactor)

	logger.Info("starting stackcheck",
		"version", params.Version,
		"config", cfgPath,
	)

	shutdownTracing, err := setupTracing(context.Background(), cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	devices, err := device.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "devices", devices.Len())

	sessionPath := cfg.Session.Path
	if sessionPath == "" {
		sessionPath = filepath.Join(DefaultDataDir(), "sessions.db")
	}
	if err := os.MkdirAll(filepath.Dir(sessionPath), 0o755); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	sessions, err := sqlitestore.Open(sessionPath)
	if err != nil {
		return err
	}
	defer sessions.Close()

	llm, err := openaiprov.New(openaiprov.Config{
		BaseURL:       cfg.Provider.BaseURL,
		APIKey:        cfg.Provider.APIKey,
		Model:         cfg.Provider.Model,
		MaxTokens:     cfg.Provider.MaxTokens,
		Timeout:       cfg.Provider.Timeout,
		ContextWindow: cfg.Provider.ContextWindow,
	}, logger)
	if err != nil {
		return err
	}

	docStore, err := vectorStore(cfg.Vector, cfg.Vector.DeviceStoreID)
	if err != nil {
		return err
	}
	guidelineStore, err := vectorStore(cfg.Vector, cfg.Vector.GuidelineStoreID)
	if err != nil {
		return err
	}

	models := config.NewModelResolver(cfg.Provider)
	engines := orchestrator.Engines{
		Chain:    chain.NewEngine(llm, models.Resolve("query_classifier"), models.Resolve("chain_builder"), logger),
		Database: dbengine.NewEngine(llm, models.Resolve("database_query"), logger),
		Vector:   vector.NewEngine(docStore, guidelineStore, logger),
		Clinical: clinical.NewEngine(guidelineStore, logger),
	}

	orch := orchestrator.New(llm, models, devices, sessions, engines, logger)
	gw := gateway.New(cfg.Server, orch, devices, params.Version, logger)

	scheduler := cron.NewScheduler(logger)
	if cfg.Session.IdleTTL > 0 {
		job := &cron.SessionSweepJob{
			Store:        sessions,
			IdleTTL:      cfg.Session.IdleTTL,
			Logger:       logger,
			ScheduleExpr: cfg.Session.SweepSchedule,
		}
		if err := scheduler.RegisterJob(job); err != nil {
			return err
		}
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	if err := gw.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// vectorStore builds one OpenAI vector store client, or nil when no
// store id is configured. The engines treat a nil store as absent.
func vectorStore(cfg config.VectorConfig, storeID string) (vector.Store, error) {
	if storeID == "" {
		return nil, nil
	}
	s, err := openaivec.New(openaivec.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		StoreID: storeID,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newLogger builds the process logger: a text or JSON handler wrapped in
// the secret-redacting handler.
func newLogger(cfg config.LogConfig, redactor *security.Redactor) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/stackcheck/stackcheck.yaml →
// ~/.config/stackcheck/stackcheck.yaml → ./stackcheck.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "stackcheck", "stackcheck.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "stackcheck", "stackcheck.yaml"))
	}

	candidates = append(candidates, "stackcheck.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/stackcheck if set, otherwise ~/.local/share/stackcheck.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "stackcheck")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "stackcheck")
}
