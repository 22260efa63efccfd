// Package gateway is the HTTP surface: the SSE chat stream, health, and
// Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/config"
	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/security"
)

// TurnRunner executes one conversation turn, emitting events on the
// broker and closing it when done.
type TurnRunner interface {
	Run(ctx context.Context, brk *broker.Broker, uid, sessionID, message string)
}

// Gateway serves the HTTP API.
type Gateway struct {
	cfg      config.ServerConfig
	runner   TurnRunner
	devices  *device.Store
	version  string
	limiter  *security.RateLimiter
	validate *validator.Validate
	log      *slog.Logger
	server   *http.Server
}

func New(cfg config.ServerConfig, runner TurnRunner, devices *device.Store, version string, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		cfg:      cfg,
		runner:   runner,
		devices:  devices,
		version:  version,
		limiter:  security.NewRateLimiter(cfg.RequestsPerMin),
		validate: validator.New(),
		log:      log,
	}
}

// Start begins serving in a background goroutine.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.log.Info("gateway listening", "addr", g.cfg.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	g.log.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
