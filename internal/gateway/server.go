package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler constructs the chi mux with all routes wired.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public.
	r.Get("/health", g.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Chat. Auth only when configured.
	r.Group(func(r chi.Router) {
		if g.cfg.Auth.IsConfigured() {
			r.Use(authMiddleware(g.cfg.Auth))
		}
		r.Post("/chat/stream", g.handleChatStream)
	})

	return r
}
