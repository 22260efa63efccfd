package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/security"
)

// chatRequest is the POST /chat/stream body.
type chatRequest struct {
	UID       string `json:"uid" validate:"required,max=128"`
	Message   string `json:"message" validate:"required,max=8000"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

// handleChatStream accepts one chat turn and streams its events back as
// SSE. The stream stays open until the orchestrator closes the broker or
// the client goes away.
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		turnsRejected.WithLabelValues("bad_json").Inc()
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.validate.Struct(req); err != nil {
		turnsRejected.WithLabelValues("validation").Inc()
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.limiter.Allow(req.UID); err != nil {
		if errors.Is(err, security.ErrRateLimited) {
			turnsRejected.WithLabelValues("rate_limited").Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		turnsRejected.WithLabelValues("no_flush").Inc()
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := otel.Tracer("gateway").Start(r.Context(), "chat.turn", trace.WithAttributes(
		attribute.String("chat.uid", req.UID),
		attribute.String("chat.session_id", sessionID),
	))
	defer span.End()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	turnsStarted.Inc()
	activeStreams.Inc()
	defer activeStreams.Dec()
	start := time.Now()
	defer func() { turnDuration.Observe(time.Since(start).Seconds()) }()

	brk := broker.New(req.UID, sessionID)
	go g.runner.Run(ctx, brk, req.UID, sessionID, req.Message)

	g.log.Info("chat stream opened", "uid", req.UID, "session_id", sessionID)
	clientGone := false
	for ev := range brk.Events() {
		if clientGone {
			continue
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			g.log.Error("event marshal failed", "uid", req.UID, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			// Client gone. The request context cancels so the
			// orchestrator unwinds, but the broker must still be
			// drained until it closes or its forwarding goroutine
			// blocks forever on the undelivered event.
			g.log.Info("chat stream client disconnected", "uid", req.UID)
			clientGone = true
			continue
		}
		flusher.Flush()
		eventsStreamed.WithLabelValues(string(ev.Type)).Inc()
	}
	g.log.Info("chat stream closed", "uid", req.UID, "session_id", sessionID)
}
