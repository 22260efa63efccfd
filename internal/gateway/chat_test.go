package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/config"
	"github.com/cathlab/stackcheck/internal/device"
)

// stubRunner records the turn parameters and replays a scripted event
// sequence before closing the broker.
type stubRunner struct {
	mu        sync.Mutex
	uid       string
	sessionID string
	message   string
	events    []broker.Event
}

func (s *stubRunner) Run(ctx context.Context, brk *broker.Broker, uid, sessionID, message string) {
	s.mu.Lock()
	s.uid = uid
	s.sessionID = sessionID
	s.message = message
	events := s.events
	s.mu.Unlock()

	for _, ev := range events {
		if err := brk.Put(ctx, ev); err != nil {
			break
		}
	}
	brk.Close()
}

func testGateway(t *testing.T, cfg config.ServerConfig, runner TurnRunner) *Gateway {
	t.Helper()
	store := device.NewStore([]device.Device{
		{device.FieldID: "v1", device.FieldProductName: "Vecta 46"},
		{device.FieldID: "s1", device.FieldProductName: "Solitaire X"},
	})
	return New(cfg, runner, store, "test", slog.New(slog.DiscardHandler))
}

func postChat(t *testing.T, srv *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat/stream", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func readSSE(t *testing.T, body io.Reader) []broker.Event {
	t.Helper()
	var events []broker.Event
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		raw, ok := bytes.CutPrefix(line, []byte("data: "))
		if !ok {
			continue
		}
		var ev broker.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event %q: %v", raw, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan body: %v", err)
	}
	return events
}

func TestChatStreamDeliversEvents(t *testing.T) {
	runner := &stubRunner{events: []broker.Event{
		broker.StatusEvent("intent_agent", "Analyzing your question..."),
		broker.FinalChunkEvent("general_agent", "the answer"),
		broker.TurnCompleteEvent(1, broker.TokenUsage{InputTokens: 40, OutputTokens: 20}),
	}}
	g := testGateway(t, config.ServerConfig{}, runner)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp := postChat(t, srv, `{"uid":"u1","message":"hello","session_id":"sess-1"}`, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readSSE(t, resp.Body)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Type != broker.EventStatus {
		t.Errorf("events[0].Type = %q, want status", events[0].Type)
	}
	if events[1].Type != broker.EventFinalChunk || events[1].Data.Content != "the answer" {
		t.Errorf("final chunk = %+v", events[1])
	}
	if events[2].Type != broker.EventTurnComplete {
		t.Errorf("events[2].Type = %q, want turn_complete", events[2].Type)
	}
	if usage := events[2].Data.TokenUsage; usage == nil || usage.InputTokens != 40 {
		t.Errorf("turn usage = %+v", events[2].Data.TokenUsage)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.uid != "u1" || runner.sessionID != "sess-1" || runner.message != "hello" {
		t.Errorf("runner saw uid=%q session=%q message=%q", runner.uid, runner.sessionID, runner.message)
	}
}

func TestChatStreamGeneratesSessionID(t *testing.T) {
	runner := &stubRunner{}
	g := testGateway(t, config.ServerConfig{}, runner)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp := postChat(t, srv, `{"uid":"u1","message":"hello"}`, nil)
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.sessionID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestChatStreamRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown field", `{"uid":"u1","message":"hi","bogus":true}`},
		{"missing uid", `{"message":"hi"}`},
		{"missing message", `{"uid":"u1"}`},
		{"not json", `uid=u1`},
	}
	g := testGateway(t, config.ServerConfig{}, &stubRunner{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postChat(t, srv, tc.body, nil)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestChatStreamRateLimited(t *testing.T) {
	g := testGateway(t, config.ServerConfig{RequestsPerMin: 1}, &stubRunner{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp := postChat(t, srv, `{"uid":"u1","message":"first"}`, nil)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", resp.StatusCode)
	}

	resp = postChat(t, srv, `{"uid":"u1","message":"second"}`, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", resp.StatusCode)
	}

	// Other users are unaffected.
	resp = postChat(t, srv, `{"uid":"u2","message":"hi"}`, nil)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("other user status = %d, want 200", resp.StatusCode)
	}
}

func TestChatStreamAuth(t *testing.T) {
	cfg := config.ServerConfig{Auth: config.AuthConfig{BearerToken: "sekrit"}}
	g := testGateway(t, cfg, &stubRunner{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp := postChat(t, srv, `{"uid":"u1","message":"hi"}`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp = postChat(t, srv, `{"uid":"u1","message":"hi"}`, map[string]string{"Authorization": "Bearer wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", resp.StatusCode)
	}

	resp = postChat(t, srv, `{"uid":"u1","message":"hi"}`, map[string]string{"Authorization": "Bearer sekrit"})
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}

	// Health stays public.
	hr, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	hr.Body.Close()
	if hr.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", hr.StatusCode)
	}
}

func TestChatStreamBasicAuth(t *testing.T) {
	cfg := config.ServerConfig{Auth: config.AuthConfig{BasicUser: "svc", BasicPass: "pw"}}
	g := testGateway(t, cfg, &stubRunner{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/chat/stream", strings.NewReader(`{"uid":"u1","message":"hi"}`))
	req.SetBasicAuth("svc", "pw")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("basic auth status = %d, want 200", resp.StatusCode)
	}
}

// brokenPipeWriter simulates a client that disconnects mid-stream: writes
// succeed until failAfter, then every write errors.
type brokenPipeWriter struct {
	header    http.Header
	writes    int
	failAfter int
}

func (w *brokenPipeWriter) Header() http.Header { return w.header }
func (w *brokenPipeWriter) WriteHeader(int)     {}
func (w *brokenPipeWriter) Flush()              {}

func (w *brokenPipeWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.failAfter {
		return 0, errors.New("write: broken pipe")
	}
	return len(p), nil
}

func TestChatStreamDisconnectDrainsBroker(t *testing.T) {
	var events []broker.Event
	for range 8 {
		events = append(events, broker.FinalChunkEvent("general_agent", "chunk"))
	}

	before := runtime.NumGoroutine()

	for range 5 {
		g := testGateway(t, config.ServerConfig{}, &stubRunner{events: events})
		req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"uid":"u1","message":"hi"}`))
		w := &brokenPipeWriter{header: make(http.Header), failAfter: 1}

		done := make(chan struct{})
		go func() {
			g.handleChatStream(w, req)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not return after client writes started failing")
		}
	}

	// Every broker must wind down with its stream; a stranded forwarding
	// goroutine per disconnect shows up as a rising count here.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("goroutines = %d, want back to %d", runtime.NumGoroutine(), before)
}
