package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cathlab/stackcheck/internal/vector"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New(Config{BaseURL: srv.URL, StoreID: "vs_test", APIKey: "sk-test", MaxRetries: 2})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearch(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/vector_stores/vs_test/search") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("OpenAI-Beta"); got != "assistants=v2" {
			t.Errorf("beta header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req searchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("request body: %v", err)
		}
		if req.Query != "flush protocol" || req.MaxNumResults != 20 {
			t.Errorf("request = %+v", req)
		}
		if req.Filters == nil || req.Filters.Type != "containsany" || len(req.Filters.Value) != 2 {
			t.Errorf("filters = %+v", req.Filters)
		}

		fmt.Fprint(w, `{"data": [
			{"score": 0.8, "file_id": "f1", "attributes": {"device_variant_id": "10"},
			 "content": [{"type": "text", "text": "flush with heparinized saline"}]}
		]}`)
	})

	results, err := s.Search(context.Background(), "flush protocol",
		vector.ContainsAny("device_variant_id", []string{"10", "11"}), 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0.8 || results[0].FileID != "f1" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Content[0].Text != "flush with heparinized saline" {
		t.Fatalf("content = %+v", results[0].Content)
	}
}

func TestSearchOmitsEmptyFilter(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "filters") {
			t.Errorf("filters serialized for nil filter: %s", body)
		}
		fmt.Fprint(w, `{"data": []}`)
	})

	results, err := s.Search(context.Background(), "anything", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": [{"score": 0.5, "file_id": "f1", "content": []}]}`)
	})

	results, err := s.Search(context.Background(), "q", nil, 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || calls.Load() != 2 {
		t.Fatalf("results = %+v, calls = %d", results, calls.Load())
	}
}

func TestSearchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "bad filter"}`)
	})

	if _, err := s.Search(context.Background(), "q", nil, 5); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("bad request retried: %d calls", calls.Load())
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("missing store_id accepted")
	}
}
