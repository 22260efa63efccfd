package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/engine"
)

// stubStore records the last search and returns a scripted result set.
type stubStore struct {
	results    []Result
	err        error
	lastQuery  string
	lastFilter *Filter
	calls      int
}

func (s *stubStore) Search(_ context.Context, query string, filter *Filter, _ int) ([]Result, error) {
	s.calls++
	s.lastQuery = query
	s.lastFilter = filter
	return s.results, s.err
}

func textResult(score float64, fileID, text string) Result {
	return Result{
		Score:  score,
		FileID: fileID,
		Content: []Content{
			{Type: "text", Text: text},
			{Type: "image", Text: "ignored"},
		},
	}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRunScopedSearch(t *testing.T) {
	docs := &stubStore{results: []Result{
		textResult(0.8, "f1", "flush the catheter before use"),
		textResult(0.3, "f2", "below the score floor"),
		textResult(0.6, "f3", "advance under fluoroscopy"),
	}}
	guidelines := &stubStore{}

	e := NewEngine(docs, guidelines, discard())
	result := e.Run(context.Background(), Input{
		Query: "how do I prep the headway",
		Devices: []device.Group{
			{ProductName: "Headway 21", IDs: []string{"10", "11"}},
		},
	})

	if result.Status != engine.StatusComplete {
		t.Fatalf("status = %s", result.Status)
	}
	if docs.lastFilter == nil || docs.lastFilter.Type != "containsany" ||
		docs.lastFilter.Key != "device_variant_id" || len(docs.lastFilter.Value) != 2 {
		t.Fatalf("filter = %+v", docs.lastFilter)
	}
	if guidelines.calls != 0 {
		t.Fatal("guideline store searched despite a device filter")
	}

	chunks, _ := result.Data["chunks"].([]Chunk)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %+v", chunks)
	}
	if chunks[0].Score != 0.8 || chunks[1].Score != 0.6 {
		t.Fatalf("chunks not score-ordered: %+v", chunks)
	}
	if result.Confidence != 0.8 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
	ctx, _ := result.Data["device_context"].(map[string]any)
	if _, ok := ctx["Headway 21"]; !ok {
		t.Fatalf("device_context = %v", ctx)
	}
}

func TestRunUnscopedSearchWidensToGuidelines(t *testing.T) {
	docs := &stubStore{results: []Result{textResult(0.5, "d1", "doc passage")}}
	guidelines := &stubStore{results: []Result{textResult(0.9, "g1", "guideline passage")}}

	e := NewEngine(docs, guidelines, discard())
	result := e.Run(context.Background(), Input{Query: "what does the thrombectomy guideline say"})

	if docs.lastFilter != nil {
		t.Fatalf("filter = %+v, want none", docs.lastFilter)
	}
	if guidelines.calls != 1 {
		t.Fatalf("guideline calls = %d", guidelines.calls)
	}

	chunks, _ := result.Data["chunks"].([]Chunk)
	if len(chunks) != 2 || chunks[0].Source != "guidelines" || chunks[1].Source != "documents" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestRunGuidelineFailureDegrades(t *testing.T) {
	docs := &stubStore{results: []Result{textResult(0.5, "d1", "doc passage")}}
	guidelines := &stubStore{err: errors.New("store offline")}

	e := NewEngine(docs, guidelines, discard())
	result := e.Run(context.Background(), Input{Query: "anything"})

	if result.Status != engine.StatusComplete {
		t.Fatalf("status = %s, want complete from doc results alone", result.Status)
	}
	if chunks, _ := result.Data["chunks"].([]Chunk); len(chunks) != 1 {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestRunDocStoreFailureIsError(t *testing.T) {
	docs := &stubStore{err: errors.New("store offline")}
	e := NewEngine(docs, nil, discard())

	result := e.Run(context.Background(), Input{Query: "anything"})
	if result.Status != engine.StatusError || result.Confidence != 0 {
		t.Fatalf("result = %+v", result)
	}
	if msg, _ := result.Data["message"].(string); !strings.Contains(msg, "search failed") {
		t.Fatalf("message = %q", msg)
	}
}

func TestRunNoResults(t *testing.T) {
	docs := &stubStore{results: []Result{textResult(0.2, "d1", "too weak")}}
	e := NewEngine(docs, nil, discard())

	result := e.Run(context.Background(), Input{
		Query:   "anything",
		Devices: []device.Group{{ProductName: "Headway 21", IDs: []string{"10"}}},
	})
	if result.Status != engine.StatusNoResults {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Confidence != 0.1 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
	if count, _ := result.Data["chunk_count"].(int); count != 0 {
		t.Fatalf("chunk_count = %v", result.Data["chunk_count"])
	}
}

func TestConfidenceCapped(t *testing.T) {
	docs := &stubStore{results: []Result{textResult(0.99, "d1", "near-perfect hit")}}
	e := NewEngine(docs, nil, discard())

	result := e.Run(context.Background(), Input{
		Query:   "anything",
		Devices: []device.Group{{ProductName: "X", IDs: []string{"1"}}},
	})
	if result.Confidence != 0.95 {
		t.Fatalf("confidence = %v, want capped at 0.95", result.Confidence)
	}
	if top, _ := result.Data["top_score"].(float64); top != 0.99 {
		t.Fatalf("top_score = %v", result.Data["top_score"])
	}
}

func TestChunkCapAtTen(t *testing.T) {
	var results []Result
	for i := 0; i < 15; i++ {
		results = append(results, textResult(0.5+float64(i)*0.01, "f", fmt.Sprintf("chunk %d", i)))
	}
	docs := &stubStore{results: results}
	e := NewEngine(docs, nil, discard())

	result := e.Run(context.Background(), Input{
		Query:   "anything",
		Devices: []device.Group{{ProductName: "X", IDs: []string{"1"}}},
	})
	chunks, _ := result.Data["chunks"].([]Chunk)
	if len(chunks) != MaxChunks {
		t.Fatalf("chunks = %d, want %d", len(chunks), MaxChunks)
	}
	if chunks[0].Text != "chunk 14" {
		t.Fatalf("best chunk = %q", chunks[0].Text)
	}
}
