package vector

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/engine"
)

// EngineName is the identifier used on the result contract and by the
// planner.
const EngineName = "vector_engine"

// ResultType tags every vector-search result.
const ResultType = "vector_search"

const (
	// MinScore drops low-relevance chunks as noise.
	MinScore = 0.4
	// MaxChunks caps what reaches the output agent.
	MaxChunks = 10

	// maxRawResults is requested from the store before local filtering.
	maxRawResults = 20

	// filterKey is the document attribute holding catalog variant ids.
	filterKey = "device_variant_id"
)

// Chunk is one retrieved passage.
type Chunk struct {
	Text       string         `json:"text"`
	FileID     string         `json:"file_id"`
	Score      float64        `json:"score"`
	Attributes map[string]any `json:"attributes"`
	// Source names the store the chunk came from when more than one was
	// searched.
	Source string `json:"source,omitempty"`
}

// Input is one vector-engine request.
type Input struct {
	Query          string
	Devices        []device.Group
	Classification map[string]any
}

// Engine runs scoped semantic search over the document store. When the
// query names no devices there is nothing to scope by, so the search
// widens to the guideline store as well.
type Engine struct {
	docs       Store
	guidelines Store // optional
	log        *slog.Logger
}

func NewEngine(docs, guidelines Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{docs: docs, guidelines: guidelines, log: log}
}

// Run searches, filters by score, and returns the top chunks.
func (e *Engine) Run(ctx context.Context, in Input) engine.Result {
	var variantIDs []string
	for _, g := range in.Devices {
		variantIDs = append(variantIDs, g.IDs...)
	}

	var filter *Filter
	if len(variantIDs) > 0 {
		filter = ContainsAny(filterKey, variantIDs)
		e.log.Debug("scoped vector search", "variant_ids", len(variantIDs))
	} else {
		e.log.Debug("unscoped vector search, including guideline store")
	}

	results, err := e.docs.Search(ctx, in.Query, filter, maxRawResults)
	if err != nil {
		return engine.Result{
			Status:     engine.StatusError,
			Engine:     EngineName,
			ResultType: ResultType,
			Data: map[string]any{
				"message": "vector store search failed: " + err.Error(),
				"chunks":  []Chunk{},
			},
			Classification: in.Classification,
			Confidence:     0,
		}
	}
	chunks := collectChunks(results, "documents")

	if filter == nil && e.guidelines != nil {
		guidelineResults, err := e.guidelines.Search(ctx, in.Query, nil, maxRawResults)
		if err != nil {
			e.log.Warn("guideline store search failed", "error", err)
		} else {
			chunks = append(chunks, collectChunks(guidelineResults, "guidelines")...)
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > MaxChunks {
		chunks = chunks[:MaxChunks]
	}

	topScore := 0.0
	status := engine.StatusNoResults
	confidence := 0.1
	if len(chunks) > 0 {
		topScore = chunks[0].Score
		status = engine.StatusComplete
		confidence = topScore
		if confidence > 0.95 {
			confidence = 0.95
		}
	}
	e.log.Info("vector search done",
		"raw", len(results), "chunks", len(chunks), "top_score", topScore)

	deviceContext := make(map[string]any, len(in.Devices))
	for _, g := range in.Devices {
		deviceContext[g.ProductName] = map[string]any{"ids": g.IDs}
	}

	return engine.Result{
		Status:     status,
		Engine:     EngineName,
		ResultType: ResultType,
		Data: map[string]any{
			"query":          in.Query,
			"chunks":         chunks,
			"device_context": deviceContext,
			"chunk_count":    len(chunks),
			"top_score":      topScore,
		},
		Classification: in.Classification,
		Confidence:     confidence,
	}
}

// collectChunks flattens scored results into text chunks, dropping
// sub-threshold scores and non-text content.
func collectChunks(results []Result, source string) []Chunk {
	var chunks []Chunk
	for _, r := range results {
		if r.Score < MinScore {
			continue
		}
		for _, item := range r.Content {
			if item.Type != "text" {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:       item.Text,
				FileID:     r.FileID,
				Score:      r.Score,
				Attributes: r.Attributes,
				Source:     source,
			})
		}
	}
	return chunks
}
