package clinical

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/vector"
)

const (
	// EngineName identifies this engine in orchestrator results.
	EngineName = "clinical_engine"

	// ResultTypeAssessment is a complete eligibility assessment.
	ResultTypeAssessment = "clinical_assessment"
	// ResultTypeClarification asks for missing critical parameters.
	ResultTypeClarification = "clinical_clarification"

	maxGuidelineResults = 5
	maxGuidelineChars   = 2000
)

// Input is the engine request. RawQuery is preferred for parsing since
// rewriting can normalize away clinical abbreviations.
type Input struct {
	Query    string
	RawQuery string
}

// GuidelineContext is one guideline excerpt retrieved for an edge case.
type GuidelineContext struct {
	ForTreatment   string   `json:"for_treatment"`
	Text           string   `json:"text"`
	Query          string   `json:"query"`
	TrialsSearched []string `json:"trials_searched,omitempty"`
	ChunkCount     int      `json:"chunk_count"`
	TopScore       float64  `json:"top_score"`
}

// Engine grades treatment eligibility. The guideline store is optional;
// without it edge cases are reported unresolved.
type Engine struct {
	rules      *RuleSet
	trials     *TrialIndex
	guidelines vector.Store
	log        *slog.Logger
}

func NewEngine(guidelines vector.Store, log *slog.Logger) *Engine {
	return &Engine{
		rules:      NewRuleSet(),
		trials:     NewTrialIndex(),
		guidelines: guidelines,
		log:        log.With("engine", EngineName),
	}
}

// Run parses the presentation, gates on completeness, evaluates every
// pathway and enriches edge cases with trial metrics and guideline text.
func (e *Engine) Run(ctx context.Context, in Input) engine.Result {
	text := in.RawQuery
	if text == "" {
		text = in.Query
	}

	p := ParseRecord(text)
	e.log.Info("parsed patient record",
		"lkw", ptrVal(p.LastKnownWellHours), "nihss", ptrVal(p.NIHSS),
		"aspects", ptrVal(p.ASPECTS), "lvo", p.LVO)

	completeness := AssessCompleteness(p)
	if completeness.ShouldClarify {
		e.log.Info("missing critical parameters",
			"missing", len(completeness.MissingCritical))
		return engine.Result{
			Status:     engine.StatusNeedsClarification,
			Engine:     EngineName,
			ResultType: ResultTypeClarification,
			Data: map[string]any{
				"patient":      p,
				"completeness": completeness,
			},
			Classification: map[string]any{"intent_type": "clinical_support"},
			Confidence:     0,
		}
	}

	if p.MRSPre == nil {
		// Trial-population default, recorded in completeness assumptions.
		zero := 0
		p.MRSPre = &zero
	}

	results := e.rules.EvaluateAll(p)
	trialContext := e.trials.LookupAll(referencedTrials(results))

	var edges []PathwayResult
	for _, r := range results {
		if r.NeedsGuidelineSearch {
			edges = append(edges, r)
		}
	}
	unresolved := e.unresolvedEdges(edges, p)

	confidence := 0.95
	var guidelineContext []GuidelineContext
	if len(unresolved) > 0 && e.guidelines != nil {
		guidelineContext = e.searchGuidelines(ctx, unresolved, p, trialContext)
		confidence = 0.8
	}

	flagged := make([]string, 0, len(edges))
	for _, r := range edges {
		flagged = append(flagged, r.Treatment)
	}

	return engine.Result{
		Status:     engine.StatusComplete,
		Engine:     EngineName,
		ResultType: ResultTypeAssessment,
		Data: map[string]any{
			"patient":        p,
			"eligibility":    results,
			"edge_cases":     flagged,
			"trial_context":  trialContext,
			"vector_context": guidelineContext,
			"completeness":   completeness,
			"context_suffix": ContextSuffix(p, flagged),
		},
		Classification: map[string]any{"intent_type": "clinical_support"},
		Confidence:     confidence,
	}
}

// unresolvedEdges keeps the edge cases the structured trial data cannot
// settle: an unknown trial, a very large core, significant pre-stroke
// disability, or posterior circulation.
func (e *Engine) unresolvedEdges(edges []PathwayResult, p PatientRecord) []PathwayResult {
	var out []PathwayResult
	for _, edge := range edges {
		need := false
		for _, trial := range edge.RelevantTrials {
			if !e.trials.Has(trial) {
				need = true
				break
			}
		}
		if p.ASPECTS != nil && *p.ASPECTS < 3 {
			need = true
		}
		if p.MRSPre != nil && *p.MRSPre >= 3 {
			need = true
		}
		if p.PosteriorCirculation {
			need = true
		}
		if need {
			out = append(out, edge)
		}
	}
	return out
}

func (e *Engine) searchGuidelines(ctx context.Context, edges []PathwayResult, p PatientRecord, trialContext map[string]TrialSummary) []GuidelineContext {
	var out []GuidelineContext
	for _, edge := range edges {
		query := guidelineQuery(edge, p, trialContext)
		results, err := e.guidelines.Search(ctx, query, nil, maxGuidelineResults)
		if err != nil {
			e.log.Warn("guideline search failed", "treatment", edge.Treatment, "error", err)
			continue
		}

		var parts []string
		for _, res := range results {
			for _, c := range res.Content {
				if c.Type == "text" && c.Text != "" {
					parts = append(parts, c.Text)
				}
			}
		}
		combined := strings.Join(parts, "\n\n")
		if combined == "" {
			continue
		}
		if len(combined) > maxGuidelineChars {
			combined = combined[:maxGuidelineChars]
		}
		gc := GuidelineContext{
			ForTreatment:   edge.Treatment,
			Text:           combined,
			Query:          query,
			TrialsSearched: edge.RelevantTrials,
			ChunkCount:     len(results),
		}
		if len(results) > 0 {
			gc.TopScore = results[0].Score
		}
		out = append(out, gc)
	}
	return out
}

// guidelineQuery builds a targeted retrieval query from the edge case,
// the patient scores and page hints from the structured trial data.
func guidelineQuery(edge PathwayResult, p PatientRecord, trialContext map[string]TrialSummary) string {
	var parts []string
	if edge.GuidelineSection != "" {
		parts = append(parts, "Section "+edge.GuidelineSection)
	}
	parts = append(parts, edge.Treatment, edge.Reasoning)
	if len(edge.RelevantTrials) > 0 {
		parts = append(parts, "Trials: "+strings.Join(edge.RelevantTrials, ", "))
	}
	if p.NIHSS != nil {
		parts = append(parts, fmt.Sprintf("NIHSS %d", *p.NIHSS))
	}
	if p.ASPECTS != nil {
		parts = append(parts, fmt.Sprintf("ASPECTS %d", *p.ASPECTS))
	}
	if p.MRSPre != nil && *p.MRSPre >= 2 {
		parts = append(parts, fmt.Sprintf("pre-stroke mRS %d", *p.MRSPre))
	}

	pages := map[int]struct{}{}
	for _, trial := range edge.RelevantTrials {
		if tc, ok := trialContext[trial]; ok {
			for _, pg := range tc.Pages {
				pages[pg] = struct{}{}
			}
		}
	}
	if len(pages) > 0 {
		sorted := make([]int, 0, len(pages))
		for pg := range pages {
			sorted = append(sorted, pg)
		}
		sort.Ints(sorted)
		hints := make([]string, len(sorted))
		for i, pg := range sorted {
			hints[i] = fmt.Sprintf("%d", pg)
		}
		parts = append(parts, "Focus on pages "+strings.Join(hints, ", "))
	}
	return strings.Join(parts, ". ")
}

func referencedTrials(results []PathwayResult) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, r := range results {
		for _, t := range r.RelevantTrials {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				names = append(names, t)
			}
		}
	}
	return names
}

func ptrVal[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
