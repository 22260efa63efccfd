package clinical

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/vector"
)

func findPathway(t *testing.T, results []PathwayResult, name string) PathwayResult {
	t.Helper()
	for _, r := range results {
		if r.Treatment == name {
			return r
		}
	}
	t.Fatalf("pathway %q not evaluated", name)
	return PathwayResult{}
}

func TestRulesStandardWindowEligible(t *testing.T) {
	p := ParseRecord("70 year old, LKW 2h, NIHSS 15, ASPECTS 8, left M1 occlusion, pre-stroke mRS 0")
	results := NewRuleSet().EvaluateAll(p)

	ivt := findPathway(t, results, "IVT_standard_window")
	if ivt.Eligibility != EligibleYes || ivt.COR != "1" || ivt.LOE != "A" {
		t.Errorf("IVT = %s COR %s LOE %s", ivt.Eligibility, ivt.COR, ivt.LOE)
	}

	evt := findPathway(t, results, "EVT_standard_window")
	if evt.Eligibility != EligibleYes || evt.COR != "1" {
		t.Errorf("EVT = %s COR %s: %s", evt.Eligibility, evt.COR, evt.Reasoning)
	}

	ext := findPathway(t, results, "EVT_extended_window")
	if ext.Eligibility != EligibleNo {
		t.Errorf("extended EVT at 2h = %s", ext.Eligibility)
	}

	for _, r := range results {
		if r.Treatment == "EVT_posterior_circulation" {
			t.Error("posterior pathway evaluated for anterior presentation")
		}
	}
}

func TestRulesOutsideIVTWindow(t *testing.T) {
	p := ParseRecord("LKW 8h, NIHSS 12, ASPECTS 7, M1 occlusion")
	results := NewRuleSet().EvaluateAll(p)

	ivt := findPathway(t, results, "IVT_standard_window")
	if ivt.Eligibility != EligibleNo {
		t.Errorf("IVT at 8h = %s", ivt.Eligibility)
	}
	ext := findPathway(t, results, "EVT_extended_window")
	if ext.Eligibility != EligibleYes {
		t.Errorf("extended EVT at 8h = %s: %s", ext.Eligibility, ext.Reasoning)
	}
}

func TestRulesWarfarinContraindication(t *testing.T) {
	p := ParseRecord("LKW 2h, NIHSS 10, on warfarin, INR 2.5")
	results := NewRuleSet().EvaluateAll(p)

	ivt := findPathway(t, results, "IVT_standard_window")
	if ivt.Eligibility != EligibleContraindicated {
		t.Fatalf("IVT on warfarin INR 2.5 = %s", ivt.Eligibility)
	}
	if !strings.Contains(ivt.Reasoning, "INR") {
		t.Errorf("Reasoning = %q", ivt.Reasoning)
	}
}

func TestRulesLargeCoreApplicability(t *testing.T) {
	withLargeCore := ParseRecord("LKW 4h, NIHSS 18, ASPECTS 4, M1 occlusion")
	lc := findPathway(t, NewRuleSet().EvaluateAll(withLargeCore), "EVT_large_core")
	if lc.Eligibility != EligibleYes {
		t.Errorf("large core ASPECTS 4 = %s: %s", lc.Eligibility, lc.Reasoning)
	}

	smallCore := ParseRecord("LKW 4h, NIHSS 18, ASPECTS 9, M1 occlusion")
	lc = findPathway(t, NewRuleSet().EvaluateAll(smallCore), "EVT_large_core")
	if lc.Eligibility != EligibleNo {
		t.Errorf("large core ASPECTS 9 = %s", lc.Eligibility)
	}

	veryLarge := ParseRecord("LKW 4h, NIHSS 18, ASPECTS 2, M1 occlusion")
	lc = findPathway(t, NewRuleSet().EvaluateAll(veryLarge), "EVT_large_core")
	if lc.Eligibility != EligibleConditional || !lc.NeedsGuidelineSearch {
		t.Errorf("large core ASPECTS 2 = %s, search = %v", lc.Eligibility, lc.NeedsGuidelineSearch)
	}
}

func TestRulesPosteriorPathway(t *testing.T) {
	p := ParseRecord("basilar artery occlusion, LKW 5h, NIHSS 22")
	results := NewRuleSet().EvaluateAll(p)

	post := findPathway(t, results, "EVT_posterior_circulation")
	if post.Eligibility != EligibleConditional || !post.NeedsGuidelineSearch {
		t.Fatalf("posterior = %s, search = %v", post.Eligibility, post.NeedsGuidelineSearch)
	}
}

func TestTrialIndexVariants(t *testing.T) {
	idx := NewTrialIndex()
	for _, name := range []string{"DAWN", "dawn", "MR CLEAN", "mr_clean", "ECASS-III", "ecassiii"} {
		if !idx.Has(name) {
			t.Errorf("Has(%q) = false", name)
		}
	}
	if idx.Has("IMAGINARY-99") {
		t.Error("unknown trial reported present")
	}

	got := idx.LookupAll([]string{"DAWN", "IMAGINARY-99", "SELECT2"})
	if len(got) != 2 {
		t.Fatalf("LookupAll = %d entries", len(got))
	}
	if got["DAWN"].FullName == "" || len(got["DAWN"].Metrics) == 0 {
		t.Errorf("DAWN summary incomplete: %+v", got["DAWN"])
	}
}

type stubGuidelineStore struct {
	results []vector.Result
	err     error
	queries []string
}

func (s *stubGuidelineStore) Search(_ context.Context, query string, _ *vector.Filter, _ int) ([]vector.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

func testClinicalEngine(store vector.Store) *Engine {
	return NewEngine(store, slog.New(slog.DiscardHandler))
}

func TestEngineClarificationPath(t *testing.T) {
	e := testClinicalEngine(nil)
	res := e.Run(context.Background(), Input{RawQuery: "is this patient a thrombectomy candidate?"})

	if res.Status != engine.StatusNeedsClarification {
		t.Fatalf("Status = %s", res.Status)
	}
	if res.ResultType != ResultTypeClarification || res.Confidence != 0 {
		t.Fatalf("ResultType = %s, Confidence = %v", res.ResultType, res.Confidence)
	}
	c, ok := res.Data["completeness"].(Completeness)
	if !ok || len(c.Questions) == 0 {
		t.Fatalf("completeness = %#v", res.Data["completeness"])
	}
}

func TestEngineCompleteAssessment(t *testing.T) {
	e := testClinicalEngine(nil)
	res := e.Run(context.Background(), Input{
		RawQuery: "70 year old, LKW 2h, NIHSS 15, ASPECTS 8, left M1 occlusion, pre-stroke mRS 0",
	})

	if res.Status != engine.StatusComplete || res.ResultType != ResultTypeAssessment {
		t.Fatalf("Status = %s, ResultType = %s", res.Status, res.ResultType)
	}
	if res.Confidence != 0.95 {
		t.Errorf("Confidence = %v", res.Confidence)
	}
	results, ok := res.Data["eligibility"].([]PathwayResult)
	if !ok || len(results) == 0 {
		t.Fatalf("eligibility = %#v", res.Data["eligibility"])
	}
	trials, ok := res.Data["trial_context"].(map[string]TrialSummary)
	if !ok || len(trials) == 0 {
		t.Fatalf("trial_context = %#v", res.Data["trial_context"])
	}
	if _, ok := trials["HERMES"]; !ok {
		t.Error("HERMES not resolved from trial table")
	}
}

func TestEngineGuidelineSearchForEdgeCases(t *testing.T) {
	store := &stubGuidelineStore{results: []vector.Result{
		{Score: 0.88, FileID: "guideline", Content: []vector.Content{{Type: "text", Text: "Recommendation table 12."}}},
	}}
	e := testClinicalEngine(store)

	// Posterior circulation always goes to guideline search.
	res := e.Run(context.Background(), Input{
		RawQuery: "basilar artery occlusion, LKW 5h, NIHSS 22, pc-ASPECTS 8",
	})

	if res.Status != engine.StatusComplete {
		t.Fatalf("Status = %s", res.Status)
	}
	if res.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8 after guideline search", res.Confidence)
	}
	if len(store.queries) == 0 {
		t.Fatal("guideline store not queried")
	}
	posteriorQueried := false
	for _, q := range store.queries {
		if strings.Contains(q, "EVT_posterior_circulation") {
			posteriorQueried = true
		}
	}
	if !posteriorQueried {
		t.Errorf("posterior pathway never queried: %q", store.queries)
	}
	gcs, ok := res.Data["vector_context"].([]GuidelineContext)
	if !ok || len(gcs) == 0 {
		t.Fatalf("vector_context = %#v", res.Data["vector_context"])
	}
	if gcs[0].TopScore != 0.88 || gcs[0].Text != "Recommendation table 12." {
		t.Errorf("guideline context = %+v", gcs[0])
	}
}

func TestEngineGuidelineFailureTolerated(t *testing.T) {
	store := &stubGuidelineStore{err: errors.New("store down")}
	e := testClinicalEngine(store)

	res := e.Run(context.Background(), Input{
		RawQuery: "basilar artery occlusion, LKW 5h, NIHSS 22",
	})

	if res.Status != engine.StatusComplete {
		t.Fatalf("Status = %s", res.Status)
	}
	gcs, _ := res.Data["vector_context"].([]GuidelineContext)
	if len(gcs) != 0 {
		t.Fatalf("vector_context = %+v", gcs)
	}
}

func TestEngineContextSuffixInData(t *testing.T) {
	e := testClinicalEngine(nil)
	res := e.Run(context.Background(), Input{
		RawQuery: "LKW 8h, NIHSS 12, ASPECTS 7, M1 occlusion, pre-stroke mRS 2",
	})

	suffix, _ := res.Data["context_suffix"].(string)
	if !strings.HasPrefix(suffix, "[Clinical context: ") {
		t.Fatalf("context_suffix = %q", suffix)
	}
	if !strings.Contains(suffix, "LKW 8.0h") {
		t.Errorf("context_suffix = %q", suffix)
	}
}
