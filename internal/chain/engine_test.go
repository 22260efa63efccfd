package chain

import (
	"context"
	"strings"
	"testing"

	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/provider/providertest"
)

// scriptedMock routes by system prompt so the concurrent classifier and
// builder calls stay deterministic.
func scriptedMock(classifierJSON, builderJSON string) *providertest.Mock {
	return &providertest.Mock{
		BySystem: map[string]provider.CompletionResponse{
			"query classifier": {
				Content: classifierJSON,
				Usage:   provider.TokenUsage{PromptTokens: 30, CompletionTokens: 10, TotalTokens: 40},
			},
			"enumerate clinically plausible device chains": {
				Content: builderJSON,
				Usage:   provider.TokenUsage{PromptTokens: 60, CompletionTokens: 25, TotalTokens: 85},
			},
		},
	}
}

func TestEngineRunCompatibilityCheck(t *testing.T) {
	store, refs := rollupStore()
	mock := scriptedMock(
		`{"query_mode":"specific","framing":"neutral","structure":"two_device","sub_type":"COMPATIBILITY_CHECK","confidence":0.95,"reasoning":"two named devices"}`,
		`{"chains_to_check":[{"sequence":["Micro A","Guide B"],"levels":["L3","L1"]}],"is_specific":true,"confidence":"high"}`,
	)

	e := NewEngine(mock, "fast-model", "main-model", discard())
	result := e.Run(context.Background(), store, Input{
		Query:   "can I use a Micro A with a Guide B",
		Devices: refs,
	})

	if result.Status != engine.StatusComplete {
		t.Fatalf("status = %s, data = %v", result.Status, result.Data)
	}
	if result.Engine != EngineName || result.ResultType != ResultCompatibilityCheck {
		t.Fatalf("engine/result_type = %s/%s", result.Engine, result.ResultType)
	}
	if result.Confidence != 0.95 {
		t.Fatalf("confidence = %v, want 0.95", result.Confidence)
	}

	text, _ := result.Data["text_summary"].(string)
	if !strings.Contains(text, "COMPATIBLE: Micro A -> Guide B") {
		t.Fatalf("text summary missing verdict header:\n%s", text)
	}

	usage, _ := result.Data["token_usage"].(map[string]int)
	if usage["input_tokens"] != 90 || usage["output_tokens"] != 35 {
		t.Fatalf("token usage = %v", usage)
	}

	if result.Quality == nil || !result.Quality.Passed {
		t.Fatalf("quality = %+v, want passed", result.Quality)
	}
}

func TestEngineRunSubsetsOnFailedStack(t *testing.T) {
	store, refs := subsetStore()
	mock := scriptedMock(
		`{"query_mode":"stack_validation","framing":"neutral","structure":"multi_device","sub_type":"STACK_VALIDATION","confidence":0.9}`,
		`{"chains_to_check":[{"sequence":["Wire A","Cath B","Guide C"],"levels":["LW","L2","L1"]}],"is_specific":true,"confidence":"high"}`,
	)

	e := NewEngine(mock, "fast-model", "main-model", discard())
	result := e.Run(context.Background(), store, Input{
		Query:   "will a Wire A, Cath B and Guide C stack work",
		Devices: refs,
	})

	if result.Status != engine.StatusComplete {
		t.Fatalf("status = %s, data = %v", result.Status, result.Data)
	}
	if result.ResultType != ResultStackValidation {
		t.Fatalf("result type = %s, want stack_validation", result.ResultType)
	}

	decision, _ := result.Data["decision"].(Decision)
	if decision.Action != ActionRunSubsets {
		t.Fatalf("decision = %+v, want run_n1_subsets", decision)
	}
	subsets, _ := result.Data["subset_analysis"].([]SubsetResult)
	if len(subsets) != 3 {
		t.Fatalf("subset analysis = %d entries, want 3", len(subsets))
	}

	text, _ := result.Data["text_summary"].(string)
	if !strings.Contains(text, "N-1 SUBSET CONFIGURATIONS:") {
		t.Fatalf("text summary missing subset section:\n%s", text)
	}
	if !strings.Contains(text, "Excluding Cath B: Valid") {
		t.Fatalf("text summary missing passing subset:\n%s", text)
	}
}

func TestEngineNoChainsIsError(t *testing.T) {
	store, refs := rollupStore()
	mock := scriptedMock(
		`{"query_mode":"specific","framing":"neutral","structure":"two_device","confidence":0.9}`,
		`{"chains_to_check":[],"is_specific":true,"confidence":"low"}`,
	)

	e := NewEngine(mock, "fast-model", "main-model", discard())
	result := e.Run(context.Background(), store, Input{Query: "nonsense", Devices: refs})

	if result.Status != engine.StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if result.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", result.Confidence)
	}
	if msg, _ := result.Data["error"].(string); !strings.Contains(msg, "No valid chains") {
		t.Fatalf("error = %q", msg)
	}
}

func TestEngineResolvesPriorDatabaseResult(t *testing.T) {
	db := catalogStore()
	devices := map[string]DeviceRef{"Synchro2": {IDs: []string{"w1"}, ConicalCategory: "LW"}}
	mock := scriptedMock(
		`{"query_mode":"discovery","framing":"neutral","structure":"named_plus_category","sub_type":"DEVICE_DISCOVERY","confidence":0.85}`,
		`{"chains_to_check":[{"sequence":["Synchro2","long dac"],"levels":["LW","L2"],"contains_category":true}],"is_specific":false,"confidence":"high"}`,
	)

	e := NewEngine(mock, "fast-model", "main-model", discard())
	result := e.Run(context.Background(), db, Input{
		Query:   "which of these work with a Synchro2",
		Devices: devices,
		Prior: []engine.Result{{
			Status: engine.StatusComplete,
			Engine: "database_engine",
			Data:   map[string]any{"device_list": []any{"Vecta 46", "Sofia Plus"}},
		}},
		FilterCategory: "long dac",
	})

	if result.Status != engine.StatusComplete {
		t.Fatalf("status = %s, data = %v", result.Status, result.Data)
	}
	chains, _ := result.Data["chains_tested"].([]Config)
	if len(chains) != 2 {
		t.Fatalf("chains tested = %d, want one per prior device", len(chains))
	}
	if result.ResultType != ResultDeviceDiscovery {
		t.Fatalf("result type = %s, want device_discovery", result.ResultType)
	}
}

func TestEngineClassifierFailureDegrades(t *testing.T) {
	store, refs := rollupStore()
	// Only the builder prompt is routed; the classifier call falls back
	// to the ordered script, which errors.
	mock := &providertest.Mock{
		BySystem: map[string]provider.CompletionResponse{
			"enumerate clinically plausible device chains": {
				Content: `{"chains_to_check":[{"sequence":["Micro A","Guide B"],"levels":["L3","L1"]}],"is_specific":true,"confidence":"high"}`,
			},
		},
		Responses: []provider.CompletionResponse{{Content: "not json"}},
	}

	e := NewEngine(mock, "fast-model", "main-model", discard())
	result := e.Run(context.Background(), store, Input{Query: "check", Devices: refs})

	if result.Status != engine.StatusComplete {
		t.Fatalf("status = %s, want complete despite classifier failure", result.Status)
	}
	if result.ResultType != ResultCompatibilityCheck {
		t.Fatalf("result type = %s, want default compatibility_check", result.ResultType)
	}
	if result.Quality == nil || result.Quality.Passed {
		t.Fatal("quality should flag the missing query_mode")
	}
}
