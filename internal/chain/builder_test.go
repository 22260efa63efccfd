package chain

import (
	"context"
	"testing"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/provider/providertest"
)

func catalogStore() *device.Store {
	return device.NewStore([]device.Device{
		testDevice("m1", "Vecta 46", "Vecta 46 0.046", map[string]any{
			"category_type": "distal_access_catheter",
			"conical_category": "L2",
			device.SpecField("inner-diameter", "in"): 0.046,
			device.FieldLengthCM:                     115,
		}),
		testDevice("m2", "Sofia Plus", "Sofia Plus 6F", map[string]any{
			"category_type": "distal_access_catheter",
			"conical_category": "L2",
			device.SpecField("inner-diameter", "in"): 0.070,
			device.FieldLengthCM:                     131,
		}),
		testDevice("w1", "Synchro2", "Synchro2 Standard", map[string]any{
			"category_type": "guidewire",
			"conical_category": "LW",
			device.SpecField("outer-diameter-distal", "in"):   0.014,
			device.SpecField("outer-diameter-proximal", "in"): 0.014,
			device.FieldLengthCM:                              200,
		}),
	})
}

func TestMapCategoriesExactMatch(t *testing.T) {
	got := MapCategories([]string{"DAC", "Stent Retriever"})

	if cats := got["DAC"].DeviceCategories; len(cats) != 1 || cats[0] != "distal_access_catheter" {
		t.Fatalf("DAC mapping = %v", cats)
	}
	if levels := got["Stent Retriever"].ConicalCategories; len(levels) != 2 || levels[0] != "L4" {
		t.Fatalf("stent retriever levels = %v", levels)
	}
}

func TestMapCategoriesSubstringFallback(t *testing.T) {
	got := MapCategories([]string{"aspiration catheter"})
	m := got["aspiration catheter"]
	if m.Warning != "" {
		t.Fatalf("unexpected warning %q", m.Warning)
	}
	if len(m.DeviceCategories) == 0 || m.DeviceCategories[0] != "aspiration_intermediate_catheter" {
		t.Fatalf("fallback mapping = %v", m.DeviceCategories)
	}
}

func TestMapCategoriesUnknown(t *testing.T) {
	got := MapCategories([]string{"flooble"})
	if got["flooble"].Warning == "" {
		t.Fatal("unknown category carries no warning")
	}
}

func TestProductsForCategoryShortcut(t *testing.T) {
	db := catalogStore()
	mappings := map[string]CategoryMapping{
		"db_filtered": {Products: []string{"Vecta 46"}},
		"dac":         {DeviceCategories: []string{"distal_access_catheter"}},
	}

	got := ProductsForCategory(db, mappings)
	if len(got["db_filtered"]) != 1 || got["db_filtered"][0] != "Vecta 46" {
		t.Fatalf("pre-resolved products = %v", got["db_filtered"])
	}
	if len(got["dac"]) != 2 {
		t.Fatalf("dac products = %v, want both catalog DACs", got["dac"])
	}
}

func TestExpandChainsCartesian(t *testing.T) {
	db := catalogStore()
	mappings := map[string]CategoryMapping{
		"dac": {DeviceCategories: []string{"distal_access_catheter"}},
	}
	chains := []Config{{
		Sequence:         []string{"Synchro2", "dac"},
		Levels:           []string{"LW", "L2"},
		ContainsCategory: true,
	}}

	expanded := ExpandChains(chains, mappings, db)
	if len(expanded) != 2 {
		t.Fatalf("expanded chains = %d, want one per DAC product", len(expanded))
	}
	seen := map[string]bool{}
	for _, cfg := range expanded {
		if cfg.ContainsCategory {
			t.Fatal("expanded chain still flagged as containing a category")
		}
		if cfg.Sequence[0] != "Synchro2" {
			t.Fatalf("expansion moved the named device: %v", cfg.Sequence)
		}
		seen[cfg.Sequence[1]] = true
	}
	if !seen["Vecta 46"] || !seen["Sofia Plus"] {
		t.Fatalf("expanded products = %v", seen)
	}
}

func TestExpandChainsNoCategoryPassthrough(t *testing.T) {
	db := catalogStore()
	chains := []Config{{Sequence: []string{"Synchro2", "Vecta 46"}, Levels: []string{"LW", "L2"}}}

	expanded := ExpandChains(chains, map[string]CategoryMapping{}, db)
	if len(expanded) != 1 || expanded[0].Sequence[1] != "Vecta 46" {
		t.Fatalf("passthrough expansion = %+v", expanded)
	}
}

func TestUpdateDevicesAddsExpandedProducts(t *testing.T) {
	db := catalogStore()
	devices := map[string]DeviceRef{
		"Synchro2": {IDs: []string{"w1"}, ConicalCategory: "LW"},
	}
	expanded := []Config{
		{Sequence: []string{"Synchro2", "Vecta 46"}, Levels: []string{"LW", "L2"}},
		{Sequence: []string{"Synchro2", "Sofia Plus"}, Levels: []string{"LW", "L2"}},
	}

	got := UpdateDevices(devices, expanded, db)
	ref, ok := got["Vecta 46"]
	if !ok || len(ref.IDs) != 1 || ref.IDs[0] != "m1" {
		t.Fatalf("Vecta 46 ref = %+v", ref)
	}
	if ref.ConicalCategory != "L2" {
		t.Fatalf("conical category = %s, want L2", ref.ConicalCategory)
	}
	if _, ok := got["Sofia Plus"]; !ok {
		t.Fatal("Sofia Plus not added to lookup")
	}
}

func TestConicalCategoriesFromCatalog(t *testing.T) {
	db := catalogStore()
	mappings := map[string]CategoryMapping{
		"dac": {DeviceCategories: []string{"distal_access_catheter"}},
	}
	got := ConicalCategories(mappings, db)
	if levels := got["dac"]; len(levels) != 1 || levels[0] != "L2" {
		t.Fatalf("conical levels = %v, want [L2]", levels)
	}
}

func TestBuilderExpandsCategories(t *testing.T) {
	db := catalogStore()
	mock := &providertest.Mock{
		Responses: []provider.CompletionResponse{{
			Content: `{"chains_to_check":[{"sequence":["Synchro2","dac"],"levels":["LW","L2"],"contains_category":true}],"is_specific":false,"confidence":"high"}`,
			Usage:   provider.TokenUsage{PromptTokens: 50, CompletionTokens: 20, TotalTokens: 70},
		}},
	}

	b := NewBuilder(mock, "test-model")
	result, usage, err := b.Run(context.Background(), BuilderInput{
		Query:      "what DACs work with a Synchro2",
		Devices:    map[string]DeviceRef{"Synchro2": {IDs: []string{"w1"}, ConicalCategory: "LW"}},
		Categories: []string{"dac"},
		Mappings:   MapCategories([]string{"dac"}),
	}, db)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if usage.PromptTokens != 50 {
		t.Fatalf("usage = %+v", usage)
	}
	if len(result.ChainsToCheck) != 2 {
		t.Fatalf("chains = %d, want one per DAC product", len(result.ChainsToCheck))
	}
	if _, ok := result.ExpandedDevices["Vecta 46"]; !ok {
		t.Fatal("expanded devices missing Vecta 46")
	}
}
