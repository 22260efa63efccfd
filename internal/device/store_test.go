package device

import (
	"testing"
)

func testCatalog() []Device {
	return []Device{
		{
			"id": "d1", "product_name": "Vecta 46", "device_name": "Vecta 46 0.046",
			"manufacturer": "MicroVention", "conical_category": "L3",
			"logic_category": "catheter", "fit_logic": "math",
			"specification_inner-diameter_in":         0.046,
			"specification_outer-diameter-distal_in":  0.058,
			"specification_length_cm":                 132.0,
		},
		{
			"id": "d2", "product_name": "Vecta 74", "device_name": "Vecta 74 0.074",
			"manufacturer": "MicroVention", "conical_category": "L2",
			"logic_category": "catheter",
		},
		{
			"id": "d3", "product_name": "Neuron MAX", "device_name": "Neuron MAX 088",
			"manufacturer": "Penumbra", "conical_category": "L1",
			"aliases":        "NeuronMAX; Neuron MAX System",
			"logic_category": "sheath guide",
		},
		{
			"id": "d4", "product_name": "Neuron MAX", "device_name": "Neuron MAX 088 Long",
			"manufacturer": "Penumbra", "conical_category": "L1",
		},
		{
			"id": "d5", "product_name": "Synchro2", "device_name": "Synchro2 Standard",
			"manufacturer": "Stryker", "conical_category": "LW",
			"logic_category": "wire",
		},
	}
}

func TestStoreLookup(t *testing.T) {
	s := NewStore(testCatalog())

	d, ok := s.Get("d1")
	if !ok || d.ProductName() != "Vecta 46" {
		t.Fatalf("Get(d1) = %v, %v", d, ok)
	}
	if _, ok := s.Get("nope"); ok {
		t.Error("Get(nope) found a record")
	}
	if s.Len() != 5 {
		t.Errorf("Len = %d, want 5", s.Len())
	}
}

func TestSearchNamePhrase(t *testing.T) {
	s := NewStore(testCatalog())

	ids := s.SearchName("Vecta 46")
	if len(ids) == 0 || ids[0] != "d1" {
		t.Fatalf("SearchName(Vecta 46) = %v, want d1 first", ids)
	}

	// Alias phrase match.
	ids = s.SearchName("NeuronMAX")
	if len(ids) == 0 || ids[0] != "d3" {
		t.Fatalf("SearchName(NeuronMAX) = %v, want d3 first", ids)
	}
}

func TestSearchNameConjunctive(t *testing.T) {
	s := NewStore(testCatalog())

	// Tokens out of phrase order still match conjunctively.
	ids := s.SearchName("46 vecta")
	if len(ids) != 1 || ids[0] != "d1" {
		t.Fatalf("SearchName(46 vecta) = %v", ids)
	}

	if got := s.SearchName("totally unknown device"); len(got) != 0 {
		t.Errorf("unknown query matched %v", got)
	}
	if got := s.SearchName(""); got != nil {
		t.Errorf("empty query matched %v", got)
	}
}

func TestGroupsForName(t *testing.T) {
	s := NewStore(testCatalog())

	groups := s.GroupsForName("Neuron MAX")
	if len(groups) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	g := groups[0]
	if g.ProductName != "Neuron MAX" || len(g.IDs) != 2 || g.ConicalCategory != "L1" {
		t.Errorf("group = %+v", g)
	}
}

func TestSuggestFuzzyTier(t *testing.T) {
	s := NewStore(testCatalog())

	sugg := s.Suggest("Vectaa 46", 3)
	if len(sugg) == 0 {
		t.Fatal("no suggestions for Vectaa 46")
	}
	if sugg[0].Name != "Vecta 46" {
		t.Errorf("top suggestion = %+v", sugg[0])
	}
	if sugg[0].Score < 0.7 {
		t.Errorf("score = %f, want >= 0.7", sugg[0].Score)
	}

	// Cached second call returns the same slice content.
	again := s.Suggest("Vectaa 46", 3)
	if len(again) != len(sugg) || again[0] != sugg[0] {
		t.Errorf("cached suggest differs: %+v vs %+v", again, sugg)
	}
}

func TestSuggestRatioFallback(t *testing.T) {
	s := NewStore(testCatalog())

	// First character differs, so the fuzzy tier finds nothing; the
	// ratio tier still recovers "Synchro2" at 0.875.
	sugg := s.Suggest("zynchro2", 3)
	found := false
	for _, sg := range sugg {
		if sg.Name == "Synchro2" {
			found = true
			if sg.Score < ratioCutoff || sg.Score > 1 {
				t.Errorf("ratio score out of range: %f", sg.Score)
			}
		}
	}
	if !found {
		t.Errorf("ratio fallback missed Synchro2: %+v", sugg)
	}

	if got := s.Suggest("zzzzqqqq", 3); len(got) != 0 {
		t.Errorf("hopeless name suggested %+v", got)
	}
}

func TestOverlayInjection(t *testing.T) {
	s := NewStore(testCatalog())
	o := s.WithOverlay()

	o.Inject(Device{"id": "syn1", "product_name": "generic wire", "fit_logic": "math"})

	if _, ok := o.Get("syn1"); !ok {
		t.Error("overlay lost injected record")
	}
	if _, ok := s.Get("syn1"); ok {
		t.Error("injection leaked into shared store")
	}
	// Base records remain visible through the overlay.
	if _, ok := o.Get("d1"); !ok {
		t.Error("overlay cannot see base record")
	}
	if o.Len() != 6 {
		t.Errorf("overlay Len = %d, want 6", o.Len())
	}
}

func TestBoundedEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		dist int
		ok   bool
	}{
		{"vecta", "vecta", 0, true},
		{"vectaa", "vecta", 1, true},
		{"vecta", "vctaa", 2, true},
		{"vecta", "neuron", 0, false}, // prefix mismatch
		{"vecta", "veeeecta", 0, false},
	}
	for _, tt := range tests {
		dist, ok := boundedEditDistance(tt.a, tt.b, maxEditDistance)
		if ok != tt.ok || (ok && dist != tt.dist) {
			t.Errorf("boundedEditDistance(%q, %q) = %d, %v; want %d, %v",
				tt.a, tt.b, dist, ok, tt.dist, tt.ok)
		}
	}
}

func TestDeviceAccessors(t *testing.T) {
	d := Device{
		"id":             "x",
		"logic_category": "Wire Stent",
		"specification_length_cm": "132",
	}

	if !d.HasLogicTag("wire") || !d.HasLogicTag("stent", "balloon") {
		t.Error("logic tag matching failed")
	}
	if d.HasLogicTag("catheter") {
		t.Error("false logic tag match")
	}
	if v, ok := d.Float("specification_length_cm"); !ok || v != 132 {
		t.Errorf("Float(string) = %v, %v", v, ok)
	}
	if _, ok := d.Float("missing"); ok {
		t.Error("Float(missing) reported ok")
	}
	if d.FitLogic() != FitLogicMath {
		t.Errorf("default fit_logic = %q", d.FitLogic())
	}
}
