package chain

import (
	"strings"
	"testing"

	"github.com/cathlab/stackcheck/internal/device"
)

func testDevice(id, product, model string, fields map[string]any) device.Device {
	d := device.Device{
		"id":           id,
		"product_name": product,
		"device_name":  model,
		"manufacturer": "Acme Medical",
		"fit_logic":    "math",
	}
	for k, v := range fields {
		d[k] = v
	}
	return d
}

// mathPair builds a math-fit pair with inches geometry only.
func mathPair(innerOD, outerID, innerLen, outerLen float64) *Pair {
	inner := testDevice("i1", "Inner Product", "Inner 21", map[string]any{
		device.SpecField("outer-diameter-distal", "in"):   innerOD,
		device.SpecField("outer-diameter-proximal", "in"): innerOD,
		device.FieldLengthCM:                              innerLen,
	})
	outer := testDevice("o1", "Outer Product", "Outer 71", map[string]any{
		device.SpecField("inner-diameter", "in"): outerID,
		device.FieldLengthCM:                     outerLen,
	})
	return &Pair{
		Key: "i1-o1", Inner: inner, Outer: outer,
		InnerID: "i1", OuterID: "o1",
		InnerName: "Inner Product", OuterName: "Outer Product",
	}
}

func TestMathFitClearanceAtThresholdPasses(t *testing.T) {
	// 0.091-0.088 evaluates to just over 0.003 in float64, so the
	// clearance sits on the pass side of the threshold.
	p := EvaluatePair(mathPair(0.088, 0.091, 160, 100))

	if got := p.Geometry.Diameter.Status; got != StatusPass {
		t.Fatalf("diameter status = %s, want pass", got)
	}
	if got := p.Overall.Status; got != StatusPass {
		t.Fatalf("overall status = %s, want pass", got)
	}
	if p.Overall.LogicType != LogicMath {
		t.Fatalf("logic type = %s, want math", p.Overall.LogicType)
	}
}

func TestMathFitTightClearanceWarns(t *testing.T) {
	p := EvaluatePair(mathPair(0.028, 0.030, 160, 100))

	if got := p.Geometry.Diameter.Status; got != StatusWarning {
		t.Fatalf("diameter status = %s, want warning", got)
	}
	if got := p.Overall.Status; got != StatusPassWithWarning {
		t.Fatalf("overall status = %s, want pass_with_warning", got)
	}
}

func TestMathFitZeroClearanceFails(t *testing.T) {
	p := EvaluatePair(mathPair(0.030, 0.030, 160, 100))

	if got := p.Geometry.Diameter.Status; got != StatusFail {
		t.Fatalf("diameter status = %s, want fail", got)
	}
	if got := p.Overall.Status; got != StatusFail {
		t.Fatalf("overall status = %s, want fail", got)
	}
}

func TestLengthBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		innerLen float64
		outerLen float64
		want     Status
	}{
		{"exactly five past", 105, 100, StatusPass},
		{"short extension warns", 103, 100, StatusWarning},
		{"equal lengths fail", 100, 100, StatusFail},
		{"inner shorter fails", 90, 100, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := EvaluatePair(mathPair(0.020, 0.030, tt.innerLen, tt.outerLen))
			if got := p.Geometry.Length.Status; got != tt.want {
				t.Fatalf("length status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLengthFailSinksMathPair(t *testing.T) {
	p := EvaluatePair(mathPair(0.020, 0.030, 90, 100))
	if got := p.Overall.Status; got != StatusFail {
		t.Fatalf("overall status = %s, want fail", got)
	}
}

// compatOuterPair builds a pair where the outer device carries an IFU
// claim about the largest catheter it accepts.
func compatOuterPair(maxOD any, innerOD float64) *Pair {
	inner := testDevice("i1", "Micro Product", "Micro 17", map[string]any{
		"logic_category": "catheter",
		device.SpecField("outer-diameter-distal", "in"):   innerOD,
		device.SpecField("outer-diameter-proximal", "in"): innerOD,
		device.FieldLengthCM:                              160,
	})
	outer := testDevice("o1", "Guide Product", "Guide 6F", map[string]any{
		"fit_logic":      "compat",
		"logic_category": "guide sheath",
		device.CompatField("catheter_max_outer-diameter", "in"): maxOD,
		device.SpecField("inner-diameter", "in"):                0.070,
		device.FieldLengthCM:                                    90,
	})
	return &Pair{
		Key: "i1-o1", Inner: inner, Outer: outer,
		InnerID: "i1", OuterID: "o1",
		InnerName: "Micro Product", OuterName: "Guide Product",
	}
}

func TestCompatClaimPass(t *testing.T) {
	p := EvaluatePair(compatOuterPair(0.030, 0.027))

	if got := p.Compatibility.Status; got != StatusPass {
		t.Fatalf("compatibility status = %s, want pass", got)
	}
	if got := p.Overall.Status; got != StatusPass {
		t.Fatalf("overall status = %s, want pass", got)
	}
	if p.Overall.LogicType != LogicCompat {
		t.Fatalf("logic type = %s, want compat", p.Overall.LogicType)
	}
}

func TestCompatClaimFail(t *testing.T) {
	p := EvaluatePair(compatOuterPair(0.030, 0.034))

	if got := p.Compatibility.Status; got != StatusFail {
		t.Fatalf("compatibility status = %s, want fail", got)
	}
	if got := p.Overall.Status; got != StatusFail {
		t.Fatalf("overall status = %s, want fail", got)
	}
	found := false
	for _, row := range p.Compatibility.SupportingRows {
		if row.Note != "" && strings.Contains(row.Note, "compatibility issue") {
			found = true
		}
	}
	if !found {
		t.Fatal("failing supporting rows carry no note")
	}
}

// rangePair builds a pair where the inner device requires a delivery
// catheter inner diameter inside a range.
func rangePair(required string, outerID float64) *Pair {
	inner := testDevice("s1", "Stent Product", "Stent 4x20", map[string]any{
		"fit_logic":      "compat",
		"logic_category": "stent",
		device.CompatField("catheter_req_inner-diameter", "in"): required,
	})
	outer := testDevice("m1", "Micro Product", "Micro 21", map[string]any{
		"logic_category":                         "catheter",
		device.SpecField("inner-diameter", "in"): outerID,
	})
	return &Pair{
		Key: "s1-m1", Inner: inner, Outer: outer,
		InnerID: "s1", OuterID: "m1",
		InnerName: "Stent Product", OuterName: "Micro Product",
	}
}

func TestCompatRangeBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		outerID float64
		want    Status
	}{
		{"upper bound inclusive", 0.021, StatusPass},
		{"lower bound inclusive", 0.017, StatusPass},
		{"just above range", 0.0211, StatusFail},
		{"below range", 0.0165, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := EvaluatePair(rangePair("0.017-0.021", tt.outerID))
			if got := p.Compatibility.Status; got != tt.want {
				t.Fatalf("compatibility status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCompatPassBeatsFail(t *testing.T) {
	// Two claims in play: the outer's max-OD claim passes while the
	// inner's min-ID claim fails. Any pass wins the pair.
	p := compatOuterPair(0.030, 0.027)
	p.Inner["fit_logic"] = "compat"
	p.Inner[device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "in")] = 0.090

	EvaluatePair(p)
	if got := p.Compatibility.Status; got != StatusPass {
		t.Fatalf("compatibility status = %s, want pass", got)
	}
}

func TestCompatNAUsesGeometryFallback(t *testing.T) {
	// Compat fit logic but no claim fields at all: claims are NA, the
	// geometry track decides.
	p := mathPair(0.027, 0.040, 160, 100)
	p.Inner["fit_logic"] = "compat"

	EvaluatePair(p)
	if got := p.Compatibility.Status; got != StatusNA {
		t.Fatalf("compatibility status = %s, want NA", got)
	}
	if got := p.Overall.Status; got != StatusPass {
		t.Fatalf("overall status = %s, want pass", got)
	}
	if p.Overall.LogicType != LogicGeometryFallback {
		t.Fatalf("logic type = %s, want geometry_fallback", p.Overall.LogicType)
	}
}

func TestCompatLengthFailOverride(t *testing.T) {
	p := compatOuterPair(0.030, 0.027)
	p.Inner[device.FieldLengthCM] = 80 // shorter than the outer's 90

	EvaluatePair(p)
	if got := p.Overall.Status; got != StatusFail {
		t.Fatalf("overall status = %s, want fail", got)
	}
	if p.Overall.LogicType != LogicCompatLengthFail {
		t.Fatalf("logic type = %s, want compat+length_fail", p.Overall.LogicType)
	}
}

func TestCompatGeometryWarningDowngrade(t *testing.T) {
	p := compatOuterPair(0.070, 0.069) // claim passes, clearance 0.001 warns

	EvaluatePair(p)
	if got := p.Overall.Status; got != StatusPassWithWarning {
		t.Fatalf("overall status = %s, want pass_with_warning", got)
	}
	if p.Overall.LogicType != LogicCompatGeoWarning {
		t.Fatalf("logic type = %s, want compat+geometry_warning", p.Overall.LogicType)
	}
}

func TestDiameterDataGuard(t *testing.T) {
	// Lengths only: every diameter row lacks data.
	p := mathPair(0, 0, 160, 100)
	for _, unit := range device.DiameterUnits {
		delete(p.Inner, device.SpecField("outer-diameter-distal", unit))
		delete(p.Inner, device.SpecField("outer-diameter-proximal", unit))
		delete(p.Outer, device.SpecField("inner-diameter", unit))
	}

	EvaluatePair(p)
	if got := p.Geometry.Diameter.Status; got != StatusNA {
		t.Fatalf("diameter status = %s, want NA", got)
	}
	if len(p.Geometry.Diameter.Notes) == 0 || !strings.Contains(p.Geometry.Diameter.Notes[0], "Not enough diameter data") {
		t.Fatalf("diameter notes = %v, want data guard note", p.Geometry.Diameter.Notes)
	}
	// Length alone still decides the math-fit pair.
	if got := p.Overall.Status; got != StatusPass {
		t.Fatalf("overall status = %s, want pass", got)
	}
}

func TestMissingValuesAreNA(t *testing.T) {
	p := compatOuterPair("", 0.027)
	EvaluatePair(p)

	for _, row := range p.CompatRows {
		if row.CompatField == device.CompatField("catheter_max_outer-diameter", "in") &&
			row.Role == "outer" && row.ApplicableCategory && row.ApplicableSpec {
			if row.Status != StatusNA {
				t.Fatalf("blank claim status = %s, want NA", row.Status)
			}
		}
	}
}

func TestEvaluatePairIdempotent(t *testing.T) {
	p := compatOuterPair(0.030, 0.027)
	EvaluatePair(p)
	first := p.Overall.Status
	rows := len(p.CompatRows)

	EvaluatePair(p)
	if p.Overall.Status != first {
		t.Fatalf("second evaluation changed status: %s -> %s", first, p.Overall.Status)
	}
	if len(p.CompatRows) != rows {
		t.Fatalf("second evaluation changed row count: %d -> %d", rows, len(p.CompatRows))
	}
}

func TestClaimSidesNotApplicable(t *testing.T) {
	// An inner claimant must never check the outer device's outer
	// diameter, and an outer claimant never the inner device's inner
	// diameter.
	p := compatOuterPair(0.030, 0.027)
	EvaluatePair(p)

	for _, row := range p.CompatRows {
		if row.Role == "inner" && strings.Contains(row.SpecField, "outer-diameter") && row.ApplicableSpec {
			t.Fatalf("inner claimant row %s marked applicable against %s", row.CompatField, row.SpecField)
		}
		if row.Role == "outer" && strings.Contains(row.SpecField, "inner-diameter") && row.ApplicableSpec {
			t.Fatalf("outer claimant row %s marked applicable against %s", row.CompatField, row.SpecField)
		}
	}
}
