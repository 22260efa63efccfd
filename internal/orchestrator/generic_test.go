package orchestrator

import (
	"testing"

	"github.com/cathlab/stackcheck/internal/device"
)

func TestSyntheticRecords(t *testing.T) {
	devs := []PrepDevice{
		{
			Raw: ".014 wire", HasInfo: true, DeviceType: "wire",
			SearchCriteria: map[string]any{
				device.SpecField("outer-diameter-distal", "in"): 0.014,
				device.FieldLogicCategory:                       "wire",
			},
		},
		{
			Raw: ".027 microcatheter", HasInfo: true, DeviceType: "catheter",
			SearchCriteria: map[string]any{
				device.SpecField("inner-diameter", "in"): 0.027,
				device.FieldLogicCategory:                "catheter",
			},
		},
		{
			Raw: "a catheter", HasInfo: false, DeviceType: "catheter",
			Reason: "no dimension specified",
		},
	}

	records, insufficient := syntheticRecords("user-12345", "sess-6789", devs)

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if len(insufficient) != 1 || insufficient[0].Raw != "a catheter" {
		t.Fatalf("insufficient = %+v", insufficient)
	}

	// Ids derive from the session and never collide with each other.
	id0 := records[0].ID()
	id1 := records[1].ID()
	if id0 != "usersess" {
		t.Errorf("first id = %q, want clipped uid+session", id0)
	}
	if id1 == id0 {
		t.Error("synthetic ids collide")
	}
	if id1 != "usersess-2" {
		t.Errorf("second id = %q, want ordinal suffix", id1)
	}

	// Search criteria survive, defaults fill the rest.
	if got, ok := records[0].Float(device.SpecField("outer-diameter-distal", "in")); !ok || got != 0.014 {
		t.Errorf("criteria value = %v ok=%t", got, ok)
	}
	if got := records[0].Str(device.FieldFitLogic); got != "math" {
		t.Errorf("fit_logic = %q, want math", got)
	}
	if got := records[0].ProductName(); got != "wire" {
		t.Errorf("product name = %q, want device type", got)
	}
	if got := records[0].Str(device.FieldDeviceName); got != ".014 wire" {
		t.Errorf("device name = %q, want raw mention", got)
	}
	if got, ok := records[0][fieldHasDoc].(bool); !ok || got {
		t.Errorf("doc flag = %v, want false", records[0][fieldHasDoc])
	}
}

func TestClip(t *testing.T) {
	if got := clip("abcdef", 4); got != "abcd" {
		t.Errorf("clip = %q", got)
	}
	if got := clip("ab", 4); got != "ab" {
		t.Errorf("clip short = %q", got)
	}
}
