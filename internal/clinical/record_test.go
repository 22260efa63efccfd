package clinical

import (
	"strings"
	"testing"
)

func TestParseRecordFullPresentation(t *testing.T) {
	p := ParseRecord("72 year old female, last known well 3 hours ago, NIHSS 14, ASPECTS 8, CTA shows left M1 occlusion, pre-stroke mRS 1")

	if p.Age == nil || *p.Age != 72 {
		t.Errorf("Age = %v", ptrVal(p.Age))
	}
	if p.Sex != "female" {
		t.Errorf("Sex = %q", p.Sex)
	}
	if p.LastKnownWellHours == nil || *p.LastKnownWellHours != 3 {
		t.Errorf("LKW = %v", ptrVal(p.LastKnownWellHours))
	}
	if p.NIHSS == nil || *p.NIHSS != 14 {
		t.Errorf("NIHSS = %v", ptrVal(p.NIHSS))
	}
	if p.ASPECTS == nil || *p.ASPECTS != 8 {
		t.Errorf("ASPECTS = %v", ptrVal(p.ASPECTS))
	}
	if p.MRSPre == nil || *p.MRSPre != 1 {
		t.Errorf("MRSPre = %v", ptrVal(p.MRSPre))
	}
	if p.OcclusionSegment != "M1" || !p.LVO || p.MVO {
		t.Errorf("segment = %q, lvo = %v, mvo = %v", p.OcclusionSegment, p.LVO, p.MVO)
	}
	if p.OcclusionLocation == "" {
		t.Error("OcclusionLocation empty")
	}
}

func TestParseRecordLKWShorthand(t *testing.T) {
	p := ParseRecord("lkw 6.5h, nihss 9")
	if p.LastKnownWellHours == nil || *p.LastKnownWellHours != 6.5 {
		t.Fatalf("LKW = %v", ptrVal(p.LastKnownWellHours))
	}
}

func TestParseRecordWakeUpStroke(t *testing.T) {
	p := ParseRecord("woke up with right-sided weakness, NIHSS 12")
	if !p.WakeUpStroke || !p.UnknownOnset {
		t.Fatalf("wake_up = %v, unknown_onset = %v", p.WakeUpStroke, p.UnknownOnset)
	}
}

func TestParseRecordM2IsMediumVessel(t *testing.T) {
	p := ParseRecord("left M2 occlusion, NIHSS 7, LKW 2h")
	if p.LVO || !p.MVO || p.OcclusionSegment != "M2" {
		t.Fatalf("lvo = %v, mvo = %v, segment = %q", p.LVO, p.MVO, p.OcclusionSegment)
	}
}

func TestParseRecordMCAUnspecifiedFlagged(t *testing.T) {
	p := ParseRecord("MCA occlusion on CTA, NIHSS 10, LKW 3h, ASPECTS 9")
	if !p.OcclusionSegmentUnspecified || !p.LVO {
		t.Fatalf("unspecified = %v, lvo = %v", p.OcclusionSegmentUnspecified, p.LVO)
	}
}

func TestParseRecordPosteriorCirculation(t *testing.T) {
	p := ParseRecord("basilar artery occlusion, NIHSS 20, LKW 5h")
	if !p.PosteriorCirculation || p.AnteriorCirculation {
		t.Fatalf("posterior = %v, anterior = %v", p.PosteriorCirculation, p.AnteriorCirculation)
	}
	if p.OcclusionSegment != "basilar" || !p.LVO {
		t.Fatalf("segment = %q, lvo = %v", p.OcclusionSegment, p.LVO)
	}
}

func TestParseRecordAnticoagulationAndPerfusion(t *testing.T) {
	p := ParseRecord("on warfarin, INR 2.3, CT perfusion with core volume 30 ml, penumbra 110 ml, mismatch ratio 3.6")
	if !p.OnAnticoagulation || p.AnticoagulantType != "warfarin" {
		t.Errorf("anticoag = %v, type = %q", p.OnAnticoagulation, p.AnticoagulantType)
	}
	if p.INR == nil || *p.INR != 2.3 {
		t.Errorf("INR = %v", ptrVal(p.INR))
	}
	if !p.HasPerfusionImaging {
		t.Error("HasPerfusionImaging = false")
	}
	if p.CoreVolumeML == nil || *p.CoreVolumeML != 30 {
		t.Errorf("core = %v", ptrVal(p.CoreVolumeML))
	}
	if p.PenumbraVolumeML == nil || *p.PenumbraVolumeML != 110 {
		t.Errorf("penumbra = %v", ptrVal(p.PenumbraVolumeML))
	}
	if p.MismatchRatio == nil || *p.MismatchRatio != 3.6 {
		t.Errorf("mismatch = %v", ptrVal(p.MismatchRatio))
	}
}

func TestAssessCompletenessEmptyRecordClarifies(t *testing.T) {
	c := AssessCompleteness(ParseRecord("is this patient eligible for thrombectomy?"))

	if !c.ShouldClarify {
		t.Fatal("ShouldClarify = false")
	}
	if c.CanAssessIVT || c.CanAssessEVT || c.CanAssessExtended || c.CanAssessLargeCore {
		t.Fatalf("pathways assessable on empty record: %+v", c)
	}
	if len(c.MissingCritical) != 4 {
		t.Fatalf("MissingCritical = %d, want 4", len(c.MissingCritical))
	}
	if len(c.Questions) != len(c.MissingCritical) {
		t.Fatalf("Questions = %d", len(c.Questions))
	}
}

func TestAssessCompletenessFullRecord(t *testing.T) {
	c := AssessCompleteness(ParseRecord("67 year old, LKW 2h, NIHSS 15, ASPECTS 8, left M1 occlusion, pre-stroke mRS 0"))

	if c.ShouldClarify {
		t.Fatalf("ShouldClarify = true: %+v", c)
	}
	if !c.CanAssessIVT || !c.CanAssessEVT || !c.CanAssessExtended || !c.CanAssessLargeCore {
		t.Fatalf("pathway assessability: %+v", c)
	}
}

func TestAssessCompletenessAmbiguousSegmentClarifies(t *testing.T) {
	c := AssessCompleteness(ParseRecord("MCA occlusion, LKW 3h, NIHSS 10, ASPECTS 9"))

	if !c.ShouldClarify {
		t.Fatal("ShouldClarify = false for unspecified MCA segment")
	}
	found := false
	for _, m := range c.MissingCritical {
		if m.Param == "occlusion_segment" {
			found = true
		}
	}
	if !found {
		t.Fatalf("occlusion_segment not in MissingCritical: %+v", c.MissingCritical)
	}
	if len(c.Assumptions) == 0 {
		t.Error("no assumption recorded for assumed M1")
	}
}

func TestAssessCompletenessMRSDefaultRecorded(t *testing.T) {
	c := AssessCompleteness(ParseRecord("LKW 2h, NIHSS 15, ASPECTS 8, M1 occlusion"))
	found := false
	for _, a := range c.Assumptions {
		if strings.Contains(a, "mRS assumed 0") {
			found = true
		}
	}
	if !found {
		t.Fatalf("mRS default assumption missing: %v", c.Assumptions)
	}
}

func TestContextSuffix(t *testing.T) {
	lkw := 7.5
	mrs := 2
	p := PatientRecord{LastKnownWellHours: &lkw, MRSPre: &mrs}

	got := ContextSuffix(p, []string{"EVT_extended_window"})
	want := "[Clinical context: pre-stroke mRS 2, LKW 7.5h, flagged: EVT_extended_window]"
	if got != want {
		t.Fatalf("ContextSuffix = %q, want %q", got, want)
	}

	if got := ContextSuffix(PatientRecord{}, nil); got != "" {
		t.Fatalf("empty record suffix = %q", got)
	}
}
