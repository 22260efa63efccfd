package clinical

import (
	"fmt"
	"strings"
)

// MissingParam describes one absent input parameter and the question
// that would resolve it.
type MissingParam struct {
	Param    string `json:"param"`
	Label    string `json:"label"`
	Question string `json:"question,omitempty"`
}

// Completeness reports whether each treatment pathway can be assessed
// from the parsed record, and what is missing. Critical parameters block
// a pathway; important ones get a recorded default instead.
type Completeness struct {
	CanAssessIVT       bool `json:"can_assess_ivt"`
	CanAssessEVT       bool `json:"can_assess_evt"`
	CanAssessExtended  bool `json:"can_assess_extended"`
	CanAssessLargeCore bool `json:"can_assess_large_core"`

	MissingCritical  []MissingParam `json:"missing_critical,omitempty"`
	MissingImportant []MissingParam `json:"missing_important,omitempty"`
	Assumptions      []string       `json:"assumptions_made,omitempty"`

	ShouldClarify bool     `json:"should_ask_clarification"`
	Questions     []string `json:"clarification_questions,omitempty"`
}

// AssessCompleteness checks the record against the required parameters of
// each pathway. Clarification is requested when no pathway is assessable,
// or when the occlusion segment is ambiguous enough to change the
// recommendation.
func AssessCompleteness(p PatientRecord) Completeness {
	var c Completeness

	if !p.HasTimeInfo() {
		c.MissingCritical = append(c.MissingCritical, MissingParam{
			Param:    "last_known_well",
			Label:    "Time from Last Known Well",
			Question: "When was the patient last known to be at neurological baseline? If unknown, is this a wake-up stroke or unwitnessed onset?",
		})
	}
	if p.NIHSS == nil {
		c.MissingCritical = append(c.MissingCritical, MissingParam{
			Param:    "nihss",
			Label:    "NIHSS Score",
			Question: "What is the current NIHSS score?",
		})
	}
	if p.ASPECTS == nil && p.AnteriorCirculation {
		c.MissingCritical = append(c.MissingCritical, MissingParam{
			Param:    "aspects",
			Label:    "ASPECTS Score",
			Question: "What is the CT ASPECTS score?",
		})
	}
	if !p.HasLVOInfo() {
		c.MissingCritical = append(c.MissingCritical, MissingParam{
			Param:    "occlusion_location",
			Label:    "Vessel Occlusion Status",
			Question: "Has CTA been performed? Is there a large vessel occlusion (LVO)? If so, what is the occlusion location?",
		})
	}
	if p.OcclusionSegmentUnspecified {
		c.MissingCritical = append(c.MissingCritical, MissingParam{
			Param:    "occlusion_segment",
			Label:    "MCA Occlusion Segment (M1 vs M2)",
			Question: "The MCA occlusion was noted but the segment level was not specified. Is this an M1 (proximal/mainstem) or M2 (branch) occlusion? This determines which EVT recommendation applies.",
		})
		c.Assumptions = append(c.Assumptions,
			"MCA occlusion segment not specified, assuming proximal M1. If this is an M2 occlusion, EVT recommendations differ significantly.")
		c.ShouldClarify = true
	}

	if p.MRSPre == nil {
		c.MissingImportant = append(c.MissingImportant, MissingParam{Param: "mrs_pre", Label: "Pre-stroke mRS"})
		c.Assumptions = append(c.Assumptions,
			"Pre-stroke mRS assumed 0 (functionally independent), the common default per trial populations")
	}
	if p.Age == nil {
		c.MissingImportant = append(c.MissingImportant, MissingParam{Param: "age", Label: "Patient Age"})
	}
	if !p.HasPerfusionImaging {
		c.MissingImportant = append(c.MissingImportant, MissingParam{Param: "perfusion_imaging", Label: "Perfusion Imaging (CTP/MR DWI-PWI)"})
	}
	if p.OnAnticoagulation && p.AnticoagulantType == "" {
		c.MissingImportant = append(c.MissingImportant, MissingParam{Param: "anticoagulant_type", Label: "Anticoagulant Type and Timing"})
	}

	c.CanAssessIVT = p.HasTimeInfo() && p.NIHSS != nil
	c.CanAssessEVT = p.HasTimeInfo() && p.HasLVOInfo() && p.NIHSS != nil

	hasImagingSelection := p.HasPerfusionImaging || p.ASPECTS != nil
	c.CanAssessExtended = (p.HasTimeInfo() || p.UnknownOnset) && hasImagingSelection

	hasCoreInfo := p.ASPECTS != nil || p.CoreVolumeML != nil
	c.CanAssessLargeCore = hasCoreInfo && p.HasLVOInfo()

	canAssessAny := c.CanAssessIVT || c.CanAssessEVT || c.CanAssessExtended || c.CanAssessLargeCore
	c.ShouldClarify = c.ShouldClarify || !canAssessAny

	if c.ShouldClarify {
		for _, m := range c.MissingCritical {
			c.Questions = append(c.Questions, m.Question)
		}
	}
	return c
}

// ContextSuffix renders the compact bracketed context appended to
// guideline follow-up questions after an assessment.
func ContextSuffix(p PatientRecord, flagged []string) string {
	parts := make([]string, 0, 3)
	if p.MRSPre != nil {
		parts = append(parts, fmt.Sprintf("pre-stroke mRS %d", *p.MRSPre))
	}
	if p.LastKnownWellHours != nil {
		parts = append(parts, fmt.Sprintf("LKW %.1fh", *p.LastKnownWellHours))
	} else if p.UnknownOnset {
		parts = append(parts, "unknown onset")
	}
	if len(flagged) > 0 {
		parts = append(parts, "flagged: "+strings.Join(flagged, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[Clinical context: " + strings.Join(parts, ", ") + "]"
}
