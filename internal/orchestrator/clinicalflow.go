package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cathlab/stackcheck/internal/clinical"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/session"
)

// Terms that mark a short reply as an answer to a pending clinical
// clarification rather than a new question.
var followupKeywords = []string{
	"nihss", "aspects", "aspect", "lkw", "last known well", "mca",
	"occlusion", "lvo", "mrs", "hour", "hr", "wake-up", "wake up",
	"cta", "perfusion", "m1", "m2", "m3", "ica", "basilar",
	"vertebral", "pca", "carotid",
}

// Bare number pairs like "18, 9" also count: users often answer two
// clarification questions with just the values.
var numberPairRe = regexp.MustCompile(`\d+\s*[,;]\s*\d+`)

// mergeClinicalFollowup folds a clarification answer into the previously
// known patient summary. A reply with no clinical signal abandons the
// pending clarification.
func mergeClinicalFollowup(sess *session.Session, raw string) (string, bool) {
	pending := sess.PendingClinicalClarification
	if len(pending) == 0 {
		return raw, false
	}

	matched := numberPairRe.MatchString(raw)
	if !matched {
		lower := strings.ToLower(raw)
		for _, kw := range followupKeywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
	}
	if !matched {
		sess.PendingClinicalClarification = nil
		return raw, false
	}

	known, _ := pending["known"].(string)
	if known == "" {
		return raw, true
	}
	return known + ", " + raw, true
}

// knownPatientSummary renders the parsed patient record as comma-joined
// shorthand, the same register the user writes in, so the merged query
// re-parses cleanly.
func knownPatientSummary(p clinical.PatientRecord) string {
	var parts []string
	if p.Age != nil {
		s := fmt.Sprintf("%dyo", *p.Age)
		if p.Sex != "" {
			s += " " + p.Sex
		}
		parts = append(parts, s)
	}
	if p.OcclusionLocation != "" {
		parts = append(parts, p.OcclusionLocation+" occlusion")
	}
	if p.LVO {
		parts = append(parts, "LVO confirmed")
	}
	if p.WakeUpStroke {
		parts = append(parts, "wake-up stroke")
	} else if p.UnknownOnset {
		parts = append(parts, "unknown onset")
	}
	if p.LastKnownWellHours != nil {
		parts = append(parts, fmt.Sprintf("LKW %gh", *p.LastKnownWellHours))
	}
	if p.NIHSS != nil {
		parts = append(parts, fmt.Sprintf("NIHSS %d", *p.NIHSS))
	}
	if p.ASPECTS != nil {
		parts = append(parts, fmt.Sprintf("ASPECTS %d", *p.ASPECTS))
	}
	if p.MRSPre != nil {
		parts = append(parts, fmt.Sprintf("mRS %d", *p.MRSPre))
	}
	if p.OnAnticoagulation {
		if p.AnticoagulantType != "" {
			parts = append(parts, "on "+p.AnticoagulantType)
		} else {
			parts = append(parts, "on anticoagulation")
		}
	}
	if p.HasPerfusionImaging {
		parts = append(parts, "perfusion imaging available")
	}
	return strings.Join(parts, ", ")
}

// Guideline-question markers: the user is asking about evidence, not a
// new patient or a device.
var guidelineKeywords = []string{
	"guideline", "evidence", "trial", "study", "data", "cor ", "loe ",
	"class of recommendation", "level of evidence", "what did",
	"what does", "what about", "tell me more", "show me", "explain",
	"can you elaborate", "subgroup", "analysis", "outcome", "result",
	"hermes", "dawn", "defuse", "select2", "angel", "tension", "trace",
	"timeless", "ninds", "ecass", "escape", "revascat", "enchanted",
	"baoche", "attention", "basics", "wake-up", "extend", "rescue",
}

var patientVetoKeywords = []string{
	"nihss", "aspects", "lkw", "last known well", "year-old", "yo ",
	"occlusion", "cta shows",
}

var deviceVetoKeywords = []string{
	"device", "catheter", "microcatheter", "stent retriever",
	"configuration", "compatible", "vecta", "headway", "solitaire",
}

// enrichGuidelineQuery appends the stored clinical context to follow-up
// guideline questions so vector search stays scoped to the case. New
// patient presentations and device questions pass through untouched.
func enrichGuidelineQuery(sess *session.Session, query string) string {
	suffix, _ := sess.LastClinicalAssessment["context_suffix"].(string)
	if suffix == "" {
		return query
	}
	lower := strings.ToLower(query)
	if !containsAny(lower, guidelineKeywords) {
		return query
	}
	if containsAny(lower, patientVetoKeywords) || containsAny(lower, deviceVetoKeywords) {
		return query
	}
	return query + " " + suffix
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// formatClinicalClarification renders the engine's clarification result
// as the streamed reply: one question per line, then the data already
// parsed so the user only fills the gaps.
func formatClinicalClarification(res engine.Result) string {
	comp, _ := res.Data["completeness"].(clinical.Completeness)
	patient, _ := res.Data["patient"].(clinical.PatientRecord)

	text := strings.Join(comp.Questions, "\n")
	if parsed := parsedPatientFields(patient); len(parsed) > 0 {
		text += "\n**Patient data received:** " + strings.Join(parsed, ", ")
	}
	return text
}

func parsedPatientFields(p clinical.PatientRecord) []string {
	var fields []string
	if p.Age != nil {
		s := fmt.Sprintf("%d", *p.Age)
		if p.Sex != "" {
			s += strings.ToUpper(p.Sex[:1])
		}
		fields = append(fields, s)
	}
	if p.NIHSS != nil {
		fields = append(fields, fmt.Sprintf("NIHSS %d", *p.NIHSS))
	}
	if p.ASPECTS != nil {
		fields = append(fields, fmt.Sprintf("ASPECTS %d", *p.ASPECTS))
	}
	if p.LastKnownWellHours != nil {
		fields = append(fields, fmt.Sprintf("LKW %gh", *p.LastKnownWellHours))
	}
	if p.OcclusionLocation != "" {
		fields = append(fields, p.OcclusionLocation)
	}
	if p.MRSPre != nil {
		fields = append(fields, fmt.Sprintf("mRS %d", *p.MRSPre))
	}
	if p.Dementia {
		fields = append(fields, "dementia")
	}
	if p.OnAnticoagulation && p.AnticoagulantType != "" {
		fields = append(fields, "on "+p.AnticoagulantType)
	}
	return fields
}
