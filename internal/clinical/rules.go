package clinical

import (
	"fmt"
	"strings"
)

// Eligibility grades a single treatment pathway.
type Eligibility string

const (
	EligibleYes             Eligibility = "YES"
	EligibleNo              Eligibility = "NO"
	EligibleConditional     Eligibility = "CONDITIONAL"
	EligibleUncertain       Eligibility = "UNCERTAIN"
	EligibleContraindicated Eligibility = "CONTRAINDICATED"
)

// PathwayResult is the graded outcome of one pathway evaluation.
type PathwayResult struct {
	Treatment            string      `json:"treatment"`
	Eligibility          Eligibility `json:"eligibility"`
	COR                  string      `json:"cor,omitempty"`
	LOE                  string      `json:"loe,omitempty"`
	Reasoning            string      `json:"reasoning"`
	KeyCriteria          []string    `json:"key_criteria,omitempty"`
	RelevantTrials       []string    `json:"relevant_trials,omitempty"`
	GuidelineSection     string      `json:"guideline_section,omitempty"`
	PageReferences       []int       `json:"page_references,omitempty"`
	Caveats              []string    `json:"caveats,omitempty"`
	NeedsGuidelineSearch bool        `json:"needs_guideline_search"`
}

// Condition is a numeric comparison against one record field.
// Fields: nihss, aspects, mrs_pre, age, lkw, inr, core_volume_ml,
// mismatch_ratio.
type Condition struct {
	Field string
	Op    string
	Value float64
}

// Criterion is one graded inclusion check. A required criterion that
// fails downgrades the pathway; a non-required one records a caveat.
// FlagSearch marks the failure as an edge case for guideline search.
type Criterion struct {
	Cond       Condition
	Label      string
	Required   bool
	FlagSearch bool
}

// Contraindication hard-stops a pathway. AnticoagulantType, when set,
// gates the check to patients on that agent.
type Contraindication struct {
	AnticoagulantType string
	Cond              Condition
	Reason            string
}

// Pathway is one declarative treatment rule. The evaluator interprets
// these entries; the medical content lives entirely in defaultPathways.
type Pathway struct {
	Name    string
	Section string

	WindowMinHours float64
	WindowMaxHours float64
	UnknownOnsetOK bool

	RequireLVO    bool
	PosteriorOnly bool

	// ApplyWhenAny limits the pathway to records matching at least one
	// condition. Empty means always applicable.
	ApplyWhenAny []Condition

	Criteria []Criterion
	Contra   []Contraindication

	COR    string
	LOE    string
	Trials []string
	Pages  []int

	// Grade when every required criterion holds. YES for first-line
	// recommendations, CONDITIONAL where the guideline hedges.
	Grade Eligibility

	// StaticCriteria are always reported, independent of the record.
	StaticCriteria []string
	Caveats        []string

	// AlwaysSearch marks pathways whose trial evidence conflicts enough
	// that guideline text is pulled on every evaluation.
	AlwaysSearch bool
}

// RuleSet evaluates pathways against a record.
type RuleSet struct {
	pathways []Pathway
}

// NewRuleSet returns the built-in pathway table.
func NewRuleSet() *RuleSet {
	return &RuleSet{pathways: defaultPathways}
}

// EvaluateAll grades every applicable pathway. Posterior-circulation
// pathways are skipped for anterior presentations.
func (rs *RuleSet) EvaluateAll(p PatientRecord) []PathwayResult {
	results := make([]PathwayResult, 0, len(rs.pathways))
	for _, pw := range rs.pathways {
		if pw.PosteriorOnly && !p.PosteriorCirculation {
			continue
		}
		results = append(results, evaluate(pw, p))
	}
	return results
}

func evaluate(pw Pathway, p PatientRecord) PathwayResult {
	r := PathwayResult{
		Treatment:        pw.Name,
		GuidelineSection: pw.Section,
		RelevantTrials:   pw.Trials,
		PageReferences:   pw.Pages,
		Caveats:          append([]string(nil), pw.Caveats...),
	}

	if len(pw.ApplyWhenAny) > 0 && !anyHolds(pw.ApplyWhenAny, p) {
		r.Eligibility = EligibleNo
		r.Reasoning = fmt.Sprintf("%s criteria not in range for this presentation.", pw.Name)
		return r
	}

	if pw.WindowMaxHours > 0 {
		lkw := p.LastKnownWellHours
		switch {
		case lkw == nil && !p.UnknownOnset:
			r.Eligibility = EligibleUncertain
			r.Reasoning = "Last known well time not provided."
			r.NeedsGuidelineSearch = true
			return r
		case lkw == nil && p.UnknownOnset && !pw.UnknownOnsetOK:
			r.Eligibility = EligibleNo
			r.Reasoning = "Unknown onset, outside this time window pathway."
			r.KeyCriteria = []string{"Unknown time of onset"}
			return r
		case lkw != nil && (*lkw < pw.WindowMinHours || *lkw > pw.WindowMaxHours):
			r.Eligibility = EligibleNo
			r.Reasoning = fmt.Sprintf("LKW %.1fh outside the %.1f-%.1fh window.",
				*lkw, pw.WindowMinHours, pw.WindowMaxHours)
			r.KeyCriteria = []string{fmt.Sprintf("Time outside %.1f-%.1fh", pw.WindowMinHours, pw.WindowMaxHours)}
			return r
		}
	}

	if pw.RequireLVO && !p.LVO {
		r.Eligibility = EligibleNo
		r.Reasoning = "No large vessel occlusion documented."
		r.KeyCriteria = []string{"No LVO identified"}
		return r
	}

	for _, contra := range pw.Contra {
		if contra.AnticoagulantType != "" && p.AnticoagulantType != contra.AnticoagulantType {
			continue
		}
		v, ok := fieldValue(p, contra.Cond.Field)
		if ok && compare(v, contra.Cond.Op, contra.Cond.Value) {
			r.Eligibility = EligibleContraindicated
			r.Reasoning = contra.Reason
			r.KeyCriteria = []string{fmt.Sprintf("%s %v %s %v", contra.Cond.Field, v, contra.Cond.Op, contra.Cond.Value)}
			return r
		}
	}

	// Flag only once the pathway actually applies; a window-rejected
	// pathway has nothing worth searching for.
	r.NeedsGuidelineSearch = pw.AlwaysSearch

	var met, unmet []string
	for _, crit := range pw.Criteria {
		v, ok := fieldValue(p, crit.Cond.Field)
		if !ok {
			if crit.Required {
				unmet = append(unmet, crit.Label+" (not provided)")
				r.NeedsGuidelineSearch = r.NeedsGuidelineSearch || crit.FlagSearch
			}
			continue
		}
		label := fmt.Sprintf("%s (%s = %v)", crit.Label, crit.Cond.Field, v)
		if compare(v, crit.Cond.Op, crit.Cond.Value) {
			met = append(met, label)
			continue
		}
		if crit.Required {
			unmet = append(unmet, label)
		} else {
			r.Caveats = append(r.Caveats, "Not met: "+label)
		}
		r.NeedsGuidelineSearch = r.NeedsGuidelineSearch || crit.FlagSearch
	}

	r.KeyCriteria = append(append(met, unmet...), pw.StaticCriteria...)

	if len(unmet) > 0 {
		r.Eligibility = EligibleConditional
		r.Reasoning = "Some criteria not fully met: " + strings.Join(unmet, "; ")
		return r
	}

	r.Eligibility = pw.Grade
	r.COR = pw.COR
	r.LOE = pw.LOE
	if p.LastKnownWellHours != nil && pw.WindowMaxHours > 0 {
		r.Reasoning = fmt.Sprintf("Criteria met for %s at LKW %.1fh.", pw.Name, *p.LastKnownWellHours)
	} else {
		r.Reasoning = fmt.Sprintf("Criteria met for %s.", pw.Name)
	}
	return r
}

func anyHolds(conds []Condition, p PatientRecord) bool {
	for _, c := range conds {
		if v, ok := fieldValue(p, c.Field); ok && compare(v, c.Op, c.Value) {
			return true
		}
	}
	return false
}

func fieldValue(p PatientRecord, field string) (float64, bool) {
	switch field {
	case "nihss":
		if p.NIHSS != nil {
			return float64(*p.NIHSS), true
		}
	case "aspects":
		if p.ASPECTS != nil {
			return float64(*p.ASPECTS), true
		}
	case "mrs_pre":
		if p.MRSPre != nil {
			return float64(*p.MRSPre), true
		}
	case "age":
		if p.Age != nil {
			return float64(*p.Age), true
		}
	case "lkw":
		if p.LastKnownWellHours != nil {
			return *p.LastKnownWellHours, true
		}
	case "inr":
		if p.INR != nil {
			return *p.INR, true
		}
	case "core_volume_ml":
		if p.CoreVolumeML != nil {
			return *p.CoreVolumeML, true
		}
	case "mismatch_ratio":
		if p.MismatchRatio != nil {
			return *p.MismatchRatio, true
		}
	}
	return 0, false
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">=":
		return v >= threshold
	case "<=":
		return v <= threshold
	case ">":
		return v > threshold
	case "<":
		return v < threshold
	case "==":
		return v == threshold
	}
	return false
}
