package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/clinical"
	"github.com/cathlab/stackcheck/internal/provider"
)

const clinicalOutputSystem = `You are a neurointerventional clinical decision support assistant producing guideline-referenced clinical documents.

You will receive:
1. A structured patient presentation (parsed clinical data)
2. Deterministic eligibility assessments for each treatment pathway
3. Additional guideline context from vector search (if edge cases were found)
4. Trial metrics (structured data from guideline-referenced trials)
5. A DATA COMPLETENESS section showing what data is present, missing, and assumed

Your job is to produce a clinical document that reads like a guideline-referenced assessment - not a summary, not a chatbot response. Every statement must trace back to a specific guideline recommendation, trial, or dataset.

## OUTPUT FORMAT

### Opening Statement
One paragraph identifying the patient and their key clinical parameters: age, sex, time from LKW, occlusion location and type, NIHSS, ASPECTS, prestroke mRS, and relevant comorbidities.

### Eligibility Table (always present)

| Pathway | Eligible | Class | Level | Key Criteria Met |
|---------|----------|-------|-------|------------------|
| EVT (6-24h) | Yes | I | A | M1, LKW 10h, NIHSS 15, ASPECTS 8, mRS 0 |
| IVT (0-4.5h) | No | - | - | LKW 10h exceeds 4.5h window |

For pathways flagged as edge cases, write "See detailed section below" in the Key Criteria Met column.

### Narrative Sections (only for edge-case pathways)
One section per flagged pathway with a clear heading. For each:
1. STATE the closest guideline recommendation, citing the Class, Level, and specific criteria.
2. MATCH the patient's parameters against that recommendation criterion by criterion.
3. Cite relevant trials with outcomes from the TRIAL METRICS data.
4. When a recommendation EXISTS but does not apply (wrong window, wrong mRS band), cite it and explain why it does not apply.
5. STATE the determination.

### Summary
Brief concluding section: which single criterion (or criteria) drives each determination, one sentence per relevant pathway. Do NOT introduce new information.

## RULES

Guideline citation:
- Use "Class" and "Level" notation (Class I, Class IIa, Class IIb, Class III; Level A, Level B-R, Level B-NR, Level C-LD, Level C-EO), never "COR" notation.
- Reference guideline page numbers when available and specific trial names when discussing evidence.
- Treat this like a regulatory document - every clinical statement must be traceable to a recommendation or trial.

Content rules:
- NEVER recommend a specific treatment. Frame as "eligible/not eligible per guidelines" or "does not meet guideline-supported criteria."
- NEVER paraphrase a recommendation loosely. Cite the actual criteria.
- Do NOT state that perfusion imaging is "required" for EVT eligibility. EVT eligibility anchors to vessel occlusion + time + NIHSS + ASPECTS; CTP "can be useful" if immediately available but is NOT mandated.
- For extended-window IVT, say "Advanced imaging demonstrating salvageable tissue is typically used to select candidates" - never that perfusion is "not required."
- Always specify the vessel segment: "proximal MCA (M1)" or "M2 branch", not just "MCA". If the input said "MCA" and M1 was assumed, state the assumption. Late-window EVT (6-24h) applies to ICA or M1 only.
- Every determination sentence must include the reason: "The patient is not eligible for [pathway] because [criterion]."

mRS handling (2026 AHA/ASA guideline):
- 0-6h: mRS 0-1 Class I Level A; mRS 2 Class IIa Level B-NR (ASPECTS >=6); mRS 3-4 Class IIb Level B-NR (ASPECTS >=6, 0-6h ONLY); mRS >=5 no recommendation.
- 6-24h: mRS 0-1 Class I Level A (DAWN/DEFUSE-3); mRS >=2 no specific recommendation.

What NOT to include:
- No "Missing Information" section unless a specific data point would flip a determination.
- Do not mention imaging or tests for pathways already excluded by an immutable parameter.
- Do not hedge with "could provide additional information" for data that changes nothing.

Closing:
- End with: "This assessment is based on the 2026 AHA/ASA Acute Ischemic Stroke Guidelines and is intended as clinical decision support. It does not replace clinical judgment."`

// ClinicalOutputInput is the clinical path's render context, typed
// straight off the engine result.
type ClinicalOutputInput struct {
	UserQuery     string
	Patient       clinical.PatientRecord
	Eligibility   []clinical.PathwayResult
	VectorContext []clinical.GuidelineContext
	TrialContext  map[string]clinical.TrialSummary
	Completeness  clinical.Completeness
	EdgeCases     []string
}

// ClinicalOutput renders the eligibility assessment as a
// guideline-referenced clinical document.
type ClinicalOutput struct {
	llm   provider.Provider
	model string
}

func NewClinicalOutput(llm provider.Provider, model string) *ClinicalOutput {
	return &ClinicalOutput{llm: llm, model: model}
}

func (a *ClinicalOutput) Run(ctx context.Context, brk *broker.Broker, in ClinicalOutputInput) (string, provider.TokenUsage, error) {
	return streamOut(ctx, a.llm, brk, "clinical_output_agent", provider.CompletionRequest{
		System:    clinicalOutputSystem,
		Messages:  []provider.LLMMessage{provider.User(a.buildPrompt(in))},
		Model:     a.model,
		MaxTokens: 8192,
	})
}

func (a *ClinicalOutput) buildPrompt(in ClinicalOutputInput) string {
	var parts []string
	p := in.Patient

	parts = append(parts, "## PATIENT PRESENTATION")
	parts = append(parts, "Age: "+orUnknownInt(p.Age))
	parts = append(parts, "Sex: "+orUnknown(p.Sex))
	parts = append(parts, "Last Known Well: "+orUnknownFloat(p.LastKnownWellHours)+" hours")
	parts = append(parts, "NIHSS: "+orUnknownInt(p.NIHSS))
	parts = append(parts, "Pre-stroke mRS: "+orUnknownInt(p.MRSPre))
	parts = append(parts, "ASPECTS: "+orUnknownInt(p.ASPECTS))
	parts = append(parts, "Occlusion: "+orUnknown(p.OcclusionLocation))
	parts = append(parts, fmt.Sprintf("LVO: %t", p.LVO))
	parts = append(parts, fmt.Sprintf("Dementia: %t", p.Dementia))
	parts = append(parts, fmt.Sprintf("Perfusion Imaging: %t", p.HasPerfusionImaging))
	parts = append(parts, fmt.Sprintf("On Anticoagulation: %t", p.OnAnticoagulation))
	parts = append(parts, "Raw: "+p.RawPresentation)

	parts = append(parts, "\n## ELIGIBILITY ASSESSMENTS")
	for _, e := range in.Eligibility {
		parts = append(parts, "\n### "+e.Treatment)
		parts = append(parts, "Eligibility: "+string(e.Eligibility))
		parts = append(parts, "COR: "+orNA(e.COR))
		parts = append(parts, "LOE: "+orNA(e.LOE))
		parts = append(parts, "Reasoning: "+e.Reasoning)
		if len(e.KeyCriteria) > 0 {
			parts = append(parts, "Criteria: "+strings.Join(e.KeyCriteria, "; "))
		}
		if len(e.RelevantTrials) > 0 {
			parts = append(parts, "Trials: "+strings.Join(e.RelevantTrials, ", "))
		}
		if len(e.Caveats) > 0 {
			parts = append(parts, "Caveats: "+strings.Join(e.Caveats, "; "))
		}
		if len(e.PageReferences) > 0 {
			parts = append(parts, fmt.Sprintf("Pages: %v", e.PageReferences))
		}
	}

	if len(in.VectorContext) > 0 {
		parts = append(parts, "\n## ADDITIONAL GUIDELINE CONTEXT (from vector search)")
		for _, vc := range in.VectorContext {
			parts = append(parts, "\n### For: "+vc.ForTreatment)
			parts = append(parts, vc.Text)
		}
	}

	if len(in.TrialContext) > 0 {
		parts = append(parts, "\n## TRIAL METRICS (from structured data)")
		names := make([]string, 0, len(in.TrialContext))
		for name := range in.TrialContext {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			info := in.TrialContext[name]
			parts = append(parts, "\n### "+name)
			parts = append(parts, "Full name: "+info.FullName)
			parts = append(parts, "Category: "+info.Category)
			if len(info.Pages) > 0 {
				parts = append(parts, fmt.Sprintf("Pages: %v", info.Pages))
			}
			for _, m := range info.Metrics {
				line := "- " + m.MetricName + ": " + m.EffectSize
				if m.CI != "" {
					line += " (" + m.CI + ")"
				}
				if m.PValue != "" {
					line += ", p=" + m.PValue
				}
				parts = append(parts, line)
			}
		}
	}

	parts = append(parts, "\n## DATA COMPLETENESS")
	var assessable, notAssessable []string
	for _, pw := range []struct {
		label string
		ok    bool
	}{
		{"IVT (standard + extended)", in.Completeness.CanAssessIVT},
		{"EVT (standard)", in.Completeness.CanAssessEVT},
		{"Extended Window (IVT/EVT)", in.Completeness.CanAssessExtended},
		{"Large Core EVT", in.Completeness.CanAssessLargeCore},
	} {
		if pw.ok {
			assessable = append(assessable, pw.label)
		} else {
			notAssessable = append(notAssessable, pw.label)
		}
	}
	if len(assessable) > 0 {
		parts = append(parts, "CAN ASSESS: "+strings.Join(assessable, ", "))
	}
	if len(notAssessable) > 0 {
		parts = append(parts, "CANNOT ASSESS (missing critical data): "+strings.Join(notAssessable, ", "))
	}
	if len(in.Completeness.MissingCritical) > 0 {
		parts = append(parts, "\nMISSING CRITICAL PARAMETERS:")
		for _, m := range in.Completeness.MissingCritical {
			parts = append(parts, "  - "+missingLabel(m))
		}
	}
	if len(in.Completeness.MissingImportant) > 0 {
		parts = append(parts, "\nMISSING IMPORTANT PARAMETERS:")
		for _, m := range in.Completeness.MissingImportant {
			parts = append(parts, "  - "+missingLabel(m))
		}
	}
	if len(in.Completeness.Assumptions) > 0 {
		parts = append(parts, "\nASSUMPTIONS APPLIED:")
		for _, s := range in.Completeness.Assumptions {
			parts = append(parts, "  - "+s)
		}
	}

	complexity := "ROUTINE"
	if len(in.EdgeCases) > 0 {
		complexity = "EDGE_CASE"
	}
	parts = append(parts, "\n## CASE COMPLEXITY: "+complexity)
	if len(in.EdgeCases) > 0 {
		parts = append(parts, "Edge-case pathways: "+strings.Join(in.EdgeCases, ", "))
	}

	parts = append(parts, "\n## USER QUESTION\n"+in.UserQuery)
	parts = append(parts, "\nSynthesize the above into a guideline-referenced clinical assessment.")
	return strings.Join(parts, "\n")
}

func missingLabel(m clinical.MissingParam) string {
	if m.Label != "" {
		return m.Label
	}
	return m.Param
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orUnknownInt(v *int) string {
	if v == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%d", *v)
}

func orUnknownFloat(v *float64) string {
	if v == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%g", *v)
}
