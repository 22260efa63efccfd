package clinical

import "strings"

// TrialMetric is one headline outcome from a trial.
type TrialMetric struct {
	MetricName string `json:"metric_name"`
	EffectSize string `json:"effect_size,omitempty"`
	CI         string `json:"ci,omitempty"`
	PValue     string `json:"p_value,omitempty"`
}

// TrialSummary carries the structured evidence for one trial, compact
// enough to hand to an output agent as context.
type TrialSummary struct {
	TrialName string        `json:"trial_name"`
	FullName  string        `json:"full_name,omitempty"`
	Category  string        `json:"category,omitempty"`
	Pages     []int         `json:"pages,omitempty"`
	Metrics   []TrialMetric `json:"metrics,omitempty"`
}

// TrialIndex resolves trial names to structured metrics without any
// external call. Names are indexed under spacing and dash variants.
type TrialIndex struct {
	byName map[string]*TrialSummary
}

// NewTrialIndex builds the index over the built-in trial table.
func NewTrialIndex() *TrialIndex {
	idx := &TrialIndex{byName: make(map[string]*TrialSummary, len(defaultTrials)*3)}
	for i := range defaultTrials {
		t := &defaultTrials[i]
		key := strings.ToLower(t.TrialName)
		idx.byName[key] = t
		idx.byName[strings.ReplaceAll(key, " ", "_")] = t
		idx.byName[strings.ReplaceAll(key, "-", "")] = t
	}
	return idx
}

// Has reports whether the trial exists in the dataset.
func (idx *TrialIndex) Has(name string) bool {
	_, ok := idx.byName[normalizeTrialName(name)]
	return ok
}

// Get returns the summary for a trial, or nil when unknown.
func (idx *TrialIndex) Get(name string) *TrialSummary {
	return idx.byName[normalizeTrialName(name)]
}

// LookupAll batch-resolves trial names. Unknown names are omitted.
func (idx *TrialIndex) LookupAll(names []string) map[string]TrialSummary {
	out := make(map[string]TrialSummary)
	for _, name := range names {
		if t := idx.Get(name); t != nil {
			out[t.TrialName] = *t
		}
	}
	return out
}

func normalizeTrialName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var defaultTrials = []TrialSummary{
	{
		TrialName: "NINDS", FullName: "NINDS rt-PA Stroke Study", Category: "IVT",
		Pages: []int{38, 39},
		Metrics: []TrialMetric{
			{MetricName: "Good functional outcome (mRS 0-1) at 90 days", EffectSize: "OR 1.7", CI: "95% CI 1.2-2.6"},
		},
	},
	{
		TrialName: "ECASS-III", FullName: "European Cooperative Acute Stroke Study III", Category: "IVT",
		Pages: []int{39, 40},
		Metrics: []TrialMetric{
			{MetricName: "Favorable outcome, 3-4.5h window", EffectSize: "OR 1.34", CI: "95% CI 1.02-1.76", PValue: "0.04"},
		},
	},
	{
		TrialName: "AcT", FullName: "Alteplase Compared to Tenecteplase", Category: "IVT",
		Pages: []int{42},
		Metrics: []TrialMetric{
			{MetricName: "mRS 0-1 at 90 days, tenecteplase vs alteplase", EffectSize: "36.9% vs 34.8%"},
		},
	},
	{
		TrialName: "WAKE-UP", FullName: "MRI-Guided Thrombolysis for Stroke with Unknown Time of Onset", Category: "IVT extended",
		Pages: []int{44, 45},
		Metrics: []TrialMetric{
			{MetricName: "Favorable outcome with DWI-FLAIR mismatch", EffectSize: "53.3% vs 41.8%", PValue: "0.02"},
		},
	},
	{
		TrialName: "EXTEND", FullName: "Extending the Time for Thrombolysis in Emergency Neurological Deficits", Category: "IVT extended",
		Pages: []int{44, 45},
		Metrics: []TrialMetric{
			{MetricName: "mRS 0-1 at 90 days, 4.5-9h with perfusion selection", EffectSize: "35.4% vs 29.5%"},
		},
	},
	{
		TrialName: "TRACE-III", FullName: "Tenecteplase Reperfusion Therapy in Acute Ischemic Cerebrovascular Events III", Category: "IVT extended",
		Pages: []int{45},
		Metrics: []TrialMetric{
			{MetricName: "mRS 0-1 at 90 days, 4.5-24h LVO without EVT access", EffectSize: "33.0% vs 24.2%"},
		},
	},
	{
		TrialName: "MR CLEAN", FullName: "Multicenter Randomized Clinical Trial of Endovascular Treatment in the Netherlands", Category: "EVT",
		Pages: []int{53},
		Metrics: []TrialMetric{
			{MetricName: "mRS shift at 90 days", EffectSize: "OR 1.67", CI: "95% CI 1.21-2.30"},
		},
	},
	{
		TrialName: "HERMES", FullName: "Highly Effective Reperfusion Evaluated in Multiple Endovascular Stroke Trials", Category: "EVT meta-analysis",
		Pages: []int{53, 54},
		Metrics: []TrialMetric{
			{MetricName: "Reduced disability at 90 days", EffectSize: "OR 2.49", CI: "95% CI 1.76-3.53", PValue: "<0.0001"},
			{MetricName: "Number needed to treat for reduced disability", EffectSize: "2.6"},
		},
	},
	{
		TrialName: "DAWN", FullName: "DWI or CTP Assessment with Clinical Mismatch in the Triage of Wake-Up and Late Presenting Strokes", Category: "EVT extended",
		Pages: []int{54, 55},
		Metrics: []TrialMetric{
			{MetricName: "Functional independence at 90 days, 6-24h", EffectSize: "49% vs 13%"},
		},
	},
	{
		TrialName: "DEFUSE-3", FullName: "Endovascular Therapy Following Imaging Evaluation for Ischemic Stroke 3", Category: "EVT extended",
		Pages: []int{54, 55},
		Metrics: []TrialMetric{
			{MetricName: "Functional independence at 90 days, 6-16h", EffectSize: "45% vs 17%", PValue: "<0.001"},
		},
	},
	{
		TrialName: "SELECT2", FullName: "Randomized Controlled Trial to Optimize Patient's Selection for Endovascular Treatment in Acute Ischemic Stroke", Category: "EVT large core",
		Pages: []int{54, 55},
		Metrics: []TrialMetric{
			{MetricName: "mRS shift with large core", EffectSize: "OR 1.51", CI: "95% CI 1.20-1.89"},
		},
	},
	{
		TrialName: "ANGEL ASPECT", FullName: "Endovascular Therapy in Acute Anterior Circulation Large Vessel Occlusive Patients with a Large Infarct Core", Category: "EVT large core",
		Pages: []int{54, 55},
		Metrics: []TrialMetric{
			{MetricName: "mRS shift, ASPECTS 3-5", EffectSize: "OR 1.37", CI: "95% CI 1.11-1.69"},
		},
	},
	{
		TrialName: "ATTENTION", FullName: "Endovascular Treatment for Acute Basilar Artery Occlusion", Category: "EVT posterior",
		Pages: []int{59, 60},
		Metrics: []TrialMetric{
			{MetricName: "mRS 0-3 at 90 days, basilar occlusion", EffectSize: "46% vs 23%"},
		},
	},
	{
		TrialName: "BAOCHE", FullName: "Basilar Artery Occlusion Chinese Endovascular Trial", Category: "EVT posterior",
		Pages: []int{59, 60},
		Metrics: []TrialMetric{
			{MetricName: "mRS 0-3 at 90 days, 6-24h basilar occlusion", EffectSize: "46% vs 24%"},
		},
	},
	{
		TrialName: "ENCHANTED2", FullName: "Enhanced Control of Hypertension and Thrombectomy Stroke Study", Category: "BP management",
		Pages: []int{35, 36},
		Metrics: []TrialMetric{
			{MetricName: "Poor outcome with intensive SBP < 120 after recanalization", EffectSize: "OR 1.37", CI: "95% CI 1.07-1.76"},
		},
	},
}
