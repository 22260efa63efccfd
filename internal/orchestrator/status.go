package orchestrator

// Progress labels shown in the client while a stage runs. Keyed by
// agent/engine name.
var statusLabels = map[string]string{
	"input_rewriter":             "Reading…",
	"intent_classifier":          "Understanding Intent…",
	"equipment_extraction":       "Extracting Devices…",
	"generic_device_structuring": "Understanding Generic Devices…",
	"generic_prep":               "Structuring Generics…",
	"generic_prep_records":       "Reasoning Over Generics…",
	"query_planner":              "Planning Approach…",
	"chain_engine":               "Processing Connections…",
	"database_engine":            "Searching Database…",
	"vector_engine":              "Searching Documents…",
	"clinical_engine":            "Evaluating Eligibility…",
	"clinical_output_agent":      "Generating Assessment…",
	"synthesis_output_agent":     "Synthesizing Answer…",
}

func statusLabel(agent string) string {
	if label, ok := statusLabels[agent]; ok {
		return label
	}
	return "Generating Answer…"
}
