// Package engine defines the return contract shared by the reasoning
// engines and the helpers for passing results between planned steps.
package engine

// Statuses for Result.Status.
const (
	StatusComplete           = "complete"
	StatusError              = "error"
	StatusNoResults          = "no_results"
	StatusNeedsClarification = "needs_clarification"
)

// Result is the uniform envelope every engine returns. Data carries the
// engine-specific payload and is shaped for direct JSON serialization.
type Result struct {
	Status         string         `json:"status"`
	Engine         string         `json:"engine"`
	ResultType     string         `json:"result_type"`
	Data           map[string]any `json:"data"`
	Classification map[string]any `json:"classification,omitempty"`
	Confidence     float64        `json:"confidence"`
	Quality        *Quality       `json:"quality_check,omitempty"`
}

// Quality is the structural sanity report attached to a completed result.
type Quality struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// FindPrior returns the most recent result produced by the named engine,
// or nil when no planned step has run it yet.
func FindPrior(results []Result, engineName string) *Result {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Engine == engineName {
			return &results[i]
		}
	}
	return nil
}

// StringList coerces a Data field that arrived through JSON into a string
// slice. Both []string and []any of strings are accepted.
func StringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
