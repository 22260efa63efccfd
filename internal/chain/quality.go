package chain

import (
	"fmt"
	"sort"

	"github.com/cathlab/stackcheck/internal/engine"
)

// CheckQuality validates a completed result for structural completeness:
// chains were evaluated, every input device shows up in some path, and
// the classification carries a query mode.
func CheckQuality(in Input, sum *Summary, result *engine.Result) *engine.Quality {
	var issues []string

	if result == nil || len(result.Data) == 0 {
		return &engine.Quality{Passed: false, Issues: []string{"No result data"}}
	}

	if sum == nil || sum.TotalChains == 0 {
		issues = append(issues, "No chains were evaluated")
	}

	if sum != nil {
		covered := make(map[string]bool)
		for _, chain := range append(append([]*ChainAnalysis(nil), sum.PassedChains...), sum.FailedChains...) {
			for _, path := range chain.PathResults {
				for _, name := range path.DevicePath {
					covered[name] = true
				}
			}
		}
		var missing []string
		for name := range in.Devices {
			if !covered[name] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			issues = append(issues, fmt.Sprintf("Devices not addressed in results: %v", missing))
		}
	}

	if mode, _ := result.Classification["query_mode"].(string); mode == "" {
		issues = append(issues, "Missing query_mode in classification")
	}

	return &engine.Quality{Passed: len(issues) == 0, Issues: issues}
}
