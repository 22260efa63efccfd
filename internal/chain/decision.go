package chain

import (
	"fmt"
	"log/slog"

	"github.com/cathlab/stackcheck/internal/device"
)

// Post-evaluation actions.
const (
	ActionReturnAsIs       = "return_as_is"
	ActionRunSubsets       = "run_n1_subsets"
	ActionGentleCorrection = "flag_gentle_correction"
)

// Decision says what additional processing the evaluated results need.
type Decision struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// DecideNextAction applies the post-evaluation business rules: a fully
// failed multi-device stack in an open-ended mode gets N-1 subset
// analysis, a failed two-device check the user framed positively gets a
// gentle correction, everything else returns as-is.
func DecideNextAction(cls *Classification, sum *Summary) Decision {
	queryMode, framing, structure := "specific", "neutral", "two_device"
	if cls != nil {
		if cls.QueryMode != "" {
			queryMode = cls.QueryMode
		}
		if cls.Framing != "" {
			framing = cls.Framing
		}
		if cls.Structure != "" {
			structure = cls.Structure
		}
	}

	passing := sum.PassingChainCount
	failing := sum.FailingChainCount

	if failing == 0 && passing > 0 {
		return Decision{Action: ActionReturnAsIs, Reason: "All chains pass"}
	}

	if passing == 0 && failing > 0 {
		if structure == "multi_device" {
			switch queryMode {
			case "exploratory", "discovery", "stack_validation":
				return Decision{
					Action: ActionRunSubsets,
					Reason: "Full stack failed, analyzing subsets to find what works",
				}
			}
		}
		if structure == "two_device" && framing == "positive" {
			return Decision{
				Action: ActionGentleCorrection,
				Reason: "User expected compatibility but devices are incompatible",
			}
		}
		return Decision{Action: ActionReturnAsIs, Reason: "Incompatible - returning failure details"}
	}

	return Decision{
		Action: ActionReturnAsIs,
		Reason: fmt.Sprintf("%d passing, %d failing chains", passing, failing),
	}
}

// SubsetResult is the verdict for a chain with one device removed.
type SubsetResult struct {
	RemovedDevice string   `json:"removed_device"`
	Sequence      []string `json:"subset_sequence"`
	Levels        []string `json:"subset_levels"`
	Status        Status   `json:"status"`
}

// RunSubsets removes one device at a time from each chain of length >= 3
// and re-evaluates the remainder. A subset passes only when every variant
// pairing in it passes.
func RunSubsets(chains []Config, devices map[string]DeviceRef, db *device.Store, log *slog.Logger) []SubsetResult {
	var results []SubsetResult
	for _, cfg := range chains {
		if len(cfg.Sequence) < 3 {
			continue
		}

		for removeIdx := range cfg.Sequence {
			removed := cfg.Sequence[removeIdx]
			subsetSeq := make([]string, 0, len(cfg.Sequence)-1)
			subsetLevels := make([]string, 0, len(cfg.Levels)-1)
			for i := range cfg.Sequence {
				if i == removeIdx {
					continue
				}
				subsetSeq = append(subsetSeq, cfg.Sequence[i])
				subsetLevels = append(subsetLevels, cfg.Levels[i])
			}
			if len(subsetSeq) < 2 {
				continue
			}

			subset := Config{Sequence: subsetSeq, Levels: subsetLevels}
			processed := ProcessChains(GenerateChainPairs([]Config{subset}, devices, db, log))

			status := StatusPass
			for _, chain := range processed {
				for _, path := range chain.Paths {
					for _, conn := range path.Connections {
						for _, pair := range conn.Pairs {
							if pair.Overall == nil || !pair.Overall.Status.Passing() {
								status = StatusFail
							}
						}
					}
				}
			}

			results = append(results, SubsetResult{
				RemovedDevice: removed,
				Sequence:      subsetSeq,
				Levels:        subsetLevels,
				Status:        status,
			})
		}
	}
	return results
}
