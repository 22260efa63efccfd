package dbengine

import (
	"fmt"
	"strings"
)

// summarize renders a single-action result as text for the output agent.
func summarize(step Step, result any) string {
	if matches, ok := result.(*DimensionMatches); ok {
		return summarizeDimensionSearch(matches)
	}

	records, _ := result.([]SpecRecord)
	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d devices", len(records)), "")

	for _, r := range records {
		lines = append(lines,
			"Device: "+r.DeviceName,
			"  Product: "+r.ProductName,
			"  Manufacturer: "+r.Manufacturer)
		for _, fv := range r.Specifications {
			lines = append(lines, fmt.Sprintf("  %s: %v", fv.Name, fv.Value))
		}
		if len(r.Compatibility) > 0 {
			lines = append(lines, "  Compatibility Rules:")
			for _, fv := range r.Compatibility {
				lines = append(lines, fmt.Sprintf("    %s: %v", fv.Name, fv.Value))
			}
		}
		if r.CompatibilityReason != "" {
			lines = append(lines, "  Compatibility: "+r.CompatibilityReason)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func summarizeDimensionSearch(m *DimensionMatches) string {
	var lines []string
	lines = append(lines,
		fmt.Sprintf("Search for devices with dimension %s %v\"", m.DimensionOperator, m.DimensionValue),
		"")

	if len(m.IDMatches) > 0 {
		lines = append(lines, fmt.Sprintf("Devices matching by INNER DIAMETER (ID): %d", len(m.IDMatches)))
		lines = append(lines, matchLines(m.IDMatches)...)
		lines = append(lines, "")
	}
	if len(m.ODMatches) > 0 {
		lines = append(lines, fmt.Sprintf("Devices matching by OUTER DIAMETER (OD): %d", len(m.ODMatches)))
		lines = append(lines, matchLines(m.ODMatches)...)
	}
	return strings.Join(lines, "\n")
}

func matchLines(records []SpecRecord) []string {
	var lines []string
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("  - %s (%s)", r.DeviceName, r.Manufacturer))
		for _, fv := range r.Specifications {
			lines = append(lines, fmt.Sprintf("      %s: %v", fv.Name, fv.Value))
		}
		for _, fv := range r.Compatibility {
			lines = append(lines, fmt.Sprintf("      %s: %v", fv.Name, fv.Value))
		}
	}
	return lines
}

// summarizeMultiStep renders each step's outcome, expanding the final
// step's records in full.
func summarizeMultiStep(steps []Step, ctx map[string]any) string {
	lines := []string{"Multi-step query results:", ""}

	for i, step := range steps {
		key := step.StoreAs
		if key == "" {
			key = step.StepID
		}
		result := ctx[key]
		final := i == len(steps)-1

		label := step.StepID
		if label == "" {
			label = key
		}
		lines = append(lines, fmt.Sprintf("Step: %s (%s)", label, step.Action))

		switch t := result.(type) {
		case []SpecRecord:
			lines = append(lines, fmt.Sprintf("  -> %d results", len(t)))
			if final {
				for _, r := range t {
					lines = append(lines, "    - "+recordName(r))
					for _, fv := range r.Specifications {
						lines = append(lines, fmt.Sprintf("        %s: %v", fv.Name, fv.Value))
					}
					if len(r.Compatibility) > 0 {
						lines = append(lines, "        Compatibility Rules:")
						for _, fv := range r.Compatibility {
							lines = append(lines, fmt.Sprintf("          %s: %v", fv.Name, fv.Value))
						}
					}
				}
			}
		case *DimensionMatches:
			lines = append(lines, fmt.Sprintf("  -> ID matches: %d, OD matches: %d",
				len(t.IDMatches), len(t.ODMatches)))
			if final {
				for _, r := range t.IDMatches {
					lines = append(lines, "    [ID match] - "+recordName(r))
					for _, fv := range r.Specifications {
						lines = append(lines, fmt.Sprintf("        %s: %v", fv.Name, fv.Value))
					}
				}
				for _, r := range t.ODMatches {
					lines = append(lines, "    [OD match] - "+recordName(r))
					for _, fv := range r.Specifications {
						lines = append(lines, fmt.Sprintf("        %s: %v", fv.Name, fv.Value))
					}
				}
			}
		default:
			lines = append(lines, fmt.Sprintf("  -> %v", result))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func recordName(r SpecRecord) string {
	if r.DeviceName != "" && r.DeviceName != "Unknown" {
		return r.DeviceName
	}
	if r.ProductName != "" {
		return r.ProductName
	}
	return "Unknown"
}
