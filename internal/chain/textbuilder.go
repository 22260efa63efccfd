package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/device"
)

// Result types rendered by the text builder.
const (
	ResultCompatibilityCheck = "compatibility_check"
	ResultDeviceDiscovery    = "device_discovery"
	ResultStackValidation    = "stack_validation"
)

type specEntry struct {
	productName  string
	deviceName   string
	manufacturer string
	odDistalIn   *float64
	idIn         *float64
	lengthCM     *float64
}

// TextBuilder renders deterministic text summaries from already-computed
// analysis data. No model calls; the dimensional evidence comes straight
// from the evaluated pairs.
type TextBuilder struct {
	summary   *Summary
	processed []*ChainResult
	subsets   []SubsetResult
	specs     map[string]*specEntry
}

func NewTextBuilder(summary *Summary, processed []*ChainResult, subsets []SubsetResult) *TextBuilder {
	tb := &TextBuilder{
		summary:   summary,
		processed: processed,
		subsets:   subsets,
	}
	tb.specs = tb.buildSpecsCache()
	return tb
}

// Build dispatches on result type; unknown types get the compatibility
// check rendering.
func (tb *TextBuilder) Build(resultType string) string {
	switch resultType {
	case ResultDeviceDiscovery:
		return tb.buildDeviceDiscovery()
	case ResultStackValidation:
		return tb.buildStackValidation()
	}
	return tb.buildCompatibilityCheck()
}

// buildSpecsCache indexes key display specs for every device seen in the
// processed tree, by id, device name, and product name.
func (tb *TextBuilder) buildSpecsCache() map[string]*specEntry {
	cache := make(map[string]*specEntry)
	add := func(d device.Device) {
		if len(d) == 0 {
			return
		}
		entry := &specEntry{
			productName:  d.ProductName(),
			deviceName:   d.DeviceName(),
			manufacturer: d.Manufacturer(),
		}
		if v, ok := d.Float(device.SpecField("outer-diameter-distal", "in")); ok {
			entry.odDistalIn = &v
		}
		if v, ok := d.Float(device.SpecField("inner-diameter", "in")); ok {
			entry.idIn = &v
		}
		if v, ok := d.Float(device.FieldLengthCM); ok {
			entry.lengthCM = &v
		}
		for _, key := range []string{d.ID(), d.DeviceName(), d.ProductName()} {
			if key != "" {
				if _, seen := cache[key]; !seen {
					cache[key] = entry
				}
			}
		}
	}

	for _, chain := range tb.processed {
		for _, path := range chain.Paths {
			for _, conn := range path.Connections {
				for _, pair := range conn.Pairs {
					add(pair.Inner)
					add(pair.Outer)
				}
			}
		}
	}
	return cache
}

func fmtIn(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.3f\"", *v)
}

func fmtCM(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.0fcm", *v)
}

// deviceInline formats a device with inline specs, e.g.
// `Vecta 46 (OD: 0.058" | ID: 0.046" | 96cm)`.
func (tb *TextBuilder) deviceInline(name string) string {
	specs := tb.specs[name]
	if specs == nil {
		return name
	}
	var parts []string
	if specs.manufacturer != "" {
		parts = append(parts, specs.manufacturer)
	}
	if specs.odDistalIn != nil {
		parts = append(parts, "OD: "+fmtIn(specs.odDistalIn))
	}
	if specs.idIn != nil {
		parts = append(parts, "ID: "+fmtIn(specs.idIn))
	}
	if specs.lengthCM != nil {
		parts = append(parts, fmtCM(specs.lengthCM))
	}
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(parts, " | "))
}

func formatCompatFailure(innerName, outerName, compatField string, compatValue, specValue any) string {
	switch {
	case strings.Contains(compatField, "wire_max_outer-diameter"):
		return fmt.Sprintf("Max wire OD: %v, but %s OD: %v", compatValue, innerName, specValue)
	case strings.Contains(compatField, "catheter_max_outer-diameter"):
		return fmt.Sprintf("Max catheter OD: %v, but %s OD: %v", compatValue, innerName, specValue)
	case strings.Contains(compatField, "catheter_req_inner-diameter"):
		return fmt.Sprintf("Required catheter ID: %v, but %s ID: %v", compatValue, outerName, specValue)
	case strings.Contains(compatField, "guide_or_catheter_or_sheath_min_inner-diameter"):
		return fmt.Sprintf("Min guide/catheter ID: %v, but %s ID: %v", compatValue, outerName, specValue)
	}
	return fmt.Sprintf("%s: required %v, actual %v", compatField, compatValue, specValue)
}

// connectionSpecLines renders one representative line per pass and fail
// group with dimensional evidence.
func (tb *TextBuilder) connectionSpecLines(passes []PassInfo, failures []FailureInfo) []string {
	var lines []string

	for _, passGroup := range passes {
		for _, pr := range passGroup.PairReasons {
			innerName := pr.Reasons.InnerDeviceName
			outerName := pr.Reasons.OuterDeviceName

			innerSpecs := tb.specs[innerName]
			outerSpecs := tb.specs[outerName]
			if innerSpecs == nil || outerSpecs == nil {
				lines = append(lines, fmt.Sprintf("  %s -> %s: Compatible", innerName, outerName))
				break
			}

			line := fmt.Sprintf("  %s -> %s: Compatible", innerName, outerName)
			if innerSpecs.odDistalIn != nil && outerSpecs.idIn != nil {
				line += fmt.Sprintf(" (OD %s -> ID %s)", fmtIn(innerSpecs.odDistalIn), fmtIn(outerSpecs.idIn))
			}
			lines = append(lines, line)
			if innerSpecs.lengthCM != nil && outerSpecs.lengthCM != nil {
				lines = append(lines, fmt.Sprintf("    Length: %s %s, %s %s",
					innerName, fmtCM(innerSpecs.lengthCM), outerName, fmtCM(outerSpecs.lengthCM)))
			}
			if pr.PassReasonType == PassReasonGeometryOverride {
				lines = append(lines, "    Note: Passed via geometry check (IFU compatibility not available)")
			}
			break
		}
	}

	for _, failGroup := range failures {
		shown := false
		for _, cf := range failGroup.CompatibilityFailures {
			lines = append(lines,
				fmt.Sprintf("  %s -> %s: Not Compatible", cf.InnerDeviceName, cf.OuterDeviceName),
				"    "+formatCompatFailure(cf.InnerDeviceName, cf.OuterDeviceName, cf.CompatField, cf.CompatValue, cf.SpecValue))
			shown = true
			break
		}
		if !shown {
			for _, gf := range failGroup.GeometryFailures {
				diff := "NA"
				if gf.Difference != nil {
					diff = fmt.Sprintf("%v", *gf.Difference)
				}
				lines = append(lines,
					fmt.Sprintf("  %s -> %s: Not Compatible", gf.InnerDeviceName, gf.OuterDeviceName),
					fmt.Sprintf("    Geometry fail: outer %v vs inner %v (diff: %s)", gf.OuterValue, gf.InnerValue, diff))
				break
			}
		}
	}

	return lines
}

func (tb *TextBuilder) buildCompatibilityCheck() string {
	var sections []string
	allChains := append(append([]*ChainAnalysis(nil), tb.summary.PassedChains...), tb.summary.FailedChains...)

	sections = append(sections, fmt.Sprintf("Chains tested: %d | Passing: %d | Failing: %d\n",
		tb.summary.TotalChains, tb.summary.PassingChainCount, tb.summary.FailingChainCount))

	for _, chain := range allChains {
		for _, path := range chain.PathResults {
			pathStr := strings.Join(path.DevicePath, " -> ")
			if pathStr == "" {
				pathStr = "Unknown path"
			}
			label := "NOT COMPATIBLE"
			if path.Status == StatusPass {
				label = "COMPATIBLE"
			}
			lines := []string{fmt.Sprintf("%s: %s", label, pathStr)}

			for _, conn := range path.ConnectionResults {
				for _, pr := range conn.ProductResults {
					if pr.TotalVariants > 1 {
						lines = append(lines, fmt.Sprintf("\n  %s: %d of %d variants compatible",
							pr.Combination, pr.PassingVariants, pr.TotalVariants))
						if pr.FailingVariants > 0 {
							lines = append(lines, fmt.Sprintf("    (%d variant(s) not compatible)", pr.FailingVariants))
						}
					}
				}

				lines = append(lines, tb.connectionSpecLines(conn.Passes, conn.Failures)...)

				for _, failGroup := range conn.Failures {
					for _, pr := range failGroup.PairReasons {
						for _, cr := range pr.Reasons.CompatibilityReasons {
							lines = append(lines, "    - "+cr)
						}
						for _, dr := range pr.Reasons.Geometry.Diameter {
							lines = append(lines, "    - "+dr)
						}
						for _, lr := range pr.Reasons.Geometry.Length {
							lines = append(lines, "    - "+lr)
						}
					}
				}
			}

			sections = append(sections, strings.Join(lines, "\n"))
		}
	}

	if len(tb.subsets) > 0 {
		sections = append(sections, tb.formatSubsets())
	}
	return strings.Join(sections, "\n\n")
}

func (tb *TextBuilder) buildDeviceDiscovery() string {
	if len(tb.summary.PassedChains) == 0 {
		return "No compatible devices found."
	}

	sourceDevices := make(map[string]bool)
	compatible := make(map[string]bool)

	for _, chain := range tb.summary.PassedChains {
		for _, path := range chain.PathResults {
			if len(path.DevicePath) > 0 {
				sourceDevices[path.DevicePath[0]] = true
			}
			for _, conn := range path.ConnectionResults {
				if conn.Status != StatusPass {
					continue
				}
				for _, passGroup := range conn.Passes {
					for _, pr := range passGroup.PairReasons {
						outerName := pr.Reasons.OuterDeviceName
						if outerName != "" && tb.specs[outerName] != nil && !sourceDevices[outerName] {
							compatible[outerName] = true
						}
					}
				}
			}
		}
	}

	var sections []string
	sections = append(sections, "SOURCE DEVICE(S):\n")
	for _, src := range sortedKeys(sourceDevices) {
		sections = append(sections, "  "+tb.deviceInline(src))
	}

	if len(compatible) > 0 {
		sections = append(sections, fmt.Sprintf("\nCOMPATIBLE DEVICES (%d found):\n", len(compatible)))
		for _, name := range sortedKeys(compatible) {
			sections = append(sections, "  "+tb.deviceInline(name))
		}
	}

	if len(tb.summary.FailedChains) > 0 {
		sections = append(sections, "\nINCOMPATIBLE CONFIGURATIONS:")
		for _, chain := range tb.summary.FailedChains {
			for _, path := range chain.PathResults {
				sections = append(sections, "\n  NOT COMPATIBLE: "+strings.Join(path.DevicePath, " -> "))
				for _, conn := range path.ConnectionResults {
					for _, failGroup := range conn.Failures {
						for _, cf := range limitCompat(failGroup.CompatibilityFailures, 1) {
							sections = append(sections, "    "+formatCompatFailure(
								cf.InnerDeviceName, cf.OuterDeviceName, cf.CompatField, cf.CompatValue, cf.SpecValue))
						}
					}
				}
			}
		}
	}

	return strings.Join(sections, "\n")
}

func (tb *TextBuilder) buildStackValidation() string {
	if len(tb.summary.PassedChains) == 0 && len(tb.summary.FailedChains) == 0 {
		return "No chain configurations were tested."
	}

	var sections []string
	sections = append(sections, fmt.Sprintf("Configurations tested: %d | Valid: %d\n",
		tb.summary.TotalChains, tb.summary.PassingChainCount))

	for _, chain := range tb.summary.PassedChains {
		for _, path := range chain.PathResults {
			if len(path.DevicePath) == 0 {
				continue
			}
			pathStr := strings.Join(path.DevicePath, " -> ")
			lines := []string{fmt.Sprintf("VALID CONFIGURATION: %s\n", pathStr)}

			lines = append(lines, "Stack order (distal -> proximal):")
			for i, dev := range path.DevicePath {
				position := "MIDDLE"
				switch i {
				case 0:
					position = "DISTAL"
				case len(path.DevicePath) - 1:
					position = "PROXIMAL"
				}
				lines = append(lines, fmt.Sprintf("  %d. [%s] %s", i+1, position, tb.deviceInline(dev)))
			}

			lines = append(lines, "\nConnection details:")
			for _, conn := range path.ConnectionResults {
				status := "Not Compatible"
				if conn.Status == StatusPass {
					status = "Compatible"
				}
				innerOD, outerID := "N/A", "N/A"
				if specs := tb.specs[conn.InnerDevice]; specs != nil {
					innerOD = fmtIn(specs.odDistalIn)
				}
				if specs := tb.specs[conn.OuterDevice]; specs != nil {
					outerID = fmtIn(specs.idIn)
				}
				lines = append(lines, fmt.Sprintf("  %s (OD %s) -> %s (ID %s): %s",
					conn.InnerDevice, innerOD, conn.OuterDevice, outerID, status))

				for _, pr := range conn.ProductResults {
					if pr.TotalVariants > 1 {
						lines = append(lines, fmt.Sprintf("    %d of %d variants compatible",
							pr.PassingVariants, pr.TotalVariants))
					}
				}

				for _, failGroup := range conn.Failures {
					for _, cf := range limitCompat(failGroup.CompatibilityFailures, 3) {
						lines = append(lines, "    Fail: "+formatCompatFailure(
							cf.InnerDeviceName, cf.OuterDeviceName, cf.CompatField, cf.CompatValue, cf.SpecValue))
					}
				}
			}

			sections = append(sections, strings.Join(lines, "\n"))
		}
	}

	for _, chain := range tb.summary.FailedChains {
		for _, path := range chain.PathResults {
			pathStr := strings.Join(path.DevicePath, " -> ")
			lines := []string{"INVALID CONFIGURATION: " + pathStr}

			for _, conn := range path.ConnectionResults {
				if conn.Status == StatusPass {
					continue
				}
				lines = append(lines, fmt.Sprintf("  Failing connection: %s -> %s", conn.InnerDevice, conn.OuterDevice))
				for _, failGroup := range conn.Failures {
					for _, cf := range limitCompat(failGroup.CompatibilityFailures, 2) {
						lines = append(lines, "    "+formatCompatFailure(
							cf.InnerDeviceName, cf.OuterDeviceName, cf.CompatField, cf.CompatValue, cf.SpecValue))
					}
					count := 0
					for _, gf := range failGroup.GeometryFailures {
						if count >= 2 {
							break
						}
						diff := "NA"
						if gf.Difference != nil {
							diff = fmt.Sprintf("%v", *gf.Difference)
						}
						lines = append(lines, fmt.Sprintf("    Geometry: outer %v vs inner %v (diff: %s)",
							gf.OuterValue, gf.InnerValue, diff))
						count++
					}
				}
			}

			sections = append(sections, strings.Join(lines, "\n"))
		}
	}

	if len(tb.subsets) > 0 {
		sections = append(sections, tb.formatSubsets())
	}
	return strings.Join(sections, "\n\n")
}

func (tb *TextBuilder) formatSubsets() string {
	lines := []string{"N-1 SUBSET CONFIGURATIONS:"}
	for _, subset := range tb.subsets {
		label := "Invalid"
		if subset.Status == StatusPass {
			label = "Valid"
		}
		lines = append(lines, fmt.Sprintf("\n  Excluding %s: %s", subset.RemovedDevice, label))
		if subset.Status == StatusPass && len(subset.Sequence) > 0 {
			lines = append(lines, "    Order: "+strings.Join(subset.Sequence, " -> "))
		}
	}
	return strings.Join(lines, "\n")
}

func limitCompat(failures []CompatFailure, n int) []CompatFailure {
	if len(failures) > n {
		return failures[:n]
	}
	return failures
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
