package chain

import (
	"fmt"
	"math"
	"strings"
)

// ProductResult summarizes one product combination across its variants.
type ProductResult struct {
	Combination     string `json:"product_combination"`
	Status          Status `json:"status"`
	TotalVariants   int    `json:"total_variants"`
	PassingVariants int    `json:"passing_variants"`
	FailingVariants int    `json:"failing_variants"`
}

// CompatFailure is one failing compatibility claim with its context.
type CompatFailure struct {
	PairKey           string `json:"pair_key"`
	DeviceCombination string `json:"device_combination"`
	InnerDeviceName   string `json:"inner_device_name"`
	OuterDeviceName   string `json:"outer_device_name"`
	Reason            string `json:"reason"`
	CompatField       string `json:"compatibility_field"`
	CompatValue       any    `json:"compat_value"`
	SpecField         string `json:"specification_field"`
	SpecValue         any    `json:"spec_value"`
}

// GeometryFailure is one failing dimensional comparison with its context.
type GeometryFailure struct {
	PairKey           string   `json:"pair_key"`
	DeviceCombination string   `json:"device_combination"`
	InnerDeviceName   string   `json:"inner_device_name"`
	OuterDeviceName   string   `json:"outer_device_name"`
	Reason            string   `json:"reason"`
	OuterField        string   `json:"outer_field"`
	OuterValue        any      `json:"outer_value"`
	InnerField        string   `json:"inner_field"`
	InnerValue        any      `json:"inner_value"`
	Difference        *float64 `json:"difference"`
}

// GeometryReasons holds templated reasons split by measurement subset.
type GeometryReasons struct {
	Diameter []string `json:"diameter"`
	Length   []string `json:"length"`
}

// PairReasons is the human-readable explanation for one pair's verdict.
type PairReasons struct {
	InnerDeviceName      string          `json:"inner_device_name"`
	OuterDeviceName      string          `json:"outer_device_name"`
	CompatibilityReasons []string        `json:"compatibility_reasons"`
	Geometry             GeometryReasons `json:"geometry_reasons"`
	Summary              string          `json:"summary"`
}

// Pass reason types recorded on PairReasonEntry.
const (
	PassReasonStandard         = "standard"
	PassReasonGeometryOverride = "geometry_override"
)

// PairReasonEntry ties reasons to a concrete pair key.
type PairReasonEntry struct {
	PairKey        string       `json:"pair_key"`
	Reasons        *PairReasons `json:"reasons"`
	PassReasonType string       `json:"pass_reason_type,omitempty"`
	OverrideNote   string       `json:"override_note,omitempty"`
}

// FailureInfo aggregates everything that failed for one product combination.
type FailureInfo struct {
	DeviceCombination     string            `json:"device_combination"`
	TotalFailingPairs     int               `json:"total_failing_pairs"`
	CompatibilityFailures []CompatFailure   `json:"compatibility_failures"`
	GeometryFailures      []GeometryFailure `json:"geometry_failures"`
	PairReasons           []PairReasonEntry `json:"pair_reasons"`
}

// PassInfo aggregates pass reasons for one product combination.
type PassInfo struct {
	DeviceCombination string            `json:"device_combination"`
	TotalPassingPairs int               `json:"total_passing_pairs"`
	PairReasons       []PairReasonEntry `json:"pair_reasons"`
}

// ConnectionAnalysis is the rollup for one junction. It passes when every
// product combination has at least one passing variant pairing.
type ConnectionAnalysis struct {
	Connection     string          `json:"connection"`
	ConnectionType string          `json:"connection_type"`
	InnerDevice    string          `json:"inner_device"`
	OuterDevice    string          `json:"outer_device"`
	Status         Status          `json:"status"`
	ProductResults []ProductResult `json:"product_results"`
	Failures       []FailureInfo   `json:"failures"`
	Passes         []PassInfo      `json:"passes"`
}

// PathAnalysis is the rollup for one ordering: all connections must pass.
type PathAnalysis struct {
	PathIndex         int                   `json:"path_index"`
	DevicePath        []string              `json:"device_path"`
	Status            Status                `json:"status"`
	ConnectionResults []*ConnectionAnalysis `json:"connection_results"`
}

// ChainAnalysis is the rollup for one chain: any passing path passes it.
type ChainAnalysis struct {
	ChainIndex   int             `json:"chain_index"`
	ActiveLevels []string        `json:"active_levels"`
	TotalPaths   int             `json:"total_paths"`
	Status       Status          `json:"status"`
	PassingPaths int             `json:"passing_paths"`
	FailingPaths int             `json:"failing_paths"`
	PathResults  []*PathAnalysis `json:"path_results"`
}

// Summary groups analyzed chains by verdict.
type Summary struct {
	TotalChains       int              `json:"total_chains"`
	PassingChainCount int              `json:"passing_chain_count"`
	FailingChainCount int              `json:"failing_chain_count"`
	PassedChains      []*ChainAnalysis `json:"passed_chains"`
	FailedChains      []*ChainAnalysis `json:"failed_chains"`
}

// Analyzer rolls processed pair results up to product, connection, path,
// and chain verdicts, generating templated reasons along the way.
type Analyzer struct {
	processed []*ChainResult
}

func NewAnalyzer(processed []*ChainResult) *Analyzer {
	return &Analyzer{processed: processed}
}

// Analyze returns the per-chain rollups.
func (a *Analyzer) Analyze() []*ChainAnalysis {
	results := make([]*ChainAnalysis, 0, len(a.processed))
	for _, chain := range a.processed {
		results = append(results, a.analyzeChain(chain))
	}
	return results
}

// Summary groups the rollups by verdict.
func (a *Analyzer) Summary() *Summary {
	analysis := a.Analyze()
	sum := &Summary{TotalChains: len(analysis)}
	for _, chain := range analysis {
		if chain.Status == StatusPass {
			sum.PassedChains = append(sum.PassedChains, chain)
		} else {
			sum.FailedChains = append(sum.FailedChains, chain)
		}
	}
	sum.PassingChainCount = len(sum.PassedChains)
	sum.FailingChainCount = len(sum.FailedChains)
	return sum
}

// PassingPaths returns every passing ordering across all chains.
func (a *Analyzer) PassingPaths() []map[string]any {
	var out []map[string]any
	for _, chain := range a.Analyze() {
		for _, path := range chain.PathResults {
			if path.Status == StatusPass {
				out = append(out, map[string]any{
					"chain_index": chain.ChainIndex,
					"path_index":  path.PathIndex,
					"device_path": path.DevicePath,
				})
			}
		}
	}
	return out
}

func (a *Analyzer) analyzeChain(chain *ChainResult) *ChainAnalysis {
	result := &ChainAnalysis{
		ChainIndex:   chain.Index,
		ActiveLevels: chain.ActiveLevels,
		TotalPaths:   chain.TotalPaths,
	}
	for _, path := range chain.Paths {
		pa := a.analyzePath(path)
		result.PathResults = append(result.PathResults, pa)
		if pa.Status == StatusPass {
			result.PassingPaths++
		} else {
			result.FailingPaths++
		}
	}
	result.Status = StatusFail
	if result.PassingPaths > 0 {
		result.Status = StatusPass
	}
	return result
}

func (a *Analyzer) analyzePath(path *Path) *PathAnalysis {
	pa := &PathAnalysis{
		PathIndex:  path.Index,
		DevicePath: path.Path,
		Status:     StatusPass,
	}
	for _, conn := range path.Connections {
		ca := a.analyzeConnection(conn)
		pa.ConnectionResults = append(pa.ConnectionResults, ca)
		if ca.Status == StatusFail {
			pa.Status = StatusFail
		}
	}
	return pa
}

// analyzeConnection groups variant pairings by product combination. A
// combination passes when any variant pairing passes; the connection
// passes when every combination does. The overall pair verdict is the
// single source of truth here.
func (a *Analyzer) analyzeConnection(conn *Connection) *ConnectionAnalysis {
	ca := &ConnectionAnalysis{
		Connection:     conn.Connection,
		ConnectionType: conn.ConnectionType,
		InnerDevice:    conn.InnerDevice,
		OuterDevice:    conn.OuterDevice,
		Status:         StatusPass,
	}

	byProduct := make(map[string][]*Pair)
	var order []string
	for _, pair := range conn.Pairs {
		key := pair.InnerName + " -> " + pair.OuterName
		if _, seen := byProduct[key]; !seen {
			order = append(order, key)
		}
		byProduct[key] = append(byProduct[key], pair)
	}

	for _, key := range order {
		pairs := byProduct[key]
		var passing, failing []*Pair
		for _, pair := range pairs {
			status := StatusFail
			if pair.Overall != nil {
				status = pair.Overall.Status
			}
			if status.Passing() {
				passing = append(passing, pair)
			} else {
				failing = append(failing, pair)
			}
		}

		productStatus := StatusFail
		if len(passing) > 0 {
			productStatus = StatusPass
		} else {
			ca.Status = StatusFail
		}

		ca.ProductResults = append(ca.ProductResults, ProductResult{
			Combination:     key,
			Status:          productStatus,
			TotalVariants:   len(pairs),
			PassingVariants: len(passing),
			FailingVariants: len(failing),
		})

		if len(failing) > 0 {
			ca.Failures = append(ca.Failures, a.extractFailures(failing))
		}
		if len(passing) > 0 {
			ca.Passes = append(ca.Passes, a.extractPasses(passing))
		}
	}
	return ca
}

func pairDeviceNames(pair *Pair) (inner, outer string) {
	inner, outer = pair.InnerName, pair.OuterName
	if n := pair.Inner.DeviceName(); n != "" {
		inner = n
	}
	if n := pair.Outer.DeviceName(); n != "" {
		outer = n
	}
	return inner, outer
}

func (a *Analyzer) extractFailures(failing []*Pair) FailureInfo {
	firstInner, firstOuter := pairDeviceNames(failing[0])
	info := FailureInfo{
		DeviceCombination: firstInner + " -> " + firstOuter,
		TotalFailingPairs: len(failing),
	}

	for _, pair := range failing {
		info.PairReasons = append(info.PairReasons, PairReasonEntry{
			PairKey: pair.Key,
			Reasons: a.generatePairReasons(pair),
		})

		innerName, outerName := pairDeviceNames(pair)
		comboKey := innerName + " -> " + outerName

		if pair.Compatibility != nil && pair.Compatibility.Status == StatusFail {
			for _, row := range pair.Compatibility.SupportingRows {
				if row.Status != StatusFail {
					continue
				}
				reason := row.Note
				if reason == "" {
					reason = "No details available"
				}
				info.CompatibilityFailures = append(info.CompatibilityFailures, CompatFailure{
					PairKey:           pair.Key,
					DeviceCombination: comboKey,
					InnerDeviceName:   innerName,
					OuterDeviceName:   outerName,
					Reason:            reason,
					CompatField:       row.CompatField,
					CompatValue:       row.CompatValue,
					SpecField:         row.SpecField,
					SpecValue:         row.SpecValue,
				})
			}
		}

		if pair.Geometry != nil && pair.Geometry.Status == StatusFail {
			for _, row := range pair.Geometry.SupportingRows {
				if row.Status != StatusFail {
					continue
				}
				reason := row.Note
				if reason == "" {
					reason = "No details available"
				}
				info.GeometryFailures = append(info.GeometryFailures, GeometryFailure{
					PairKey:           pair.Key,
					DeviceCombination: comboKey,
					InnerDeviceName:   innerName,
					OuterDeviceName:   outerName,
					Reason:            reason,
					OuterField:        row.OuterField,
					OuterValue:        row.OuterValue,
					InnerField:        row.InnerField,
					InnerValue:        row.InnerValue,
					Difference:        row.Difference,
				})
			}
		}
	}
	return info
}

func (a *Analyzer) extractPasses(passing []*Pair) PassInfo {
	firstInner, firstOuter := pairDeviceNames(passing[0])
	info := PassInfo{
		DeviceCombination: firstInner + " -> " + firstOuter,
		TotalPassingPairs: len(passing),
	}

	for _, pair := range passing {
		entry := PairReasonEntry{
			PairKey:        pair.Key,
			Reasons:        a.generatePairReasons(pair),
			PassReasonType: PassReasonStandard,
		}

		compatStat := StatusNA
		diameterStat, lengthStat := StatusNA, StatusNA
		if pair.Overall != nil {
			if pair.Overall.Compatibility != nil {
				compatStat = pair.Overall.Compatibility.Status
			}
			if pair.Overall.Geometry != nil {
				diameterStat = pair.Overall.Geometry.Diameter.Status
				lengthStat = pair.Overall.Geometry.Length.Status
			}
		}

		if compatStat == StatusFail {
			entry.PassReasonType = PassReasonGeometryOverride
			if hasPass(diameterStat) && hasPass(lengthStat) {
				entry.OverrideNote = fmt.Sprintf(
					"Note: Compatibility check failed, but geometry check passed "+
						"(diameter: %s, length: %s). Connection marked as PASS based on geometry.",
					diameterStat, lengthStat)
			}
		}

		info.PairReasons = append(info.PairReasons, entry)
	}
	return info
}

// generatePairReasons renders the human-readable explanation for one pair:
// unit-collapsed compatibility reasons, geometry reasons per subset, and a
// one-line summary.
func (a *Analyzer) generatePairReasons(pair *Pair) *PairReasons {
	innerName, outerName := pairDeviceNames(pair)
	reasons := &PairReasons{
		InnerDeviceName: innerName,
		OuterDeviceName: outerName,
	}

	compatStat := StatusNA
	if pair.Compatibility != nil {
		compatStat = pair.Compatibility.Status
		if compatStat == StatusPass || compatStat == StatusFail {
			for _, row := range selectBestCompatRows(pair.Compatibility.SupportingRows, compatStat) {
				reasons.CompatibilityReasons = append(reasons.CompatibilityReasons, compatReason(row))
			}
		}
	}

	var diameter, length *GeometrySubset
	if pair.Geometry != nil {
		diameter = pair.Geometry.Diameter
		length = pair.Geometry.Length
		for _, row := range selectBestGeometryRows(diameter.SupportingRows) {
			reasons.Geometry.Diameter = append(reasons.Geometry.Diameter, geometryReason(row, innerName, outerName))
		}
		for _, row := range selectBestGeometryRows(length.SupportingRows) {
			reasons.Geometry.Length = append(reasons.Geometry.Length, geometryReason(row, innerName, outerName))
		}
	}

	reasons.Summary = pairSummary(innerName, outerName, compatStat, diameter, length)
	return reasons
}

// selectBestCompatRows collapses redundant unit encodings: for each base
// claim field keep the preferred unit (in, then mm, then F).
func selectBestCompatRows(rows []*CompatRow, statusFilter Status) []*CompatRow {
	grouped := make(map[string]map[string]*CompatRow)
	var order []string
	for _, row := range rows {
		if row.Status != statusFilter {
			continue
		}
		if row.Status != StatusPass && row.Status != StatusFail {
			continue
		}
		base := stripUnitSuffix(row.CompatField)
		unit := unitAbbrev(row.CompatField)
		if _, seen := grouped[base]; !seen {
			grouped[base] = make(map[string]*CompatRow)
			order = append(order, base)
		}
		grouped[base][unit] = row
	}

	var selected []*CompatRow
	for _, base := range order {
		units := grouped[base]
		for _, unit := range []string{"in", "mm", "F"} {
			if row, ok := units[unit]; ok {
				selected = append(selected, row)
				break
			}
		}
	}
	return selected
}

// selectBestGeometryRows collapses redundant unit encodings per field
// pairing, preferring in, then mm, then F, then cm. Rows with no computed
// difference are skipped.
func selectBestGeometryRows(rows []*GeometryRow) []*GeometryRow {
	grouped := make(map[string]map[string]*GeometryRow)
	var order []string
	for _, row := range rows {
		if row.Difference == nil {
			continue
		}
		key := stripUnitSuffix(stripSpecPrefix(row.OuterField)) + "_" + stripUnitSuffix(stripSpecPrefix(row.InnerField))
		unit := unitAbbrev(row.OuterField)
		if _, seen := grouped[key]; !seen {
			grouped[key] = make(map[string]*GeometryRow)
			order = append(order, key)
		}
		grouped[key][unit] = row
	}

	var selected []*GeometryRow
	for _, key := range order {
		units := grouped[key]
		for _, unit := range []string{"in", "mm", "F", "cm"} {
			if row, ok := units[unit]; ok {
				selected = append(selected, row)
				break
			}
		}
	}
	return selected
}

func stripSpecPrefix(field string) string {
	return strings.TrimPrefix(field, "specification_")
}

func stripUnitSuffix(field string) string {
	for _, suffix := range []string{"_in", "_mm", "_F", "_cm"} {
		field = strings.TrimSuffix(field, suffix)
	}
	return field
}

func cleanFieldName(field string) string {
	name := stripUnitSuffix(stripSpecPrefix(field))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return name
}

func geometryReason(row *GeometryRow, innerName, outerName string) string {
	outerField := cleanFieldName(row.OuterField)
	innerField := cleanFieldName(row.InnerField)
	unit := unitName(row.OuterField)
	diff := *row.Difference

	if isLengthField(row.OuterField) {
		comparison := "shorter"
		if diff > 0 {
			comparison = "longer"
		}
		return fmt.Sprintf("The %s %s value of %v %s is %.4f %s %s than the %s %s's %v %s. Status: %s.",
			innerName, innerField, row.InnerValue, unit, math.Abs(diff), unit, comparison,
			outerName, outerField, row.OuterValue, unit, row.Status)
	}
	comparison := "smaller"
	if diff > 0 {
		comparison = "larger"
	}
	return fmt.Sprintf("The %s %s value of %v %s is %.4f %s %s than the %s %s's %v %s. Status: %s.",
		outerName, outerField, row.OuterValue, unit, math.Abs(diff), unit, comparison,
		innerName, innerField, row.InnerValue, unit, row.Status)
}

func compatReason(row *CompatRow) string {
	unit := unitName(row.CompatField)
	specField := cleanFieldName(row.SpecField)

	deviceLabel := fmt.Sprintf("The inner device %s", row.DeviceName)
	otherLabel := fmt.Sprintf("the outer device %s", row.OtherDeviceName)
	if row.Role == "outer" {
		deviceLabel = fmt.Sprintf("The outer device %s", row.DeviceName)
		otherLabel = fmt.Sprintf("the inner device %s", row.OtherDeviceName)
	}

	switch {
	case strings.Contains(row.CompatField, "wire_max_outer-diameter"):
		return fmt.Sprintf("%s is compatible with a wire that has a maximum outer diameter of %v %s and %s has a %s of %v %s. Status: %s.",
			deviceLabel, row.CompatValue, unit, otherLabel, specField, row.SpecValue, unit, row.Status)
	case strings.Contains(row.CompatField, "catheter_max_outer-diameter"):
		return fmt.Sprintf("%s is compatible with a catheter that has a maximum outer diameter of %v %s and %s has a %s of %v %s. Status: %s.",
			deviceLabel, row.CompatValue, unit, otherLabel, specField, row.SpecValue, unit, row.Status)
	case strings.Contains(row.CompatField, "catheter_req_inner-diameter"):
		value := fmt.Sprintf("%v", row.CompatValue)
		if parts := strings.SplitN(value, "-", 2); len(parts) == 2 && parts[0] != parts[1] {
			return fmt.Sprintf("%s is compatible with a catheter that has an inner diameter >= %s %s and <= %s %s and %s has a %s of %v %s. Status: %s.",
				deviceLabel, parts[0], unit, parts[1], unit, otherLabel, specField, row.SpecValue, unit, row.Status)
		}
		eq := value
		if parts := strings.SplitN(value, "-", 2); len(parts) == 2 {
			eq = parts[0]
		}
		return fmt.Sprintf("%s is compatible with a catheter that has an inner diameter equal to %s %s and %s has a %s of %v %s. Status: %s.",
			deviceLabel, eq, unit, otherLabel, specField, row.SpecValue, unit, row.Status)
	case strings.Contains(row.CompatField, "guide_or_catheter_or_sheath_min_inner-diameter"):
		return fmt.Sprintf("%s is compatible with a guide, catheter or sheath that has a minimum inner diameter of %v %s and %s has a %s of %v %s. Status: %s.",
			deviceLabel, row.CompatValue, unit, otherLabel, specField, row.SpecValue, unit, row.Status)
	}
	return fmt.Sprintf("%s has a %s of %v %s and %s has a %s of %v %s. Status: %s.",
		deviceLabel, row.CompatField, row.CompatValue, unit, otherLabel, specField, row.SpecValue, unit, row.Status)
}

// pairSummary applies the verdict decision table: a length fail overrides
// a claim pass, geometry can rescue a claim fail or stand in for absent
// claims, otherwise the claim verdict stands.
func pairSummary(innerName, outerName string, compatStat Status, diameter, length *GeometrySubset) string {
	diaStat, lenStat := StatusNA, StatusNA
	if diameter != nil {
		diaStat = diameter.Status
	}
	if length != nil {
		lenStat = length.Status
	}
	geometryPasses := hasPass(diaStat) && hasPass(lenStat)

	if compatStat == StatusPass && lenStat == StatusFail {
		detail := ""
		if length != nil {
			for _, row := range length.SupportingRows {
				if row.Status == StatusFail {
					detail = fmt.Sprintf(" The inner device length (%v cm) is shorter than the outer device length (%v cm).",
						row.InnerValue, row.OuterValue)
					break
				}
			}
		}
		return fmt.Sprintf("The connection between %s and %s FAILED. Diameter compatibility passed, "+
			"but the inner device is too short to physically pass through the outer device.%s",
			innerName, outerName, detail)
	}

	switch compatStat {
	case StatusFail:
		if geometryPasses {
			return fmt.Sprintf("The connection between %s and %s PASSED based on geometry check "+
				"(compatibility check failed but geometry override applied). "+
				"Diameter status: %s, Length status: %s.", innerName, outerName, diaStat, lenStat)
		}
		return fmt.Sprintf("The connection between %s and %s FAILED based on compatibility check.", innerName, outerName)
	case StatusPass:
		return fmt.Sprintf("The connection between %s and %s PASSED based on compatibility check.", innerName, outerName)
	case StatusNA:
		if geometryPasses {
			return fmt.Sprintf("The connection between %s and %s PASSED based on geometry check. "+
				"Diameter status: %s, Length status: %s.", innerName, outerName, diaStat, lenStat)
		}
		return fmt.Sprintf("The connection between %s and %s FAILED based on geometry check. "+
			"Diameter status: %s, Length status: %s.", innerName, outerName, diaStat, lenStat)
	}
	return fmt.Sprintf("The connection between %s and %s has an unknown status.", innerName, outerName)
}
