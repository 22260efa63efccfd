package chain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cathlab/stackcheck/internal/device"
)

// Clearance thresholds between an outer device's inner diameter and an
// inner device's outer diameter, per unit. At or above the threshold the
// fit is comfortable; a positive gap below it is a tight-fit warning.
var diameterThresholds = map[string]float64{
	"in": 0.003,
	"mm": 0.0762,
	"F":  0.23091,
}

// The inner device must extend at least this much past the outer device.
const lengthThresholdCM = 5

type compatRule struct {
	field      string
	specFields []string
	categories []string
	op         string
}

// compatRules is ordered: evaluation rows and supporting rows keep this
// order on output.
var compatRules = buildCompatRules()

func buildCompatRules() []compatRule {
	type base struct {
		rule       string
		specBase   []string
		categories []string
		op         string
	}
	bases := []base{
		{"wire_max_outer-diameter", []string{"outer-diameter-distal", "outer-diameter-proximal"}, []string{"wire"}, "<="},
		{"catheter_max_outer-diameter", []string{"outer-diameter-distal", "outer-diameter-proximal"}, []string{"catheter"}, "<="},
		{"catheter_req_inner-diameter", []string{"inner-diameter"}, []string{"catheter"}, "="},
		{"guide_or_catheter_or_sheath_min_inner-diameter", []string{"inner-diameter"}, []string{"catheter", "guide", "sheath"}, ">="},
	}
	var rules []compatRule
	for _, b := range bases {
		for _, unit := range device.DiameterUnits {
			specFields := make([]string, len(b.specBase))
			for i, sb := range b.specBase {
				specFields[i] = device.SpecField(sb, unit)
			}
			rules = append(rules, compatRule{
				field:      device.CompatField(b.rule, unit),
				specFields: specFields,
				categories: b.categories,
				op:         b.op,
			})
		}
	}
	return rules
}

type geometryRule struct {
	outerField  string
	innerFields []string
}

var geometryRules = buildGeometryRules()

func buildGeometryRules() []geometryRule {
	var rules []geometryRule
	for _, unit := range device.DiameterUnits {
		rules = append(rules, geometryRule{
			outerField: device.SpecField("inner-diameter", unit),
			innerFields: []string{
				device.SpecField("outer-diameter-distal", unit),
				device.SpecField("outer-diameter-proximal", unit),
			},
		})
	}
	rules = append(rules, geometryRule{
		outerField:  device.FieldLengthCM,
		innerFields: []string{device.FieldLengthCM},
	})
	return rules
}

// EvaluatePair grades one inner/outer variant pairing in place: claim rows,
// geometry rows, the per-track verdicts, and the combined overall verdict.
func EvaluatePair(p *Pair) *Pair {
	p.CompatRows = append(prepClaims(p, "inner"), prepClaims(p, "outer")...)
	evaluateClaims(p.CompatRows)
	p.GeometryRows = geometryRows(p.Inner, p.Outer)
	p.Compatibility = compatGrade(p.CompatRows)
	p.Geometry = geometryGrade(p.GeometryRows)
	p.Overall = overallGrade(p)
	return p
}

// prepClaims expands every compatibility rule into rows for one claimant
// role. A row is applicable only when the target device's logic tags match
// the rule's categories and the checked specification field sits on the
// correct side of the fit (an inner claimant never checks the outer
// device's outer diameter, and vice versa).
func prepClaims(p *Pair, role string) []*CompatRow {
	claimant, target := p.Inner, p.Outer
	skip := "outer-diameter"
	if role == "outer" {
		claimant, target = p.Outer, p.Inner
		skip = "inner-diameter"
	}

	var rows []*CompatRow
	for _, rule := range compatRules {
		for _, specField := range rule.specFields {
			row := &CompatRow{
				Role:               role,
				ID:                 claimant.ID(),
				DeviceName:         claimant.DeviceName(),
				LogicCategory:      claimant.Str(device.FieldLogicCategory),
				CompatField:        rule.field,
				CompatValue:        claimant[rule.field],
				FitLogic:           claimant.FitLogic(),
				OtherID:            target.ID(),
				OtherDeviceName:    target.DeviceName(),
				OtherLogicCategory: target.Str(device.FieldLogicCategory),
				SpecField:          specField,
				SpecValue:          target[specField],
				ApplicableCategory: target.HasLogicTag(rule.categories...),
				ApplicableSpec:     !strings.Contains(specField, skip),
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func evaluateClaims(rows []*CompatRow) {
	ops := make(map[string]string, len(compatRules))
	for _, rule := range compatRules {
		ops[rule.field] = rule.op
	}

	for _, row := range rows {
		if !row.ApplicableSpec || !row.ApplicableCategory {
			row.Status = StatusNA
			continue
		}
		if isMissing(row.CompatValue) || isMissing(row.SpecValue) {
			row.Status = StatusNA
			continue
		}
		spec, ok := numeric(row.SpecValue)
		if !ok {
			row.Status = StatusNA
			continue
		}
		row.Status = compareClaim(ops[row.CompatField], row.CompatValue, spec)
	}
}

// compareClaim applies the rule operator. The "=" operator accepts a
// "low-high" range encoding in the claim value.
func compareClaim(op string, compatValue any, spec float64) Status {
	switch op {
	case "<=":
		compat, ok := numeric(compatValue)
		if !ok {
			return StatusNA
		}
		return verdict(spec <= compat)
	case ">=":
		compat, ok := numeric(compatValue)
		if !ok {
			return StatusNA
		}
		return verdict(spec >= compat)
	case "=":
		s := strings.TrimSpace(fmt.Sprintf("%v", compatValue))
		if strings.Contains(s, "-") {
			parts := strings.SplitN(s, "-", 2)
			low, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			high, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 != nil || err2 != nil {
				return StatusNA
			}
			return verdict(spec >= low && spec <= high)
		}
		compat, ok := numeric(compatValue)
		if !ok {
			return StatusNA
		}
		return verdict(spec == compat)
	}
	return StatusNA
}

func verdict(pass bool) Status {
	if pass {
		return StatusPass
	}
	return StatusFail
}

// geometryRows builds the raw dimensional comparisons. The difference is
// outer ID minus inner OD for diameters, and inner length minus outer
// length for length.
func geometryRows(inner, outer device.Device) []*GeometryRow {
	var rows []*GeometryRow
	for _, rule := range geometryRules {
		for _, innerField := range rule.innerFields {
			row := &GeometryRow{
				OuterID:            outer.ID(),
				OuterName:          outer.DeviceName(),
				OuterLogicCategory: outer.Str(device.FieldLogicCategory),
				OuterField:         rule.outerField,
				OuterValue:         outer[rule.outerField],
				InnerID:            inner.ID(),
				InnerName:          inner.DeviceName(),
				InnerLogicCategory: inner.Str(device.FieldLogicCategory),
				InnerField:         innerField,
				InnerValue:         inner[innerField],
			}
			if outerVal, ok := numeric(row.OuterValue); ok {
				if innerVal, ok2 := numeric(row.InnerValue); ok2 {
					var diff float64
					if isLengthField(rule.outerField) {
						diff = innerVal - outerVal
					} else {
						diff = outerVal - innerVal
					}
					row.Difference = &diff
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// compatGrade rolls claim rows up to a pair verdict: any pass wins, else
// any fail, else NA.
func compatGrade(rows []*CompatRow) *CompatStatus {
	hasPass, hasFail := false, false
	for _, r := range rows {
		switch r.Status {
		case StatusPass:
			hasPass = true
		case StatusFail:
			hasFail = true
		}
	}

	switch {
	case hasPass:
		var supporting []*CompatRow
		for _, r := range rows {
			if r.Status == StatusPass {
				r.Note = compatNote(r, true)
				supporting = append(supporting, r)
			}
		}
		return &CompatStatus{Status: StatusPass, SupportingRows: supporting}
	case hasFail:
		var supporting []*CompatRow
		for _, r := range rows {
			if r.Status == StatusFail {
				r.Note = compatNote(r, false)
				supporting = append(supporting, r)
			}
		}
		return &CompatStatus{Status: StatusFail, SupportingRows: supporting}
	default:
		return &CompatStatus{
			Status: StatusNA,
			Notes: []string{
				"All fields were NA: the devices were not the matching category, " +
					"the compatibility field was not applicable, or the compatibility " +
					"or specification value was null",
			},
			SupportingRows: rows,
		}
	}
}

func compatNote(r *CompatRow, passed bool) string {
	roleLabel, otherLabel := "inner", "outer"
	if r.Role == "outer" {
		roleLabel, otherLabel = "outer", "inner"
	}
	if passed {
		return fmt.Sprintf(
			"The %s device %s is compatible with the %s device %s: "+
				"compatibility field %s value %v against specification field %s value %v.",
			roleLabel, r.DeviceName, otherLabel, r.OtherDeviceName,
			r.CompatField, r.CompatValue, r.SpecField, r.SpecValue)
	}
	return fmt.Sprintf(
		"The %s device %s has a compatibility issue with the %s device %s: "+
			"compatibility field %s value %v against specification field %s value %v.",
		roleLabel, r.DeviceName, otherLabel, r.OtherDeviceName,
		r.CompatField, r.CompatValue, r.SpecField, r.SpecValue)
}

func gradeGeometryRow(r *GeometryRow) Status {
	if r.Difference == nil {
		return StatusNA
	}
	delta := *r.Difference
	threshold := float64(lengthThresholdCM)
	if !isLengthField(r.InnerField) {
		threshold = diameterThresholds[unitAbbrev(r.InnerField)]
	}
	switch {
	case delta >= threshold:
		return StatusPass
	case delta > 0:
		return StatusWarning
	default:
		return StatusFail
	}
}

func geometryNote(r *GeometryRow, isLength bool) string {
	diff := *r.Difference
	if isLength {
		switch r.Status {
		case StatusPass:
			return fmt.Sprintf("The inner device extends %v cm past the outer device, at or beyond the %d cm minimum.", diff, lengthThresholdCM)
		case StatusWarning:
			return fmt.Sprintf("The inner device extends only %v cm past the outer device, under the %d cm minimum.", diff, lengthThresholdCM)
		case StatusFail:
			return fmt.Sprintf("The inner device length difference is %v cm, so it cannot pass through the outer device.", diff)
		}
		return ""
	}
	unit := unitAbbrev(r.InnerField)
	threshold := diameterThresholds[unit]
	switch r.Status {
	case StatusPass:
		return fmt.Sprintf("The clearance between outer inner-diameter and inner outer-diameter is %v %s, at or above the %v threshold.", diff, unit, threshold)
	case StatusWarning:
		return fmt.Sprintf("The clearance between outer inner-diameter and inner outer-diameter is %v %s, positive but under the %v threshold.", diff, unit, threshold)
	case StatusFail:
		return fmt.Sprintf("The clearance between outer inner-diameter and inner outer-diameter is %v %s, which is not positive.", diff, unit)
	}
	return ""
}

func gradeGeometrySubset(results []*GeometryRow, subsetType string) *GeometrySubset {
	if len(results) == 0 {
		return &GeometrySubset{
			Status: StatusNA,
			Notes:  []string{fmt.Sprintf("No %s results to evaluate", subsetType)},
		}
	}

	counts := map[Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}

	if subsetType == "diameter" {
		passCount := counts[StatusPass]
		warnCount := counts[StatusWarning]
		if counts[StatusFail] == 0 && passCount < 2 && passCount+warnCount < 2 {
			if counts[StatusNA] == len(results) {
				return &GeometrySubset{
					Status:         StatusNA,
					Notes:          []string{"Not enough diameter data to evaluate"},
					SupportingRows: results,
				}
			}
		}
	}

	isLength := subsetType == "length"
	for _, r := range results {
		if r.Status != StatusNA {
			r.Note = geometryNote(r, isLength)
		}
	}

	switch {
	case counts[StatusFail] > 0:
		var failing []*GeometryRow
		for _, r := range results {
			if r.Status == StatusFail {
				failing = append(failing, r)
			}
		}
		return &GeometrySubset{Status: StatusFail, SupportingRows: failing}
	case counts[StatusPass] > 0:
		status := StatusPass
		if counts[StatusWarning] > 0 {
			status = StatusPassWithWarning
		}
		var relevant []*GeometryRow
		for _, r := range results {
			if r.Status == StatusPass || r.Status == StatusWarning {
				relevant = append(relevant, r)
			}
		}
		return &GeometrySubset{Status: status, SupportingRows: relevant}
	case counts[StatusWarning] > 0:
		var warning []*GeometryRow
		for _, r := range results {
			if r.Status == StatusWarning {
				warning = append(warning, r)
			}
		}
		return &GeometrySubset{Status: StatusWarning, SupportingRows: warning}
	default:
		return &GeometrySubset{
			Status:         StatusNA,
			Notes:          []string{fmt.Sprintf("All %s fields were NA, specification values may be null", subsetType)},
			SupportingRows: results,
		}
	}
}

func combineGeometry(diameter, length Status) Status {
	switch {
	case diameter == StatusFail || length == StatusFail:
		return StatusFail
	case diameter == StatusNA && length == StatusNA:
		return StatusNA
	case hasWarning(diameter) || hasWarning(length):
		return StatusPassWithWarning
	case diameter == StatusPass || length == StatusPass:
		return StatusPass
	}
	return StatusNA
}

func geometryGrade(rows []*GeometryRow) *GeometryStatus {
	var diameterRows, lengthRows []*GeometryRow
	for _, r := range rows {
		r.Status = gradeGeometryRow(r)
		if isLengthField(r.InnerField) {
			lengthRows = append(lengthRows, r)
		} else {
			diameterRows = append(diameterRows, r)
		}
	}
	diameter := gradeGeometrySubset(diameterRows, "diameter")
	length := gradeGeometrySubset(lengthRows, "length")
	return &GeometryStatus{
		Status:         combineGeometry(diameter.Status, length.Status),
		Diameter:       diameter,
		Length:         length,
		SupportingRows: rows,
	}
}

// overallGrade combines the two tracks. Math-fit pairs trust geometry
// alone. Compat-fit pairs trust the claim verdict, with geometry as
// fallback when claims were NA, a length fail overriding a claim pass,
// and geometry warnings downgrading a claim pass.
func overallGrade(p *Pair) *OverallStatus {
	compat := p.Compatibility
	geo := p.Geometry
	diameterStat := geo.Diameter.Status
	lengthStat := geo.Length.Status

	if p.Inner.FitLogic() == device.FitLogicMath && p.Outer.FitLogic() == device.FitLogicMath {
		status := StatusFail
		switch geo.Status {
		case StatusPass:
			status = StatusPass
		case StatusPassWithWarning:
			status = StatusPassWithWarning
		}
		return &OverallStatus{Status: status, LogicType: LogicMath, Compatibility: compat, Geometry: geo}
	}

	logicType := LogicCompat
	var status Status
	switch compat.Status {
	case StatusFail:
		status = StatusFail
	case StatusNA:
		logicType = LogicGeometryFallback
		if hasPass(diameterStat) && hasPass(lengthStat) {
			if hasWarning(diameterStat) || hasWarning(lengthStat) {
				status = StatusPassWithWarning
			} else {
				status = StatusPass
			}
		} else {
			status = StatusFail
		}
	case StatusPass:
		status = StatusPass
		switch {
		case lengthStat == StatusFail:
			status = StatusFail
			logicType = LogicCompatLengthFail
		case diameterStat == StatusFail:
			status = StatusPassWithWarning
			logicType = LogicCompatGeoWarning
		case hasWarning(diameterStat) || hasWarning(lengthStat):
			status = StatusPassWithWarning
			logicType = LogicCompatGeoWarning
		}
	default:
		status = compat.Status
	}

	return &OverallStatus{Status: status, LogicType: logicType, Compatibility: compat, Geometry: geo}
}

func hasWarning(s Status) bool { return strings.Contains(string(s), "warning") }
func hasPass(s Status) bool    { return strings.Contains(string(s), "pass") }

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func isLengthField(field string) bool {
	return strings.Contains(field, "length") || strings.HasSuffix(field, "_cm")
}

func unitAbbrev(field string) string {
	switch {
	case strings.HasSuffix(field, "_in"):
		return "in"
	case strings.HasSuffix(field, "_mm"):
		return "mm"
	case strings.HasSuffix(field, "_F"):
		return "F"
	case strings.HasSuffix(field, "_cm"):
		return "cm"
	}
	return ""
}

func unitName(field string) string {
	switch unitAbbrev(field) {
	case "in":
		return "inches"
	case "mm":
		return "millimeters"
	case "F":
		return "French"
	case "cm":
		return "centimeters"
	}
	return ""
}
