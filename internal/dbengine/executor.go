package dbengine

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cathlab/stackcheck/internal/device"
)

// Filter is one predicate in a query spec. Value may instead come from a
// prior step's stored result via ValueFromStep.
type Filter struct {
	Field         string `json:"field"`
	Operator      string `json:"operator"`
	Value         any    `json:"value,omitempty"`
	ValueFromStep string `json:"value_from_step,omitempty"`
}

// Step is one action in a query spec. The action determines which fields
// apply.
type Step struct {
	StepID  string `json:"step_id,omitempty"`
	Action  string `json:"action"`
	StoreAs string `json:"store_as,omitempty"`

	DeviceIDs []string `json:"device_ids,omitempty"`
	Category  string   `json:"category,omitempty"`
	Filters   []Filter `json:"filters,omitempty"`

	SourceDeviceIDs []string `json:"source_device_ids,omitempty"`
	TargetCategory  string   `json:"target_category,omitempty"`
	Direction       string   `json:"direction,omitempty"`
	CheckLength     *bool    `json:"check_length,omitempty"`

	DeviceGroups [][]string `json:"device_groups,omitempty"`

	FromStep    string   `json:"from_step,omitempty"`
	FromSteps   []string `json:"from_steps,omitempty"`
	Field       string   `json:"field,omitempty"`
	Aggregation string   `json:"aggregation,omitempty"`

	DimensionValue    float64  `json:"dimension_value,omitempty"`
	DimensionOperator string   `json:"dimension_operator,omitempty"`
	AdditionalFilters []Filter `json:"additional_filters,omitempty"`

	sourceData []SpecRecord
}

// QuerySpec is either a single action or a multi-step pipeline. Steps, when
// present, win.
type QuerySpec struct {
	Step
	Steps []Step `json:"steps,omitempty"`
}

// DimensionMatches is the search_both_id_od result: the same dimension
// matched against both inner and outer diameter.
type DimensionMatches struct {
	IDMatches         []SpecRecord `json:"id_matches"`
	ODMatches         []SpecRecord `json:"od_matches"`
	DimensionValue    float64      `json:"dimension_value"`
	DimensionOperator string       `json:"dimension_operator"`
}

// Execution is the executor output. Results holds the final step's value:
// []SpecRecord for most actions, *DimensionMatches for search_both_id_od,
// a scalar for extract_value.
type Execution struct {
	Results any            `json:"results"`
	Context map[string]any `json:"context"`
	Summary string         `json:"summary"`
}

// DeviceList flattens the final results into spec records, merging the
// two match groups of a dimension search.
func (e *Execution) DeviceList() []SpecRecord {
	switch t := e.Results.(type) {
	case []SpecRecord:
		return t
	case *DimensionMatches:
		if t == nil {
			return nil
		}
		return append(append([]SpecRecord(nil), t.IDMatches...), t.ODMatches...)
	}
	return nil
}

// Executor runs query specs against the catalog.
type Executor struct {
	db  *device.Store
	log *slog.Logger
}

func NewExecutor(db *device.Store, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{db: db, log: log}
}

// Execute runs a spec. Multi-step specs store each step's value under its
// store_as key; the last step's value becomes the result.
func (x *Executor) Execute(spec QuerySpec) *Execution {
	if len(spec.Steps) > 0 {
		return x.executeMultiStep(spec)
	}
	result := x.runAction(spec.Step, nil)
	return &Execution{
		Results: result,
		Context: map[string]any{},
		Summary: summarize(spec.Step, result),
	}
}

func (x *Executor) executeMultiStep(spec QuerySpec) *Execution {
	ctx := make(map[string]any, len(spec.Steps))
	var last any
	for _, step := range spec.Steps {
		result := x.runAction(step, ctx)
		key := step.StoreAs
		if key == "" {
			key = step.StepID
		}
		if key != "" {
			ctx[key] = result
		}
		last = result
	}
	return &Execution{
		Results: last,
		Context: ctx,
		Summary: summarizeMultiStep(spec.Steps, ctx),
	}
}

func (x *Executor) runAction(step Step, ctx map[string]any) any {
	step = resolveReferences(step, ctx)

	switch step.Action {
	case "get_device_specs":
		return x.getDeviceSpecs(step)
	case "filter_by_spec":
		return x.filterBySpec(step)
	case "find_compatible":
		return x.findCompatible(step)
	case "compare_devices":
		return x.compareDevices(step)
	case "extract_value":
		return x.extractValue(step)
	case "intersect":
		return x.intersect(step, ctx)
	case "union":
		return x.union(step, ctx)
	case "search_both_id_od":
		return x.searchBothIDOD(step)
	default:
		x.log.Warn("unknown query action", "action", step.Action)
		return []SpecRecord{}
	}
}

// resolveReferences substitutes stored step values into value_from_step
// filters and loads from_step data for extract_value.
func resolveReferences(step Step, ctx map[string]any) Step {
	if len(ctx) == 0 {
		return step
	}
	if len(step.Filters) > 0 {
		filters := make([]Filter, len(step.Filters))
		copy(filters, step.Filters)
		for i, f := range filters {
			if f.ValueFromStep == "" {
				continue
			}
			if v, ok := ctx[f.ValueFromStep]; ok {
				filters[i].Value = v
				filters[i].ValueFromStep = ""
			}
		}
		step.Filters = filters
	}
	if step.FromStep != "" {
		if records, ok := ctx[step.FromStep].([]SpecRecord); ok {
			step.sourceData = records
		}
	}
	return step
}

func (x *Executor) getDeviceSpecs(step Step) []SpecRecord {
	results := make([]SpecRecord, 0, len(step.DeviceIDs))
	for _, id := range step.DeviceIDs {
		if rec, ok := ExtractSpecs(x.db, cleanID(id)); ok {
			results = append(results, rec)
		}
	}
	return results
}

func (x *Executor) filterBySpec(step Step) []SpecRecord {
	var results []SpecRecord
	x.db.All(func(d device.Device) bool {
		if step.Category != "" && !matchesCategory(d, step.Category) {
			return true
		}
		if !passesFilters(d, step.Filters) {
			return true
		}
		if rec, ok := ExtractSpecs(x.db, d.ID()); ok {
			results = append(results, rec)
		}
		return true
	})
	sortByID(results)
	x.log.Debug("filter_by_spec", "matches", len(results))
	return results
}

func (x *Executor) findCompatible(step Step) []SpecRecord {
	checkLength := step.CheckLength == nil || *step.CheckLength
	direction := step.Direction
	if direction == "" {
		direction = "inner"
	}

	sourceIDs := make(map[string]bool, len(step.SourceDeviceIDs))
	var sources []SpecRecord
	for _, id := range step.SourceDeviceIDs {
		id = cleanID(id)
		sourceIDs[id] = true
		if rec, ok := ExtractSpecs(x.db, id); ok {
			sources = append(sources, rec)
		}
	}
	if len(sources) == 0 {
		x.log.Warn("find_compatible with no resolvable source devices")
		return []SpecRecord{}
	}

	var results []SpecRecord
	x.db.All(func(d device.Device) bool {
		id := d.ID()
		if sourceIDs[id] {
			return true
		}
		if step.TargetCategory != "" && !matchesCategory(d, step.TargetCategory) {
			return true
		}
		target, ok := ExtractSpecs(x.db, id)
		if !ok {
			return true
		}
		if reason, ok := connectionFits(sources, target, direction, checkLength); ok {
			target.CompatibilityReason = reason
			results = append(results, target)
		}
		return true
	})
	sortByID(results)
	x.log.Debug("find_compatible", "matches", len(results))
	return results
}

func (x *Executor) compareDevices(step Step) []SpecRecord {
	var results []SpecRecord
	for _, group := range step.DeviceGroups {
		for _, id := range group {
			if rec, ok := ExtractSpecs(x.db, cleanID(id)); ok {
				results = append(results, rec)
			}
		}
	}
	return results
}

func (x *Executor) extractValue(step Step) any {
	var values []any
	for _, rec := range step.sourceData {
		v, ok := rec.Specifications.Get(step.Field)
		if !ok {
			v, ok = identityField(rec, step.Field)
		}
		if !ok {
			continue
		}
		if f, isNum := asFloat(v); isNum {
			values = append(values, f)
		} else {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		x.log.Warn("extract_value found no values", "field", step.Field)
		return nil
	}

	nums := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := v.(float64)
		if !ok {
			return values[0]
		}
		nums = append(nums, f)
	}

	switch step.Aggregation {
	case "max":
		max := nums[0]
		for _, f := range nums[1:] {
			if f > max {
				max = f
			}
		}
		return max
	case "avg":
		sum := 0.0
		for _, f := range nums {
			sum += f
		}
		return sum / float64(len(nums))
	case "first":
		return nums[0]
	case "min", "":
		min := nums[0]
		for _, f := range nums[1:] {
			if f < min {
				min = f
			}
		}
		return min
	default:
		return nums[0]
	}
}

func (x *Executor) intersect(step Step, ctx map[string]any) []SpecRecord {
	if len(step.FromSteps) == 0 {
		return []SpecRecord{}
	}

	common := make(map[string]bool)
	for i, ref := range step.FromSteps {
		records, _ := ctx[ref].([]SpecRecord)
		ids := make(map[string]bool, len(records))
		for _, r := range records {
			if r.DeviceID != "" {
				ids[r.DeviceID] = true
			}
		}
		if i == 0 {
			common = ids
			continue
		}
		for id := range common {
			if !ids[id] {
				delete(common, id)
			}
		}
	}

	first, _ := ctx[step.FromSteps[0]].([]SpecRecord)
	var results []SpecRecord
	for _, r := range first {
		if common[r.DeviceID] {
			results = append(results, r)
		}
	}
	return results
}

func (x *Executor) union(step Step, ctx map[string]any) []SpecRecord {
	seen := make(map[string]bool)
	var results []SpecRecord
	for _, ref := range step.FromSteps {
		records, _ := ctx[ref].([]SpecRecord)
		for _, r := range records {
			if r.DeviceID == "" || seen[r.DeviceID] {
				continue
			}
			seen[r.DeviceID] = true
			results = append(results, r)
		}
	}
	return results
}

func (x *Executor) searchBothIDOD(step Step) *DimensionMatches {
	op := step.DimensionOperator
	if op == "" {
		op = ">="
	}
	out := &DimensionMatches{
		IDMatches:         []SpecRecord{},
		ODMatches:         []SpecRecord{},
		DimensionValue:    step.DimensionValue,
		DimensionOperator: op,
	}

	x.db.All(func(d device.Device) bool {
		if step.Category != "" && !matchesCategory(d, step.Category) {
			return true
		}
		if !passesFilters(d, step.AdditionalFilters) {
			return true
		}
		rec, ok := ExtractSpecs(x.db, d.ID())
		if !ok {
			return true
		}
		if id, ok := rec.SpecFloat("ID_in"); ok && compareValues(id, op, step.DimensionValue) {
			match := rec
			match.MatchedField = "ID_in"
			match.MatchedValue = id
			out.IDMatches = append(out.IDMatches, match)
		}
		if od, ok := rec.SpecFloat("OD_distal_in"); ok && compareValues(od, op, step.DimensionValue) {
			match := rec
			match.MatchedField = "OD_distal_in"
			match.MatchedValue = od
			out.ODMatches = append(out.ODMatches, match)
		}
		return true
	})
	sortByID(out.IDMatches)
	sortByID(out.ODMatches)
	x.log.Debug("search_both_id_od", "id_matches", len(out.IDMatches), "od_matches", len(out.ODMatches))
	return out
}

// connectionFits checks a single connection point between any source
// variant and the target: inches-diameter fit in the given direction, and
// the outer device no shorter than the inner one when lengths are known.
func connectionFits(sources []SpecRecord, target SpecRecord, direction string, checkLength bool) (string, bool) {
	for _, source := range sources {
		fits := false
		switch direction {
		case "inner":
			sourceID, okS := source.SpecFloat("ID_in")
			targetOD, okT := target.SpecFloat("OD_distal_in")
			fits = okS && okT && targetOD <= sourceID
		case "outer":
			sourceOD, okS := source.SpecFloat("OD_distal_in")
			targetID, okT := target.SpecFloat("ID_in")
			fits = okS && okT && targetID >= sourceOD
		}
		if !fits {
			continue
		}

		if checkLength {
			sourceLen, okS := source.SpecFloat("length_cm")
			targetLen, okT := target.SpecFloat("length_cm")
			if okS && okT && targetLen < sourceLen {
				continue
			}
		}
		return "math_fit_pass", true
	}
	return "no_fit", false
}

// passesFilters applies every filter; a missing field fails the record.
// Numeric comparison is tried first, falling back to case-insensitive
// string semantics for ==, != and contains.
func passesFilters(d device.Device, filters []Filter) bool {
	for _, f := range filters {
		raw, ok := d[CatalogField(f.Field)]
		if !ok || raw == nil {
			return false
		}

		devNum, devOK := asFloat(raw)
		targetNum, targetOK := asFloat(f.Value)
		if devOK && targetOK {
			if !compareValues(devNum, f.Operator, targetNum) {
				return false
			}
			continue
		}

		dv := strings.ToLower(stringify(raw))
		tv := strings.ToLower(stringify(f.Value))
		switch f.Operator {
		case "==":
			if dv != tv {
				return false
			}
		case "!=":
			if dv == tv {
				return false
			}
		case "contains":
			if !strings.Contains(dv, tv) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues applies a numeric operator; equality uses a 1e-4 epsilon
// because catalog dimensions are decimal inches.
func compareValues(deviceValue float64, operator string, targetValue float64) bool {
	switch operator {
	case "<=":
		return deviceValue <= targetValue
	case ">=":
		return deviceValue >= targetValue
	case "<":
		return deviceValue < targetValue
	case ">":
		return deviceValue > targetValue
	case "==":
		return math.Abs(deviceValue-targetValue) < 0.0001
	case "!=":
		return math.Abs(deviceValue-targetValue) >= 0.0001
	}
	return false
}

func identityField(rec SpecRecord, field string) (any, bool) {
	switch field {
	case "device_id":
		return rec.DeviceID, true
	case "product_name":
		return rec.ProductName, true
	case "device_name":
		return rec.DeviceName, true
	case "manufacturer":
		return rec.Manufacturer, true
	case "conical_category":
		return rec.ConicalCategory, true
	case "logic_category":
		return rec.LogicCategory, true
	}
	if v, ok := rec.Compatibility.Get(field); ok {
		return v, true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	if f, ok := asFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return ""
}

// cleanID strips the stray commas and whitespace model output sometimes
// leaves on id strings.
func cleanID(id string) string {
	return strings.Trim(strings.TrimSpace(id), ", ")
}

// sortByID orders scan results numerically by id so catalog map iteration
// order never leaks into responses.
func sortByID(records []SpecRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, aErr := strconv.Atoi(records[i].DeviceID)
		b, bErr := strconv.Atoi(records[j].DeviceID)
		if aErr == nil && bErr == nil {
			return a < b
		}
		return records[i].DeviceID < records[j].DeviceID
	})
}
