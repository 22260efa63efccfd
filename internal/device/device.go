// Package device holds the read-only device catalog: O(1) lookup by id,
// a text-search index over names, and a fuzzy-match suggester.
package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical catalog field names. Dimension fields are recorded redundantly
// per unit; the evaluator matches claim units to spec units strictly.
const (
	FieldID              = "id"
	FieldProductName     = "product_name"
	FieldDeviceName      = "device_name"
	FieldManufacturer    = "manufacturer"
	FieldAliases         = "aliases"
	FieldCategoryType    = "category_type"
	FieldConicalCategory = "conical_category"
	FieldLogicCategory   = "logic_category"
	FieldFitLogic        = "fit_logic"

	FieldLengthCM = "specification_length_cm"
)

// FitLogic values.
const (
	FitLogicMath   = "math"
	FitLogicCompat = "compat"
)

// DiameterUnits are the three redundant diameter encodings, in collapse
// preference order.
var DiameterUnits = []string{"in", "mm", "F"}

// SpecField builds a specification field name, e.g.
// SpecField("inner-diameter", "in") -> "specification_inner-diameter_in".
func SpecField(measure, unit string) string {
	return "specification_" + measure + "_" + unit
}

// CompatField builds a compatibility-table field name, e.g.
// CompatField("wire_max_outer-diameter", "mm").
func CompatField(rule, unit string) string {
	return "compatibility_" + rule + "_" + unit
}

// Device is one catalog record. It wraps the raw map so catalog records
// round-trip losslessly while typed getters serve the evaluator.
type Device map[string]any

// Str returns a string field, or "" when absent.
func (d Device) Str(field string) string {
	v, ok := d[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Float returns a numeric field. The second result is false when the field
// is absent, empty, or non-numeric. Catalog values arrive as JSON numbers
// or numeric strings.
func (d Device) Float(field string) (float64, bool) {
	v, ok := d[field]
	if !ok || v == nil {
		return 0, false
	}
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
	default:
		return 0, false
	}
}

// ID returns the record id.
func (d Device) ID() string { return d.Str(FieldID) }

// ProductName returns the product name shared by sibling variants.
func (d Device) ProductName() string { return d.Str(FieldProductName) }

// DeviceName returns the variant-level display name.
func (d Device) DeviceName() string { return d.Str(FieldDeviceName) }

// Manufacturer returns the manufacturer name.
func (d Device) Manufacturer() string { return d.Str(FieldManufacturer) }

// ConicalCategory returns the nesting level label (L0..L5, LW).
func (d Device) ConicalCategory() string { return d.Str(FieldConicalCategory) }

// FitLogic returns "math" or "compat"; absent defaults to "math".
func (d Device) FitLogic() string {
	if fl := d.Str(FieldFitLogic); fl != "" {
		return fl
	}
	return FitLogicMath
}

// LogicTags returns the space-separated logic_category tags, lower-cased.
func (d Device) LogicTags() []string {
	raw := strings.ToLower(d.Str(FieldLogicCategory))
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// HasLogicTag reports whether any of the given tags is present.
func (d Device) HasLogicTag(tags ...string) bool {
	mine := d.LogicTags()
	for _, want := range tags {
		for _, have := range mine {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Clone returns a shallow copy of the record.
func (d Device) Clone() Device {
	out := make(Device, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Group maps a product name to its variant ids and shared conical category.
type Group struct {
	ProductName     string   `json:"product_name"`
	IDs             []string `json:"ids"`
	ConicalCategory string   `json:"conical_category"`
}

// PackageDevices groups variant records by product for client-facing chunk
// events. Each entry carries the product identity plus key display specs of
// every variant.
func PackageDevices(devices []Device) []map[string]any {
	byProduct := make(map[string][]Device)
	var order []string
	for _, d := range devices {
		name := d.ProductName()
		if name == "" {
			name = d.DeviceName()
		}
		if _, seen := byProduct[name]; !seen {
			order = append(order, name)
		}
		byProduct[name] = append(byProduct[name], d)
	}
	sort.Strings(order)

	out := make([]map[string]any, 0, len(order))
	for _, name := range order {
		variants := byProduct[name]
		entry := map[string]any{
			"product_name":     name,
			"manufacturer":     variants[0].Manufacturer(),
			"conical_category": variants[0].ConicalCategory(),
			"variant_count":    len(variants),
		}
		vs := make([]map[string]any, 0, len(variants))
		for _, v := range variants {
			vm := map[string]any{
				"id":          v.ID(),
				"device_name": v.DeviceName(),
			}
			if od, ok := v.Float(SpecField("outer-diameter-distal", "in")); ok {
				vm["od_in"] = od
			}
			if id, ok := v.Float(SpecField("inner-diameter", "in")); ok {
				vm["id_in"] = id
			}
			if l, ok := v.Float(FieldLengthCM); ok {
				vm["length_cm"] = l
			}
			vs = append(vs, vm)
		}
		entry["variants"] = vs
		out = append(out, entry)
	}
	return out
}
