// Package dbengine answers catalog questions: spec lookups, filtered
// searches, comparisons, single-connection compatibility. A planner agent
// turns the question into a structured query spec; a deterministic
// executor runs the spec against the device store.
package dbengine

import (
	"strings"

	"github.com/cathlab/stackcheck/internal/device"
)

// fieldMap translates the friendly field names used in query specs to
// catalog field names. Identity fields map to themselves.
var fieldMap = map[string]string{
	"ID_in": device.SpecField("inner-diameter", "in"),
	"ID_mm": device.SpecField("inner-diameter", "mm"),
	"ID_Fr": device.SpecField("inner-diameter", "F"),

	"OD_distal_in": device.SpecField("outer-diameter-distal", "in"),
	"OD_distal_mm": device.SpecField("outer-diameter-distal", "mm"),
	"OD_distal_Fr": device.SpecField("outer-diameter-distal", "F"),

	"OD_proximal_in": device.SpecField("outer-diameter-proximal", "in"),
	"OD_proximal_mm": device.SpecField("outer-diameter-proximal", "mm"),
	"OD_proximal_Fr": device.SpecField("outer-diameter-proximal", "F"),

	"length_cm": device.FieldLengthCM,

	"wire_max_OD_in":          device.CompatField("wire_max_outer-diameter", "in"),
	"wire_max_OD_mm":          device.CompatField("wire_max_outer-diameter", "mm"),
	"catheter_max_OD_in":      device.CompatField("catheter_max_outer-diameter", "in"),
	"catheter_max_OD_mm":      device.CompatField("catheter_max_outer-diameter", "mm"),
	"catheter_required_ID_in": device.CompatField("catheter_req_inner-diameter", "in"),
	"catheter_required_ID_mm": device.CompatField("catheter_req_inner-diameter", "mm"),
	"guide_min_ID_in":         device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "in"),
	"guide_min_ID_mm":         device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "mm"),

	"product_name":     device.FieldProductName,
	"device_name":      device.FieldDeviceName,
	"manufacturer":     device.FieldManufacturer,
	"conical_category": device.FieldConicalCategory,
	"logic_category":   device.FieldLogicCategory,
	"fit_logic":        device.FieldFitLogic,
	"category_type":    device.FieldCategoryType,
}

// CatalogField resolves a friendly field name; unknown names pass through
// unchanged so raw catalog fields stay addressable.
func CatalogField(friendly string) string {
	if db, ok := fieldMap[friendly]; ok {
		return db
	}
	return friendly
}

type categoryMatch struct {
	categoryTypes     []string
	conicalCategories []string
}

// categoryMap resolves user-facing category terms to catalog
// category_type values, with a conical-level fallback for terms too broad
// to pin to concrete types.
var categoryMap = map[string]categoryMatch{
	"microcatheter": {
		categoryTypes:     []string{"microcatheter", "balloon_microcatheter", "flow_dependent_microcatheter", "delivery_catheter"},
		conicalCategories: []string{"L3"},
	},
	"micro": {
		categoryTypes:     []string{"microcatheter", "balloon_microcatheter", "flow_dependent_microcatheter", "delivery_catheter"},
		conicalCategories: []string{"L3"},
	},
	"sheath": {
		categoryTypes:     []string{"sheath"},
		conicalCategories: []string{"L0"},
	},
	"guide_catheter": {
		categoryTypes:     []string{"balloon_guide_catheter", "guide_intermediate_catheter"},
		conicalCategories: []string{"L0", "L1"},
	},
	"guide": {
		categoryTypes:     []string{"balloon_guide_catheter", "guide_intermediate_catheter"},
		conicalCategories: []string{"L0", "L1"},
	},
	"bgc": {
		categoryTypes:     []string{"balloon_guide_catheter"},
		conicalCategories: []string{"L1"},
	},
	"balloon_guide_catheter": {
		categoryTypes:     []string{"balloon_guide_catheter"},
		conicalCategories: []string{"L1"},
	},
	"intermediate_catheter": {
		categoryTypes:     []string{"guide_intermediate_catheter", "intermediate_catheter", "delivery_intermediate_catheter", "aspiration_intermediate_catheter"},
		conicalCategories: []string{"L1", "L2"},
	},
	"intermediate": {
		categoryTypes:     []string{"guide_intermediate_catheter", "intermediate_catheter", "delivery_intermediate_catheter", "aspiration_intermediate_catheter"},
		conicalCategories: []string{"L1", "L2"},
	},
	"aspiration_catheter": {
		categoryTypes:     []string{"aspiration_intermediate_catheter", "distal_access_catheter", "aspiration_system_component"},
		conicalCategories: []string{"L2"},
	},
	"aspiration": {
		categoryTypes:     []string{"aspiration_intermediate_catheter", "distal_access_catheter", "aspiration_system_component"},
		conicalCategories: []string{"L2"},
	},
	"dac": {
		categoryTypes:     []string{"distal_access_catheter"},
		conicalCategories: []string{"L2"},
	},
	"distal_access_catheter": {
		categoryTypes:     []string{"distal_access_catheter"},
		conicalCategories: []string{"L2"},
	},
	// Too broad for category types; falls through to conical levels.
	"catheter": {
		conicalCategories: []string{"L1", "L2", "L3"},
	},
	"stent_retriever": {
		categoryTypes:     []string{"stent_system", "stent_retriever"},
		conicalCategories: []string{"L4", "L5"},
	},
	"stent": {
		categoryTypes:     []string{"stent_system", "stent_retriever"},
		conicalCategories: []string{"L4", "L5"},
	},
	"wire": {
		categoryTypes:     []string{"guidewire"},
		conicalCategories: []string{"LW"},
	},
	"guidewire": {
		categoryTypes:     []string{"guidewire"},
		conicalCategories: []string{"LW"},
	},
}

// matchesCategory reports whether a record belongs to a user-facing
// category term. Known terms match on category_type when the mapping has
// any, otherwise on conical level. Unknown terms fall back to a substring
// match against logic_category.
func matchesCategory(d device.Device, category string) bool {
	key := strings.ReplaceAll(strings.ToLower(category), " ", "_")
	if m, ok := categoryMap[key]; ok {
		if len(m.categoryTypes) > 0 {
			ct := d.Str(device.FieldCategoryType)
			for _, want := range m.categoryTypes {
				if ct == want {
					return true
				}
			}
			return false
		}
		cc := d.ConicalCategory()
		for _, want := range m.conicalCategories {
			if cc == want {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(d.Str(device.FieldLogicCategory)), key)
}
