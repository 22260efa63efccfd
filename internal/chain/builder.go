package chain

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/provider"
)

// CategoryMapping resolves a spoken category mention to catalog category
// types and conical levels. Products, when set, bypasses the catalog scan
// with a pre-resolved product list.
type CategoryMapping struct {
	DeviceCategories  []string `json:"device_categories"`
	ConicalCategories []string `json:"conical_categories"`
	Products          []string `json:"products,omitempty"`
	Warning           string   `json:"warning,omitempty"`
}

type categoryEntry struct {
	key     string
	mapping CategoryMapping
}

// categoryEntries maps common category mentions to catalog categories.
// Ordered so the substring fallback is deterministic.
var categoryEntries = []categoryEntry{
	{"microcatheter", CategoryMapping{
		DeviceCategories:  []string{"microcatheter", "balloon_microcatheter", "flow_dependent_microcatheter", "delivery_catheter"},
		ConicalCategories: []string{"L3"},
	}},
	{"micro", CategoryMapping{
		DeviceCategories:  []string{"microcatheter", "balloon_microcatheter", "flow_dependent_microcatheter", "delivery_catheter"},
		ConicalCategories: []string{"L3"},
	}},
	{"wire", CategoryMapping{
		DeviceCategories:  []string{"microcatheter", "balloon_microcatheter", "flow_dependent_microcatheter"},
		ConicalCategories: []string{"LW"},
	}},
	{"guidewire", CategoryMapping{
		DeviceCategories:  []string{"microcatheter", "balloon_microcatheter", "flow_dependent_microcatheter"},
		ConicalCategories: []string{"LW"},
	}},
	{"sheath", CategoryMapping{
		DeviceCategories:  []string{"sheath"},
		ConicalCategories: []string{"L0"},
	}},
	{"aspiration", CategoryMapping{
		DeviceCategories:  []string{"aspiration_intermediate_catheter", "distal_access_catheter", "aspiration_system_component"},
		ConicalCategories: []string{"L2"},
	}},
	{"intermediate catheter", CategoryMapping{
		DeviceCategories:  []string{"guide_intermediate_catheter", "intermediate_catheter", "delivery_intermediate_catheter", "aspiration_intermediate_catheter"},
		ConicalCategories: []string{"L1", "L2"},
	}},
	{"bgc", CategoryMapping{
		DeviceCategories:  []string{"balloon_guide_catheter"},
		ConicalCategories: []string{"L1"},
	}},
	{"balloon guide catheter", CategoryMapping{
		DeviceCategories:  []string{"balloon_guide_catheter"},
		ConicalCategories: []string{"L1"},
	}},
	{"stent", CategoryMapping{
		DeviceCategories:  []string{"stent_system", "stent_retriever"},
		ConicalCategories: []string{"L4", "L5"},
	}},
	{"stent retriever", CategoryMapping{
		DeviceCategories:  []string{"stent_system", "stent_retriever"},
		ConicalCategories: []string{"L4", "L5"},
	}},
	{"dac", CategoryMapping{
		DeviceCategories:  []string{"distal_access_catheter"},
		ConicalCategories: []string{"L2"},
	}},
	{"distal access catheter", CategoryMapping{
		DeviceCategories:  []string{"distal_access_catheter"},
		ConicalCategories: []string{"L2"},
	}},
}

// MapCategories resolves category mentions. Exact key match first, then a
// bidirectional substring fallback; unknown mentions get an empty mapping
// with a warning.
func MapCategories(categories []string) map[string]CategoryMapping {
	result := make(map[string]CategoryMapping, len(categories))
	for _, cat := range categories {
		key := strings.ToLower(strings.TrimSpace(cat))

		matched := false
		for _, e := range categoryEntries {
			if e.key == key {
				result[cat] = e.mapping
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		for _, e := range categoryEntries {
			if strings.Contains(key, e.key) || strings.Contains(e.key, key) {
				result[cat] = e.mapping
				matched = true
				break
			}
		}
		if !matched {
			result[cat] = CategoryMapping{
				DeviceCategories:  []string{},
				ConicalCategories: []string{},
				Warning:           "Unknown category: " + cat,
			}
		}
	}
	return result
}

// ProductsForCategory resolves each mapped category to a sorted product
// list, honoring the pre-resolved Products shortcut.
func ProductsForCategory(db *device.Store, mappings map[string]CategoryMapping) map[string][]string {
	out := make(map[string][]string, len(mappings))
	for name, cfg := range mappings {
		if cfg.Products != nil {
			out[name] = append([]string(nil), cfg.Products...)
			continue
		}

		wanted := make(map[string]bool, len(cfg.DeviceCategories))
		for _, dc := range cfg.DeviceCategories {
			wanted[dc] = true
		}
		seen := make(map[string]bool)
		var products []string
		db.All(func(d device.Device) bool {
			if wanted[d.Str(device.FieldCategoryType)] {
				if pn := d.ProductName(); pn != "" && !seen[pn] {
					seen[pn] = true
					products = append(products, pn)
				}
			}
			return true
		})
		sort.Strings(products)
		out[name] = products
	}
	return out
}

// ExpandChains replaces category placeholders in chain sequences with
// every product combination resolved for those categories.
func ExpandChains(chains []Config, mappings map[string]CategoryMapping, db *device.Store) []Config {
	categoryProducts := ProductsForCategory(db, mappings)

	var expanded []Config
	for _, cfg := range chains {
		type position struct {
			idx      int
			products []string
		}
		var positions []position
		for idx, item := range cfg.Sequence {
			if _, ok := mappings[item]; ok {
				if products := categoryProducts[item]; len(products) > 0 {
					positions = append(positions, position{idx: idx, products: products})
				}
			}
		}
		if len(positions) == 0 {
			expanded = append(expanded, Config{Sequence: cfg.Sequence, Levels: cfg.Levels})
			continue
		}

		combos := [][]string{nil}
		for _, pos := range positions {
			var next [][]string
			for _, combo := range combos {
				for _, product := range pos.products {
					grown := append(append([]string(nil), combo...), product)
					next = append(next, grown)
				}
			}
			combos = next
		}
		for _, combo := range combos {
			seq := append([]string(nil), cfg.Sequence...)
			for i, pos := range positions {
				seq[pos.idx] = combo[i]
			}
			expanded = append(expanded, Config{
				Sequence: seq,
				Levels:   append([]string(nil), cfg.Levels...),
			})
		}
	}
	return expanded
}

// UpdateDevices adds a DeviceRef for every product that expansion
// introduced into a chain sequence but is not yet in the lookup.
func UpdateDevices(devices map[string]DeviceRef, expanded []Config, db *device.Store) map[string]DeviceRef {
	needed := make(map[string]bool)
	for _, cfg := range expanded {
		for _, product := range cfg.Sequence {
			if _, ok := devices[product]; !ok {
				needed[product] = true
			}
		}
	}
	if len(needed) == 0 {
		return devices
	}

	refs := make(map[string]*DeviceRef, len(needed))
	db.All(func(d device.Device) bool {
		product := d.ProductName()
		if !needed[product] {
			return true
		}
		ref := refs[product]
		if ref == nil {
			ref = &DeviceRef{ConicalCategory: d.ConicalCategory()}
			refs[product] = ref
		}
		ref.IDs = append(ref.IDs, d.ID())
		return true
	})
	for product, ref := range refs {
		devices[product] = *ref
	}
	return devices
}

// ConicalCategories resolves the conical levels actually present in the
// catalog for each mapped category.
func ConicalCategories(mappings map[string]CategoryMapping, db *device.Store) map[string][]string {
	out := make(map[string][]string, len(mappings))
	for name, cfg := range mappings {
		wanted := make(map[string]bool, len(cfg.DeviceCategories))
		for _, dc := range cfg.DeviceCategories {
			wanted[strings.ToLower(dc)] = true
		}
		var levels []string
		seen := make(map[string]bool)
		db.All(func(d device.Device) bool {
			if wanted[strings.ToLower(d.Str(device.FieldCategoryType))] {
				if cc := d.ConicalCategory(); cc != "" && !seen[cc] {
					seen[cc] = true
					levels = append(levels, cc)
				}
			}
			return true
		})
		out[name] = levels
	}
	return out
}

const chainGenerationSystemMessage = `ROLE
You are a medical device query parser for compatibility analysis. Your role is to enumerate clinically plausible device chains for downstream compatibility checking. You do NOT determine whether devices fit or are compatible.

DEVICE HIERARCHY
Devices follow a telescoping sequence based on conical categories (L0-L5):
* Lower L-numbers are OUTER devices (L0 is outermost)
* Higher L-numbers are INNER devices (L5 is innermost)
* Valid telescoping: Higher L goes INTO lower L (e.g., L4 into L3, L3 into L2)
* Devices with the SAME L-category can be used sequentially in a procedure (order matters)

IMPORTANT CLARIFICATION
L-levels define a COMPATIBILITY CLASS, not a fixed physical role.
Presence of a device at an L-level does NOT imply it must appear in a single fixed chain position.
Your task is to enumerate plausible configurations and allow downstream logic to determine compatibility.

TELESCOPING RULES
* Higher L-numbers go INSIDE lower L-numbers
* Direction is ALWAYS higher-L into lower-L (or same-L into same-L for sequential use)
* L1 can NEVER go into L3
* L3 CAN go into L1

SAME L-LEVEL DEVICES - CRITICAL RULE
When the user mentions multiple devices at the SAME L-level, you MUST generate chains for ALL plausible configurations:

1. ALTERNATIVE chains: Each device used independently at that L-level position
2. NESTED chains: Both devices in the same chain, one inside the other (generate BOTH orderings)

For the nested chains, both devices keep their L-level label.

CATEGORY CHAIN CONSTRUCTION
When the Data Set contains a CATEGORY entry (conical_category is a LIST):
1. Use the category key exactly as it appears
2. Position the category based on its L-level(s)
3. Add "contains_category": true
4. Set is_specific = false

MANDATORY RULE: The "sequence" array MUST ONLY contain keys that exist in the provided Data Set.

VALIDATION CHECK: Before finalizing, verify that EVERY device key from the Data Set appears in at least one chain's sequence array.

RESPONSE FORMAT
Return valid JSON only:
{
  "chains_to_check": [
    {
      "sequence": ["innermost_device_key", "middle_device_key", "outermost_device_key"],
      "levels": ["L4", "L3", "L2"],
      "contains_category": false
    }
  ],
  "check_all_mode": false,
  "is_specific": true,
  "confidence": "high",
  "interpretation": "Brief explanation of chain construction logic."
}`

// BuilderInput feeds the chain-builder agent.
type BuilderInput struct {
	Query      string
	Devices    map[string]DeviceRef
	Categories []string
	Mappings   map[string]CategoryMapping
}

// BuilderResult is the chain-builder JSON contract, plus the device
// lookup entries added by category expansion.
type BuilderResult struct {
	ChainsToCheck   []Config             `json:"chains_to_check"`
	CheckAllMode    bool                 `json:"check_all_mode"`
	IsSpecific      bool                 `json:"is_specific"`
	Confidence      string               `json:"confidence"`
	Interpretation  string               `json:"interpretation"`
	ExpandedDevices map[string]DeviceRef `json:"expanded_devices,omitempty"`
}

// Builder is the LLM agent that enumerates chain configurations from the
// resolved devices and category mentions.
type Builder struct {
	llm   provider.Provider
	model string
}

func NewBuilder(llm provider.Provider, model string) *Builder {
	return &Builder{llm: llm, model: model}
}

// Run asks the model for chain configurations and expands any category
// placeholders against the catalog.
func (b *Builder) Run(ctx context.Context, in BuilderInput, db *device.Store) (*BuilderResult, provider.TokenUsage, error) {
	dataSet := make(map[string]map[string]any, len(in.Devices)+len(in.Mappings))
	for name, ref := range in.Devices {
		dataSet[name] = map[string]any{"conical_category": ref.ConicalCategory}
	}
	for name, mapping := range in.Mappings {
		conical := mapping.ConicalCategories
		if len(conical) == 0 {
			conical = []string{"Unknown"}
		}
		dataSet[name] = map[string]any{"conical_category": conical}
	}

	prompt, err := json.Marshal(map[string]any{
		"user_query": in.Query,
		"data_set":   map[string]any{"devices": dataSet},
	})
	if err != nil {
		return nil, provider.TokenUsage{}, err
	}

	var result BuilderResult
	usage, err := provider.CompleteJSON(ctx, b.llm, provider.CompletionRequest{
		System:   chainGenerationSystemMessage,
		Messages: []provider.LLMMessage{provider.User(string(prompt))},
		Model:    b.model,
	}, &result)
	if err != nil {
		return nil, usage, err
	}

	if len(in.Mappings) > 0 && len(result.ChainsToCheck) > 0 {
		expanded := ExpandChains(result.ChainsToCheck, in.Mappings, db)
		if len(expanded) > 0 {
			devices := make(map[string]DeviceRef, len(in.Devices))
			for name, ref := range in.Devices {
				devices[name] = ref
			}
			result.ChainsToCheck = expanded
			result.ExpandedDevices = UpdateDevices(devices, expanded, db)
		}
	}
	return &result, usage, nil
}
