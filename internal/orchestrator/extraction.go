package orchestrator

import (
	"context"

	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/provider"
)

const extractionPrompt = `You are the EQUIPMENT EXTRACTION agent for a medical device compatibility system.

Given a user query about medical devices, extract:
1. **specified_devices**: Exact device names mentioned (e.g., "Vecta 46", "Neuron MAX", "Solitaire")
2. **device_categories**: Generic device type mentions (e.g., "microcatheter", "sheath", "stent retriever")
3. **generic_specs**: Any dimension/spec requirements mentioned (e.g., ".014 wire", ".027 catheter", "6F sheath")
4. **constraints**: Attribute filters that narrow down a category (e.g., manufacturer, material)

Rules:
- Extract device names EXACTLY as the user wrote them
- Do not invent devices not mentioned
- Separate specific device names from generic category mentions
- If a dimension is mentioned with a category (e.g., ".027 microcatheter"), capture both the category and the spec
- If a manufacturer is mentioned as a qualifier for a category (e.g., "Medtronic catheters", "Stryker stent retrievers"), extract it as a constraint
- Do NOT treat manufacturer names as device names — "Medtronic" alone is a constraint, not a device

Common manufacturers: Medtronic, Stryker, MicroVention, Penumbra, Cerenovus, Balt, Integer, Phenox, Rapid Medical, Wallaby Medical, Micrus Endovascular

Return STRICT JSON:
{
    "specified_devices": ["Device Name 1", "Device Name 2"],
    "device_categories": ["microcatheter", "sheath"],
    "generic_specs": [
        {"category": "wire", "spec": ".014", "unit": "inches", "field": "outer_diameter"}
    ],
    "constraints": [
        {"field": "manufacturer", "value": "Medtronic"}
    ]
}

Examples:
- "What Medtronic catheters can I use with an atlas stent?" →
  specified_devices: ["atlas stent"], device_categories: ["catheter"], constraints: [{"field": "manufacturer", "value": "Medtronic"}]
- "Show me Stryker stent retrievers" →
  specified_devices: [], device_categories: ["stent retriever"], constraints: [{"field": "manufacturer", "value": "Stryker"}]
- "What is the OD of the Vecta 46?" →
  specified_devices: ["Vecta 46"], device_categories: [], constraints: []`

// GenericSpec is a dimension mentioned without a branded device, e.g.
// ".014 wire".
type GenericSpec struct {
	Category string `json:"category"`
	Spec     string `json:"spec"`
	Unit     string `json:"unit"`
	Field    string `json:"field"`
}

// Constraint narrows a category by an attribute, e.g. manufacturer.
type Constraint struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Extraction is the resolved view of what the query names: devices
// matched against the catalog plus everything that needs further work.
type Extraction struct {
	Devices      map[string]chain.DeviceRef
	Groups       []device.Group
	Categories   []string
	GenericSpecs []GenericSpec
	Constraints  []Constraint
	NotFound     []string
	Suggestions  map[string][]string
}

type rawExtraction struct {
	SpecifiedDevices []string      `json:"specified_devices"`
	DeviceCategories []string      `json:"device_categories"`
	GenericSpecs     []GenericSpec `json:"generic_specs"`
	Constraints      []Constraint  `json:"constraints"`
}

// EquipmentExtraction pulls device mentions out of the query with an LLM
// and resolves them against the catalog's name index.
type EquipmentExtraction struct {
	llm     provider.Provider
	model   string
	catalog *device.Store
}

func NewEquipmentExtraction(llm provider.Provider, model string, catalog *device.Store) *EquipmentExtraction {
	return &EquipmentExtraction{llm: llm, model: model, catalog: catalog}
}

func (e *EquipmentExtraction) Run(ctx context.Context, query string) (*Extraction, provider.TokenUsage, error) {
	var raw rawExtraction
	usage, err := provider.CompleteJSON(ctx, e.llm, provider.CompletionRequest{
		System:   extractionPrompt,
		Messages: []provider.LLMMessage{provider.User(query)},
		Model:    e.model,
	}, &raw)
	if err != nil {
		return nil, usage, err
	}

	ext := &Extraction{
		Devices:      make(map[string]chain.DeviceRef),
		Categories:   raw.DeviceCategories,
		GenericSpecs: raw.GenericSpecs,
		Constraints:  raw.Constraints,
	}
	for _, name := range raw.SpecifiedDevices {
		groups := e.catalog.GroupsForName(name)
		if len(groups) == 0 {
			ext.NotFound = append(ext.NotFound, name)
			continue
		}
		for _, g := range groups {
			ext.Devices[g.ProductName] = chain.DeviceRef{
				IDs:             g.IDs,
				ConicalCategory: g.ConicalCategory,
			}
			ext.Groups = append(ext.Groups, g)
		}
	}
	return ext, usage, nil
}
