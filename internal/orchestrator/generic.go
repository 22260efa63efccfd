package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/provider"
)

const structuringPrompt = `You are parsing generic (unbranded) medical device descriptions from a user's question.

A previous agent extracted generic device references, but it often splits ONE device into multiple fragments (e.g., "100cm wire" and "0.014 wire" are the SAME wire) and doesn't structure the attributes.

Use the ORIGINAL user question as the source of truth to:
1. Identify how many DISTINCT generic devices the user mentioned
2. Merge fragments that refer to the same device
3. Extract structured attributes for each device

## Device Types
wire (wire, guidewire, microwire), catheter (catheter, microcatheter, aspiration catheter, guide catheter, intermediate catheter), sheath (sheath, introducer sheath, access sheath), stent (stent, stent retriever), balloon (balloon, balloon catheter, balloon guide catheter). If you cannot determine the type, use null.

## Attributes
- OD: outer diameter (0.014", 5Fr, 6mm)
- ID: inner diameter (0.021", 0.068", 6Fr)
- length: working length (100cm, 150cm, 1500mm)
- size: generic size when OD/ID is unclear (5Fr, 6Fr, 4mm)
Each attribute is {"value": <number>, "unit": "<in|mm|Fr|cm>"}.

## OD vs ID vs size
- Wires: decimal inches are always OD; wires have no ID.
- Catheters: explicit "ID"/"OD" wins; French size without OD/ID → size; small decimals (.021", .027") on microcatheters → likely ID; larger decimals (.068", .074", .088") on guide/intermediate catheters → likely ID; if ambiguous → size.
- Sheaths: French size is typically OD.
- Stents/balloons: mm values → OD (deployed diameter); mm lengths → length.

## Rules
1. Use the ORIGINAL question to decide how many devices there are and which specs belong together.
2. Do NOT trust the raw fragment list — it may have split one device into many.
3. A single device can have MULTIPLE specs: "100cm .014 wire" is 1 wire with OD + length.
4. "a .014 wire and a 6F catheter" is 2 separate devices.
5. Extract values as numbers, not strings.
6. Do NOT invent specs that aren't in the user's question.

Respond ONLY with valid JSON:
{
  "generic_devices": [
    {
      "raw": "<combined description from user's question>",
      "device_type": "<wire|catheter|sheath|stent|balloon|null>",
      "attributes": {
        "OD": {"value": 0.014, "unit": "in"},
        "length": {"value": 100, "unit": "cm"}
      }
    }
  ]
}
Only include attributes that are actually mentioned. Empty attributes = {}.`

// GenericAttr is one measured attribute of a generic device.
type GenericAttr struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// StructuredGeneric is one distinct generic device after fragment
// merging.
type StructuredGeneric struct {
	Raw        string                 `json:"raw"`
	DeviceType string                 `json:"device_type"`
	Attributes map[string]GenericAttr `json:"attributes"`
}

// GenericStructuring merges extraction fragments into distinct generic
// devices with typed attributes.
type GenericStructuring struct {
	llm   provider.Provider
	model string
}

func NewGenericStructuring(llm provider.Provider, model string) *GenericStructuring {
	return &GenericStructuring{llm: llm, model: model}
}

func (g *GenericStructuring) Run(ctx context.Context, question string, fragments []GenericSpec) ([]StructuredGeneric, provider.TokenUsage, error) {
	if len(fragments) == 0 {
		return nil, provider.TokenUsage{}, nil
	}
	rawFragments, err := json.Marshal(fragments)
	if err != nil {
		return nil, provider.TokenUsage{}, err
	}
	prompt := fmt.Sprintf("Original user question: %q\n\nRaw generic device fragments extracted by previous agent: %s\n\nUsing the original question as the source of truth, parse these fragments into distinct generic devices with their correct attributes.",
		question, rawFragments)

	var result struct {
		GenericDevices []StructuredGeneric `json:"generic_devices"`
	}
	usage, err := provider.CompleteJSON(ctx, g.llm, provider.CompletionRequest{
		System:   structuringPrompt,
		Messages: []provider.LLMMessage{provider.User(prompt)},
		Model:    g.model,
	}, &result)
	if err != nil {
		return nil, usage, err
	}
	return result.GenericDevices, usage, nil
}

const prepPrompt = `You are a device specification resolution agent. Analyze generic device descriptions and determine whether there is enough information to search for matching devices in the catalog.

You receive original_question (context for device relationships) and generic_devices, each with raw text, a device_type (wire, catheter, sheath, stent, balloon, or null), and attributes (OD, ID, length, size), each {"value": <number>, "unit": <string>}.

## Catalog Field Naming

Specification fields follow specification_<measurement>_<unit>:
- specification_inner-diameter_in / _mm / _F
- specification_outer-diameter-distal_in / _mm / _F
- specification_outer-diameter-proximal_in / _mm / _F
- specification_length_cm

Every search MUST include logic_category. Valid values: wire, stent, catheter, sheath, balloon, other. Space-separated when multiple apply. Map from device_type; null or unknown maps to "other".

## Unit Mapping
Diameters: in → _in, mm → _mm, Fr or F → _F.
Length is always stored in cm: cm as-is, mm divide by 10, m multiply by 100, in multiply by 2.54.

## Wire Rules
- OD applies to both distal and proximal outer diameter unless the raw text says distal or proximal.
- A size attribute in inches is the outer diameter.
- Wires only need OD to search; length is optional.

## Non-Wire Rules (catheter, sheath, stent, balloon)
- Length is REQUIRED. Missing length → has_info false.
- Which diameter is needed depends on the question:
  - Device is fitting INTO something ("fit into", "insert into", "through", "inside of") → OD is sufficient.
  - Something fits INSIDE the device ("accepts", "can accommodate", "what fits in") → ID is sufficient.
  - Ambiguous ("works with", "compatible", "use together", sequence/order questions) → BOTH needed; with only one, mark insufficient.
- Both OD and ID provided → use both.

## Output
ALWAYS return {"devices": [...]}, never a bare array. Each device:
- sufficient: {"raw": ..., "has_info": true, "device_type": ..., "search_criteria": {"logic_category": ..., "<field>": <value>, ...}}
- insufficient: {"raw": ..., "has_info": false, "device_type": ..., "reason": "<one short friendly sentence naming what is missing>"}

Example reasons: "For a catheter, we need both the OD and ID." / "For a catheter, we also need the length." / "For a wire, we need the outer diameter." / "We couldn't identify this device type."`

// PrepDevice is the prep agent's verdict for one generic device: either
// catalog search criteria or the reason it cannot be searched.
type PrepDevice struct {
	Raw            string         `json:"raw"`
	HasInfo        bool           `json:"has_info"`
	DeviceType     string         `json:"device_type"`
	SearchCriteria map[string]any `json:"search_criteria,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// GenericPrep maps structured generic devices onto catalog search
// criteria, or flags them as under-specified.
type GenericPrep struct {
	llm   provider.Provider
	model string
}

func NewGenericPrep(llm provider.Provider, model string) *GenericPrep {
	return &GenericPrep{llm: llm, model: model}
}

func (g *GenericPrep) Run(ctx context.Context, question string, devices []StructuredGeneric) ([]PrepDevice, provider.TokenUsage, error) {
	if len(devices) == 0 {
		return nil, provider.TokenUsage{}, nil
	}
	prompt, err := json.Marshal(map[string]any{
		"original_question": question,
		"generic_devices":   devices,
	})
	if err != nil {
		return nil, provider.TokenUsage{}, err
	}

	var result struct {
		Devices []PrepDevice `json:"devices"`
	}
	usage, err := provider.CompleteJSON(ctx, g.llm, provider.CompletionRequest{
		System:   prepPrompt,
		Messages: []provider.LLMMessage{provider.User(string(prompt))},
		Model:    g.model,
	}, &result)
	if err != nil {
		return nil, usage, err
	}
	return result.Devices, usage, nil
}

// Record flags carried by catalog entries that synthetic records must
// also present.
const (
	fieldHasDoc    = "file_path_source_has_doc"
	fieldHasPic    = "Specifications_Pic_has_pic"
	fieldHasFDADoc = "file_path_source_FDA_has_doc"
)

var syntheticFields = []string{
	device.FieldID,
	device.FieldManufacturer,
	device.FieldDeviceName,
	device.FieldCategoryType,
	device.FieldConicalCategory,
	device.FieldFitLogic,
	device.FieldLogicCategory,
	device.SpecField("inner-diameter", "in"),
	device.SpecField("inner-diameter", "mm"),
	device.SpecField("inner-diameter", "F"),
	device.SpecField("outer-diameter-distal", "in"),
	device.SpecField("outer-diameter-distal", "mm"),
	device.SpecField("outer-diameter-distal", "F"),
	device.SpecField("outer-diameter-proximal", "in"),
	device.SpecField("outer-diameter-proximal", "mm"),
	device.SpecField("outer-diameter-proximal", "F"),
	device.FieldLengthCM,
	device.CompatField("wire_max_outer-diameter", "in"),
	device.CompatField("wire_max_outer-diameter", "mm"),
	device.CompatField("wire_max_outer-diameter", "F"),
	device.CompatField("catheter_max_outer-diameter", "in"),
	device.CompatField("catheter_max_outer-diameter", "mm"),
	device.CompatField("catheter_max_outer-diameter", "F"),
	device.CompatField("catheter_req_inner-diameter", "in"),
	device.CompatField("catheter_req_inner-diameter", "mm"),
	device.CompatField("catheter_req_inner-diameter", "F"),
	device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "in"),
	device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "mm"),
	device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "F"),
	device.FieldProductName,
	fieldHasDoc,
	fieldHasPic,
	fieldHasFDADoc,
}

// syntheticRecords turns sufficiently specified generics into catalog
// records the chain engine can evaluate with its math fit logic. Record
// ids derive from the session so they never collide with real devices;
// second and later records get an ordinal suffix.
func syntheticRecords(uid, sessionID string, devs []PrepDevice) ([]device.Device, []PrepDevice) {
	base := clip(uid, 4) + clip(sessionID, 4)
	var records []device.Device
	var insufficient []PrepDevice

	for _, d := range devs {
		if !d.HasInfo {
			insufficient = append(insufficient, d)
			continue
		}
		id := base
		if n := len(records); n > 0 {
			id = fmt.Sprintf("%s-%d", base, n+1)
		}

		rec := device.Device{}
		for k, v := range d.SearchCriteria {
			rec[k] = v
		}
		rec[device.FieldID] = id
		for _, f := range syntheticFields {
			if _, ok := rec[f]; ok {
				continue
			}
			switch f {
			case device.FieldProductName:
				rec[f] = d.DeviceType
			case device.FieldDeviceName:
				rec[f] = d.Raw
			case device.FieldFitLogic:
				rec[f] = "math"
			case device.FieldLogicCategory:
				rec[f] = d.DeviceType
			case fieldHasDoc, fieldHasPic, fieldHasFDADoc:
				rec[f] = false
			default:
				rec[f] = ""
			}
		}
		records = append(records, rec)
	}
	return records, insufficient
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// runGenericPipeline structures generic mentions, resolves search
// criteria, and injects synthetic records into a request-scoped catalog
// overlay so the chain engine can evaluate them as ordinary devices.
func (o *Orchestrator) runGenericPipeline(ctx context.Context, t *turn) error {
	_ = t.brk.PutStatus(ctx, "generic_device_structuring", statusLabel("generic_device_structuring"))
	structuring := NewGenericStructuring(o.llm, o.models.Resolve("generic_device_structuring"))
	structured, usage, err := structuring.Run(ctx, t.message, t.ext.GenericSpecs)
	if err != nil {
		return fmt.Errorf("generic device structuring: %w", err)
	}
	t.usage.track("generic_device_structuring", usage)
	if len(structured) == 0 {
		return nil
	}

	_ = t.brk.PutStatus(ctx, "generic_prep", statusLabel("generic_prep"))
	prep := NewGenericPrep(o.llm, o.models.Resolve("generic_prep"))
	prepped, usage, err := prep.Run(ctx, t.message, structured)
	if err != nil {
		return fmt.Errorf("generic prep: %w", err)
	}
	t.usage.track("generic_prep", usage)

	_ = t.brk.PutStatus(ctx, "generic_prep_records", statusLabel("generic_prep_records"))
	records, insufficient := syntheticRecords(t.uid, t.sessionID, prepped)
	t.genericInsufficient = insufficient
	if len(records) == 0 {
		return nil
	}

	t.db = t.db.WithOverlay()
	for _, rec := range records {
		t.db.Inject(rec)
		name := rec.ProductName()
		if name == "" {
			name = rec.DeviceName()
		}
		category := rec.Str(device.FieldLogicCategory)
		t.ext.Devices[name] = chain.DeviceRef{
			IDs:             []string{rec.ID()},
			ConicalCategory: category,
		}
		t.ext.Groups = append(t.ext.Groups, device.Group{
			ProductName:     name,
			IDs:             []string{rec.ID()},
			ConicalCategory: category,
		})
	}
	o.log.Info("injected synthetic generic records",
		"count", len(records), "insufficient", len(insufficient))
	return nil
}
