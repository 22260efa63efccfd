package orchestrator

import (
	"context"

	"github.com/cathlab/stackcheck/internal/provider"
)

// Intent types. A query can carry several; the first is primary.
const (
	IntentEquipmentCompatibility = "equipment_compatibility"
	IntentDeviceDiscovery        = "device_discovery"
	IntentFilteredDiscovery      = "filtered_discovery"
	IntentSpecificationLookup    = "specification_lookup"
	IntentSpecReasoning          = "spec_reasoning"
	IntentDeviceSearch           = "device_search"
	IntentDeviceComparison       = "device_comparison"
	IntentDocumentation          = "documentation"
	IntentKnowledgeBase          = "knowledge_base"
	IntentDeviceDefinition       = "device_definition"
	IntentManufacturerLookup     = "manufacturer_lookup"
	IntentDeepResearch           = "deep_research"
	IntentClinicalSupport        = "clinical_support"
	IntentGeneral                = "general"
)

// Engine routes.
const (
	routeChain    = "chain"
	routeDatabase = "database"
	routeVector   = "vector"
	routeClinical = "clinical"
	routeGeneral  = "general"
)

var intentEngine = map[string]string{
	IntentEquipmentCompatibility: routeChain,
	IntentDeviceDiscovery:        routeChain,
	IntentSpecificationLookup:    routeDatabase,
	IntentSpecReasoning:          routeDatabase,
	IntentDeviceSearch:           routeDatabase,
	IntentDeviceComparison:       routeDatabase,
	IntentManufacturerLookup:     routeDatabase,
	IntentDocumentation:          routeVector,
	IntentKnowledgeBase:          routeVector,
	IntentDeviceDefinition:       routeVector,
	IntentClinicalSupport:        routeClinical,
	IntentGeneral:                routeGeneral,
}

// compatIntents gate the generic-device pipeline: only compatibility
// questions benefit from synthetic records.
var compatIntents = map[string]bool{
	IntentEquipmentCompatibility: true,
	IntentDeviceDiscovery:        true,
	IntentFilteredDiscovery:      true,
}

// relationalIntents need every named device resolved before they can be
// answered; an unknown device forces a clarification instead.
var relationalIntents = map[string]bool{
	IntentEquipmentCompatibility: true,
	IntentDeviceDiscovery:        true,
	IntentDeviceComparison:       true,
	IntentFilteredDiscovery:      true,
}

// IntentScore is one classified intent with its confidence.
type IntentScore struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// IntentResult is the classifier's verdict for a query.
type IntentResult struct {
	Intents       []IntentScore `json:"intents"`
	IsMultiIntent bool          `json:"is_multi_intent"`
	NeedsPlanning bool          `json:"needs_planning"`
	Rationale     string        `json:"rationale"`
}

// Primary returns the first classified intent, defaulting to general.
func (r *IntentResult) Primary() string {
	if r == nil || len(r.Intents) == 0 {
		return IntentGeneral
	}
	return r.Intents[0].Type
}

const intentClassifierPrompt = `You are the INTENT CLASSIFIER for a medical device compatibility system.

Given a user query about medical devices, classify the user's INTENT — what they want to accomplish.

## Intent Types

| Intent | Description | Example Queries |
|---|---|---|
| equipment_compatibility | Check if specific named devices work together | "Can I use Vecta 46 with Neuron Max?" |
| device_discovery | Find devices in a category compatible with a named device | "What microcatheters work with Vecta 46?" |
| filtered_discovery | Find devices matching attribute filters + check compatibility | "What Medtronic catheters work with Atlas stent?" |
| specification_lookup | Look up specs of a specific named device | "What is the OD of Vecta 46?" |
| spec_reasoning | Reason about which specs/sizes are needed based on a device | "What length catheter do I need with Neuron Max?" |
| device_search | Search/filter devices by dimensional or attribute criteria | "What catheters have ID greater than 0.074?" |
| device_comparison | Compare two or more named devices side by side | "Compare Vecta 46 and Vecta 71" |
| documentation | Questions about IFU, 510K, FDA clearance, or manufacturer instructions | "What does the IFU say about Solitaire?" |
| knowledge_base | General medical device knowledge, guidelines, trial data | "What are the AHA guidelines for thrombectomy?" |
| device_definition | Define a device type or clinical concept | "What is a microcatheter?" |
| manufacturer_lookup | Identify who makes a device | "Who makes the Solitaire?" |
| clinical_support | Patient-specific treatment eligibility question | "72yo, NIHSS 18, M1 occlusion, LKW 3h — eligible for EVT?" |
| deep_research | Complex clinical scenarios requiring multiple data sources | "Walk me through the full evidence base for late-window EVT" |
| general | Greetings, thanks, off-topic, scope questions | "Hi", "What can you do?", "Thanks" |

## Classification Rules

1. Choose the MOST SPECIFIC intent. "What catheters have ID > .074?" is device_search, NOT device_discovery.
2. A query can have MULTIPLE intents. "Can I use Vecta with Neuron Max and what does the IFU say?" has equipment_compatibility AND documentation.
3. "work with" / "use with" / "fit" / "compatible" with named devices → equipment_compatibility.
4. "What [category] work with [device]?" → device_discovery (NOT device_search). The user wants compatibility evaluation.
5. Dimensional search with NO compatibility relationship → device_search. "I need a catheter with ID > .045" is a search.
6. Generic specs WITH a compatibility relationship → equipment_compatibility. "Will a .014 wire work with Vecta?" is compatibility.
7. Manufacturer/brand + category + compatibility keyword → filtered_discovery. "What Medtronic catheters work with Atlas?"
8. "Compare X and Y" / "X vs Y" → device_comparison.
9. Single device + "specs" / "tell me about" / "what is the OD" → specification_lookup.
10. "What size/length do I need with X?" → spec_reasoning. Pull specs and reason, don't search.
11. Patient vitals, NIHSS scores, clinical scenarios → clinical_support.

## Planning Rules

Set needs_planning=true when:
- The query has multiple intents requiring different engines
- The intent is filtered_discovery (needs database filter then chain compatibility)
- The query requires sequential engine calls where output of one feeds into another
- The query combines compatibility/search with documentation questions (e.g., "What works with X and what does the IFU say?")

Set needs_planning=false for single-intent queries that map to one engine.

## Output Format

Return STRICT JSON only:
{
    "intents": [
        {"type": "<intent_type>", "confidence": <0.0-1.0>}
    ],
    "is_multi_intent": <true|false>,
    "needs_planning": <true|false>,
    "rationale": "<brief explanation of classification>"
}`

// IntentClassifier is the LLM agent that decides routing before any
// engine runs.
type IntentClassifier struct {
	llm   provider.Provider
	model string
}

func NewIntentClassifier(llm provider.Provider, model string) *IntentClassifier {
	return &IntentClassifier{llm: llm, model: model}
}

func (c *IntentClassifier) Run(ctx context.Context, query string) (*IntentResult, provider.TokenUsage, error) {
	var result IntentResult
	usage, err := provider.CompleteJSON(ctx, c.llm, provider.CompletionRequest{
		System:   intentClassifierPrompt,
		Messages: []provider.LLMMessage{provider.User(query)},
		Model:    c.model,
	}, &result)
	if err != nil {
		return nil, usage, err
	}
	return &result, usage, nil
}
