package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/provider"
)

const chainOutputBase = `You are a medical device compatibility assistant helping physicians with device selection.
- DISTAL = innermost device (closest to treatment site)
- PROXIMAL = outermost device (closest to access point)
- Use "configuration" instead of "chain"
- Data provided is verified from device specifications - don't add outside knowledge
- Be concise and clinically relevant
- Answer naturally - avoid starting with blunt "YES" or "NO" responses
- Stay neutral and clinical - no marketing language
- AVOID words like: "popular", "best", "commonly used", "leading", "preferred", "top", "recommended"
- Do not favor any manufacturer over another
- Present all options objectively based on specifications

CRITICAL - HANDLING MULTI-SIZE DEVICES:
When a device has MULTIPLE SIZES with DIFFERENT specifications:
- Present the FULL RANGE across all sizes, not just one size's specs
- Use phrasing like: "[Device name] (depending on size) requires..." or "[Device name] sizes range from..."
- If compatibility varies by size, state: "Some sizes of [Device] are compatible while others are not"
- NEVER cherry-pick just one size's requirements - this is misleading`

const chainOutputCompatCheck = `
TASK: Answer a compatibility question between specific devices.

FORMAT: Use inline prose (no tables) for 2-device checks. Example:
"The Vecta 46 OD (0.058") fits within the Neuron MAX ID (0.088"), with the 132cm length extending past the 80cm sheath."

STRUCTURE:
1. Lead with a natural, direct answer that flows conversationally
2. Include the dimensional fit inline (OD into ID)
3. Note any length considerations if relevant
4. Keep it to 2-3 sentences max

RESPONSE QUALITY RULES:
- SAFETY: When the analysis says "Not Compatible", report it as Not Compatible. Do NOT re-evaluate or override the verdict based on dimensional proximity. The compatibility engine has already applied the correct evaluation logic - your job is to present its findings, not second-guess them.
- Do NOT repeat the same numbers twice - state the dimensional mismatch once, clearly
- When a connection fails on a clear blocker (e.g. ID mismatch), do NOT mention irrelevant passing checks (e.g. length) - focus on the reason it fails
- Add brief clinical context when relevant - explain the why, not just the numbers
- Keep it to 2-3 sentences. Every sentence should add new information`

const chainOutputDiscoveryTable = `
TASK: Present compatible devices found for the source device.

FORMAT: Use a markdown table:

| Device | ID | OD | Length | Manufacturer |
|--------|-----|-----|--------|--------------|

STRUCTURE:
1. Brief intro stating the source device requirements (1 sentence)
2. Neutral transition like: "The following meet these requirements:" or "Compatible options include:"
3. Markdown table with up to 10-15 options
4. Note total count if more exist: "There are X compatible devices in total."

LANGUAGE RULES:
- Stay neutral and clinical - no marketing language
- NEVER use: "commonly used", "popular", "best", "recommended", "leading", "preferred", "top choices", "key options"
- NEVER imply one device or manufacturer is better than another
- USE: "compatible", "meet the requirements", "within specifications", "available options"
- List devices alphabetically by manufacturer or by specification, not by preference`

const chainOutputDiscoveryProse = `
TASK: Present compatible devices found for the source device.

FORMAT: Use inline prose for few results.

STRUCTURE:
1. Briefly state what the source device requires (ID range, length)
2. List the compatible devices with key specs inline
3. Keep it concise

LANGUAGE RULES:
- Stay neutral and clinical - no marketing language
- NEVER use: "commonly used", "popular", "best", "recommended"
- USE: "compatible", "meet the requirements"`

const chainOutputStackValidation = `
TASK: Validate a multi-device configuration (3+ devices).

CRITICAL - CHECK FOR N-1 SCENARIOS:
If NOT all requested devices can fit in a single configuration:
1. FIRST clearly state: "All X devices cannot be used in a single configuration."
2. EXPLAIN WHY - identify which devices conflict and the reason
3. THEN present the valid subset configurations as labeled options (Option A, Option B)
4. Note which device is EXCLUDED in each option

FORMAT FOR STANDARD STACK (all devices fit):
1. Natural opening stating the configuration works
2. Show device order: [distal] -> ... -> [proximal]
3. Markdown table showing each connection with dimensions
4. If incompatible, clearly mark which connection fails

| Connection | Distal OD | Proximal ID | Status |
|------------|-----------|-------------|--------|`

const chainOutputDefault = `
TASK: Provide compatibility analysis.

FORMAT:
- For single device or 2-device checks: Use inline prose
- For multiple devices (3+): Use markdown table
- For comparisons: Use side-by-side table

LANGUAGE RULES:
- Stay neutral - no marketing language
- Present specifications objectively`

const chainFramingNegative = `
NOTE: The user expressed doubt or skepticism about compatibility.
- If devices ARE compatible: Gently correct with "Actually, these are compatible..." or "Contrary to what you might expect..."
- If devices are NOT compatible: Confirm their intuition with "You're right, these won't work together because..."
- If an N-1 scenario: Acknowledge their concern was valid - not all devices fit together`

const chainFramingPositive = `
NOTE: The user expects/hopes for compatibility.
- If compatible: Confirm naturally "These work well together..."
- If NOT compatible: Be direct but gentle "Unfortunately, these aren't compatible because..."
- If an N-1 scenario: Acknowledge partial success - "While not all devices fit in one configuration, here are valid options..."`

const chainModeDiscovery = `
MODE: Discovery - user is exploring options. Use a table to help them compare. Present all options neutrally without ranking or preference.`

const chainModeComparison = `
MODE: Comparison - user is comparing options. Use a side-by-side table showing specifications. Present differences objectively without recommending one over another. Let the specifications speak for themselves - do not state which is "better".`

// ChainOutputInput carries everything the chain output agent needs to
// render a compatibility answer.
type ChainOutputInput struct {
	UserQuery      string
	ResultType     string
	Classification map[string]any
	TextSummary    string
	FlatData       []map[string]any
	SubsetAnalysis []chain.SubsetResult
	NotFound       []string
	Suggestions    map[string][]string
}

// ChainOutput streams the chain engine's verdict as clinical prose,
// shaped by the query classification.
type ChainOutput struct {
	llm   provider.Provider
	model string
}

func NewChainOutput(llm provider.Provider, model string) *ChainOutput {
	return &ChainOutput{llm: llm, model: model}
}

func (a *ChainOutput) Run(ctx context.Context, brk *broker.Broker, in ChainOutputInput) (string, provider.TokenUsage, error) {
	prompt := fmt.Sprintf("User Question: %s\n\nCompatibility Analysis:\n\n%s", in.UserQuery, in.TextSummary)
	if len(in.SubsetAnalysis) > 0 {
		prompt += "\n\nN-1 Subset Configurations:\n" + formatSubsets(in.SubsetAnalysis)
	}
	if len(in.NotFound) > 0 {
		prompt += "\n\nDevices NOT found in the database: " + strings.Join(in.NotFound, ", ")
		for name, alts := range in.Suggestions {
			if len(alts) > 0 {
				prompt += fmt.Sprintf("\n  %q -> possible matches: %s", name, strings.Join(alts, ", "))
			}
		}
	}

	return streamOut(ctx, a.llm, brk, "chain_output_agent", provider.CompletionRequest{
		System:   a.buildSystem(in),
		Messages: []provider.LLMMessage{provider.User(prompt)},
		Model:    a.model,
	})
}

func (a *ChainOutput) buildSystem(in ChainOutputInput) string {
	var task string
	switch in.ResultType {
	case "compatibility_check":
		task = chainOutputCompatCheck
	case "device_discovery":
		if len(in.FlatData) >= 3 {
			task = chainOutputDiscoveryTable
		} else {
			task = chainOutputDiscoveryProse
		}
	case "stack_validation":
		task = chainOutputStackValidation
	default:
		task = chainOutputDefault
	}

	var framing string
	switch asString(in.Classification["framing"]) {
	case "negative":
		framing = chainFramingNegative
	case "positive":
		framing = chainFramingPositive
	}

	var mode string
	switch asString(in.Classification["query_mode"]) {
	case "discovery":
		mode = chainModeDiscovery
	case "comparison":
		mode = chainModeComparison
	}

	return strings.TrimSpace(chainOutputBase + "\n" + task + "\n" + framing + "\n" + mode)
}

func formatSubsets(subsets []chain.SubsetResult) string {
	var lines []string
	for _, s := range subsets {
		label := "Invalid"
		if s.Status == chain.StatusPass {
			label = "Valid"
		}
		lines = append(lines, fmt.Sprintf("  Excluding %s: %s", s.RemovedDevice, label))
		if s.Status == chain.StatusPass && len(s.Sequence) > 0 {
			lines = append(lines, "    Order: "+strings.Join(s.Sequence, " -> "))
		}
	}
	if len(lines) == 0 {
		return "No subset data available."
	}
	return strings.Join(lines, "\n")
}
