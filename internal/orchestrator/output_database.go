package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/provider"
)

const databaseOutputBase = `You are presenting query results to the user.

## CRITICAL ACCURACY RULES

1. ONLY describe what was actually done. Do NOT embellish or add claims about checks that were not performed.
2. If the query was a spec filter only (no named devices, no compatibility check), say "matching your criteria" or "meeting those specifications" - do NOT say "compatible with" any device.
3. Only mention compatibility if the results explicitly include compatibility data.
4. If no named devices were involved, do NOT reference "specified devices" or "the devices you mentioned."

## Guidelines

1. Answer the user's question directly
2. Be concise but thorough
3. Mention any devices that were not found
4. Do NOT ask follow-up questions
`

// DatabaseOutputInput is the database path's render context.
type DatabaseOutputInput struct {
	UserQuery           string
	QuerySpec           any
	Summary             string
	DeviceList          []string
	NotFound            []string
	Suggestions         map[string][]string
	GenericInsufficient []PrepDevice
}

// DatabaseOutput streams the catalog answer, then pushes the matched
// device list to the client in bounded chunks.
type DatabaseOutput struct {
	llm   provider.Provider
	model string
}

func NewDatabaseOutput(llm provider.Provider, model string) *DatabaseOutput {
	return &DatabaseOutput{llm: llm, model: model}
}

func (a *DatabaseOutput) Run(ctx context.Context, brk *broker.Broker, in DatabaseOutputInput) (string, provider.TokenUsage, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User Question: %s\n\nQuery Executed:\n%s\n\nResults:\n%s",
		in.UserQuery, compactJSON(in.QuerySpec), in.Summary)

	if len(in.NotFound) > 0 {
		var parts []string
		for _, name := range in.NotFound {
			if alts := in.Suggestions[name]; len(alts) > 0 {
				parts = append(parts, fmt.Sprintf("'%s' (did you mean: %s?)", name, strings.Join(alts, ", ")))
			} else {
				parts = append(parts, "'"+name+"'")
			}
		}
		fmt.Fprintf(&b, "\n\nDevices NOT found in database: %s", strings.Join(parts, "; "))
	}
	if len(in.GenericInsufficient) > 0 {
		fmt.Fprintf(&b, "\n\nUser's generic device specs that could not be searched: %s",
			compactJSON(in.GenericInsufficient))
	}
	b.WriteString("\n\nPlease answer the user's question based on these results.")

	text, usage, err := streamOut(ctx, a.llm, brk, "database_output_agent", provider.CompletionRequest{
		System:   a.buildSystem(len(in.DeviceList)),
		Messages: []provider.LLMMessage{provider.User(b.String())},
		Model:    a.model,
	})
	if err != nil {
		return text, usage, err
	}

	for _, ev := range broker.DeviceChunkEvents(broker.EventDeviceChunk, "database_output_agent", nameMaps(in.DeviceList)) {
		if err := brk.Put(ctx, ev); err != nil {
			return text, usage, err
		}
	}
	return text, usage, nil
}

func (a *DatabaseOutput) buildSystem(deviceCount int) string {
	var guidance string
	switch {
	case deviceCount == 1:
		guidance = `
## FORMAT: Single Device (Inline Prose)

Use natural sentences, no table needed:
"The Headway 21 has an inner diameter of 0.021", outer diameter of 0.026", and length of 150cm."
`
	case deviceCount == 2:
		guidance = `
## FORMAT: Two Devices (Comparison Table)

Use a side-by-side comparison table:

| Spec | Device A | Device B |
|------|----------|----------|
| ID | 0.021" | 0.017" |
| OD | 0.026" | 0.029" |
| Length | 150cm | 150cm |
| Manufacturer | MicroVention | Medtronic |
`
	case deviceCount >= 3:
		guidance = fmt.Sprintf(`
## FORMAT: Multiple Devices (%d results) - Use Table

Use a markdown table to display results:

| Device | ID | OD | Length | Manufacturer |
|--------|-----|-----|--------|--------------|

- Show up to 15 devices in the table
- Brief intro sentence stating total count
- If more than 15, note that additional options exist
`, deviceCount)
	default:
		guidance = `
## FORMAT: No Results

Explain that no devices matched the criteria and suggest alternatives if possible.
`
	}
	return databaseOutputBase + guidance
}
