package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/provider"
)

const synthesisOutputSystem = `You are a senior neurointerventional device specialist synthesizing results from multiple analysis engines into one coherent answer.

You will receive results from some combination of:
- Compatibility Analysis: deterministic multi-device fit reasoning over catalog specifications
- Database Results: structured catalog queries
- Document Data: excerpts retrieved from IFUs and regulatory filings
- Clinical Assessment: guideline-based treatment eligibility

RULES:
1. Answer the user's question directly in the first sentence, then support it from the engine results.
2. Use ONLY the data provided. Never speculate about devices, specifications, or compatibility relationships that are not in the results.
3. Compatibility determinations come from the Compatibility Analysis verbatim - do NOT re-derive fit from dimensions yourself, and do NOT soften a FAIL or upgrade a PASS.
4. When document data is cited, attribute it: "Per the IFU..." or "The 510(k) filing states...".
5. Clinical eligibility statements keep their Class/Level framing and never become treatment recommendations.
6. When results from different engines disagree, present both and say which source each came from. Do not silently reconcile.
7. Stay within scope: do not volunteer analysis the user did not ask for. If a result section is empty, omit it rather than apologizing for it.
8. Use markdown. A table is appropriate when comparing three or more devices; otherwise prose.
9. No marketing language. No "great choice", "excellent device", or similar.`

// SynthesisOutput combines results from multiple engines into a single
// streamed answer for planned multi-step queries.
type SynthesisOutput struct {
	llm   provider.Provider
	model string
}

func NewSynthesisOutput(llm provider.Provider, model string) *SynthesisOutput {
	return &SynthesisOutput{llm: llm, model: model}
}

func (a *SynthesisOutput) Run(ctx context.Context, brk *broker.Broker, query string, plan *Plan, results map[string]engine.Result) (string, provider.TokenUsage, error) {
	return streamOut(ctx, a.llm, brk, "synthesis_output_agent", provider.CompletionRequest{
		System:    synthesisOutputSystem,
		Messages:  []provider.LLMMessage{provider.User(a.buildPrompt(query, plan, results))},
		Model:     a.model,
		MaxTokens: 8192,
	})
}

func (a *SynthesisOutput) buildPrompt(query string, plan *Plan, results map[string]engine.Result) string {
	var parts []string
	parts = append(parts, "User Question: "+query)

	seen := make(map[string]bool)
	for _, step := range plan.Steps {
		res, ok := results[step.key()]
		if !ok || seen[step.key()] {
			continue
		}
		seen[step.key()] = true

		switch step.Engine {
		case "chain":
			if txt := asString(res.Data["text_summary"]); txt != "" {
				parts = append(parts, "## Compatibility Analysis\n"+txt)
			}
		case "database":
			names := engine.StringList(res.Data["device_list"])
			section := fmt.Sprintf("## Database Results\n%d devices matched", len(names))
			if len(names) > 0 {
				shown := names
				if len(shown) > 20 {
					shown = shown[:20]
				}
				section += ":\n- " + strings.Join(shown, "\n- ")
				if len(names) > 20 {
					section += fmt.Sprintf("\n(and %d more)", len(names)-20)
				}
			}
			if summary := asString(res.Data["summary"]); summary != "" {
				section += "\n" + summary
			}
			parts = append(parts, section)
		case "vector":
			chunks := anyMaps(res.Data["chunks"])
			if len(chunks) == 0 {
				continue
			}
			var texts []string
			for _, c := range chunks {
				if txt := asString(c["text"]); txt != "" {
					texts = append(texts, txt)
				}
			}
			parts = append(parts, fmt.Sprintf("## Document Data (%d chunks)\n%s",
				len(chunks), strings.Join(texts, "\n\n---\n\n")))
		case "clinical":
			parts = append(parts, "## Clinical Assessment\n"+compactJSON(res.Data["eligibility"]))
		}
	}

	parts = append(parts, "Synthesize these results into a single answer to the user's question.")
	return strings.Join(parts, "\n\n")
}
