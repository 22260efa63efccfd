package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/vector"
)

const vectorOutputSystem = `You are a medical device specification assistant.

Your job:
Answer the user's question directly and concisely using ONLY the provided IFU/510(k) document data.

Rules:
- Answer ONLY what is asked - no extra details.
- Be concise (1-3 sentences for simple questions, more for complex ones).
- ALWAYS attribute the source: say "Per the IFU..." or "The 510(k) states..."
- If the document explicitly states something is "None known" or "None" (e.g., contraindications), clearly report that:
  -> Example: "Per the IFU, Contraindications: None known."
- If the information is NOT mentioned or NOT found in the provided data, say:
  -> "No information found in the available IFU/510(k) documentation."
- Never guess or infer - only report what the documents explicitly state.
- Do NOT use your training knowledge about medical devices. Answer strictly from the provided document chunks.
- When multiple document sources agree, synthesize into a single answer.
- When they conflict, note both sources and their statements.
- Include device specifications (dimensions, materials) when relevant to the question.`

// NoDocResultsMessage is the fixed reply when document search finds
// nothing relevant.
const NoDocResultsMessage = "No relevant information was found in the available IFU/510(k) documentation for this query."

// VectorOutputInput is the document path's render context.
type VectorOutputInput struct {
	UserQuery     string
	Chunks        []vector.Chunk
	DeviceContext map[string]any
}

// VectorOutput renders document chunks into a source-attributed answer.
// With no chunks it short-circuits with the fixed no-results message and
// no LLM call.
type VectorOutput struct {
	llm   provider.Provider
	model string
}

func NewVectorOutput(llm provider.Provider, model string) *VectorOutput {
	return &VectorOutput{llm: llm, model: model}
}

func (a *VectorOutput) Run(ctx context.Context, brk *broker.Broker, in VectorOutputInput) (string, provider.TokenUsage, error) {
	if len(in.Chunks) == 0 {
		if err := brk.Put(ctx, broker.FinalChunkEvent("vector_output_agent", NoDocResultsMessage)); err != nil {
			return NoDocResultsMessage, provider.TokenUsage{}, err
		}
		return NoDocResultsMessage, provider.TokenUsage{}, nil
	}

	return streamOut(ctx, a.llm, brk, "vector_output_agent", provider.CompletionRequest{
		System:   vectorOutputSystem,
		Messages: []provider.LLMMessage{provider.User(a.buildPrompt(in))},
		Model:    a.model,
	})
}

func (a *VectorOutput) buildPrompt(in VectorOutputInput) string {
	formatted := make([]string, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		var attrStr string
		if len(c.Attributes) > 0 {
			keys := make([]string, 0, len(c.Attributes))
			for k, v := range c.Attributes {
				if v == nil || v == "" {
					continue
				}
				keys = append(keys, fmt.Sprintf("%s: %v", k, v))
			}
			sort.Strings(keys)
			if len(keys) > 0 {
				attrStr = " | Attributes: " + strings.Join(keys, ", ")
			}
		}
		formatted = append(formatted, fmt.Sprintf("[Chunk %d] (score: %.2f, file: %s%s)\n%s",
			i+1, c.Score, c.FileID, attrStr, c.Text))
	}

	var deviceLine string
	if len(in.DeviceContext) > 0 {
		names := make([]string, 0, len(in.DeviceContext))
		for name := range in.DeviceContext {
			names = append(names, name)
		}
		sort.Strings(names)
		deviceLine = "\nDevices referenced: " + strings.Join(names, ", ")
	}

	return fmt.Sprintf("User Question: %s\n%s\n\nDocument Data (%d chunks):\n\n%s\n\nAnswer the user's question using ONLY the document data above.",
		in.UserQuery, deviceLine, len(in.Chunks), strings.Join(formatted, "\n\n---\n\n"))
}
