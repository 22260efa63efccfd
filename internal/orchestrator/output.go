package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/provider"
)

// streamOut runs a completion and forwards every delta to the broker as
// a final_chunk from the named agent. When the provider cannot stream,
// the whole answer goes out as a single chunk.
func streamOut(ctx context.Context, llm provider.Provider, brk *broker.Broker, agent string, req provider.CompletionRequest) (string, provider.TokenUsage, error) {
	ch, err := llm.Stream(ctx, req)
	if err != nil {
		resp, cerr := llm.Complete(ctx, req)
		if cerr != nil {
			return "", provider.TokenUsage{}, cerr
		}
		if perr := brk.Put(ctx, broker.FinalChunkEvent(agent, resp.Content)); perr != nil {
			return resp.Content, resp.Usage, perr
		}
		return resp.Content, resp.Usage, nil
	}

	var text strings.Builder
	var usage provider.TokenUsage
	for chunk := range ch {
		if chunk.Err != nil {
			return text.String(), usage, chunk.Err
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Content == "" {
			continue
		}
		text.WriteString(chunk.Content)
		if err := brk.Put(ctx, broker.FinalChunkEvent(agent, chunk.Content)); err != nil {
			return text.String(), usage, err
		}
	}
	return text.String(), usage, nil
}

// compactJSON renders a value for prompt embedding. Unmarshalable values
// degrade to an empty object rather than failing the turn.
func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// anyMaps converts typed slices (flat chain records, spec records) into
// the loose maps the broker's device chunk events carry.
func anyMaps(v any) []map[string]any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// nameMaps wraps bare product names for device chunk events.
func nameMaps(names []string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]any{"product_name": n})
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
