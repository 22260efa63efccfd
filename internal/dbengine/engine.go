package dbengine

import (
	"context"
	"log/slog"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/provider"
)

// EngineName is the identifier used on the result contract and by the
// planner.
const EngineName = "database_engine"

// ResultType tags every database result.
const ResultType = "database_query"

// Input is one database-engine request. Spec, when set, bypasses the
// planner agent; the planned path uses it to run an exact filter the
// query planner already specified.
type Input struct {
	Query          string
	Devices        []device.Group
	Categories     []string
	Spec           *QuerySpec
	Classification map[string]any
}

// Engine answers catalog questions: an LLM plans the query spec, a
// deterministic executor runs it.
type Engine struct {
	agent *SpecAgent
	log   *slog.Logger
}

func NewEngine(llm provider.Provider, model string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{agent: NewSpecAgent(llm, model), log: log}
}

// Run executes the pipeline. The result data carries the spec, the full
// execution output, the flat device_list (product names, for downstream
// engines), and the rendered summary.
func (e *Engine) Run(ctx context.Context, db *device.Store, in Input) engine.Result {
	var usage provider.TokenUsage

	spec := in.Spec
	if spec == nil {
		planned, agentUsage, err := e.agent.Run(ctx, db, in.Query, in.Devices, in.Categories)
		usage = agentUsage
		if err != nil {
			return engine.Result{
				Status:     engine.StatusError,
				Engine:     EngineName,
				ResultType: ResultType,
				Data: map[string]any{
					"error": "query planning failed: " + err.Error(),
					"token_usage": map[string]int{
						"input_tokens":  usage.PromptTokens,
						"output_tokens": usage.CompletionTokens,
					},
				},
				Classification: in.Classification,
				Confidence:     0,
			}
		}
		spec = &planned
	} else {
		e.log.Info("running pre-planned query spec", "action", spec.Action)
	}

	execution := NewExecutor(db, e.log).Execute(*spec)
	deviceList := productNames(execution.DeviceList())
	e.log.Info("database query complete", "devices", len(deviceList))

	return engine.Result{
		Status:     engine.StatusComplete,
		Engine:     EngineName,
		ResultType: ResultType,
		Data: map[string]any{
			"query_spec":       spec,
			"execution_result": execution,
			"device_list":      deviceList,
			"summary":          execution.Summary,
			"token_usage": map[string]int{
				"input_tokens":  usage.PromptTokens,
				"output_tokens": usage.CompletionTokens,
			},
		},
		Classification: in.Classification,
		Confidence:     0.9,
	}
}

// productNames deduplicates the final records into the product-name list
// downstream engines consume.
func productNames(records []SpecRecord) []string {
	seen := make(map[string]bool, len(records))
	var names []string
	for _, r := range records {
		name := r.ProductName
		if name == "" || name == "Unknown" {
			name = r.DeviceName
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
