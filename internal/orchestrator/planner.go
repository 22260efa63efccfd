package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cathlab/stackcheck/internal/dbengine"
	"github.com/cathlab/stackcheck/internal/provider"
)

const plannerPrompt = `You are a query planner for a medical device compatibility system. Given a user question and extracted context, produce an execution plan as a sequence of engine steps.

AVAILABLE ENGINES:
- "database": structured catalog queries. Actions: "filter_by_spec" (filter a category by specification criteria), "get_compatible" (find devices compatible with given devices), "lookup_spec" (retrieve specification values). Supports filters with operators: eq, gt, gte, lt, lte, contains, in.
- "chain": multi-device compatibility reasoning. Validates whether a set of devices assemble into a working configuration, or discovers completing devices for a partial configuration.
- "vector": document search over IFUs and regulatory filings. Use for questions about warnings, indications, MRI safety, or anything sourced from documents rather than the catalog.

STRATEGIES:
- "sequential": steps run one after another, later steps consuming earlier results.
- "parallel": independent steps that can run concurrently.
- "single": one step answers the question.

PLANNING RULES:
1. Filtered discovery ("which X under N cm work with Y") plans a database filter step first, then a chain step that consumes the filtered candidates via "inject_devices_from".
2. A step that needs devices produced by an earlier step sets "inject_devices_from" to that step's "store_as" key. List explicit dependencies in "depends_on"; if omitted, "inject_devices_from" implies the dependency.
3. A step operating on devices the user named sets "named_devices" to those product names.
4. Vector steps set "query_focus" to the document question for that step; leave it empty to reuse the user's question.
5. Give every step a unique "step_id" and a "store_as" key for its results.
6. Choose "output_agent": "chain_output_agent" when the final step is a chain step, "vector_output_agent" when the plan is document-only, "synthesis_output_agent" when results from multiple engines must be combined, otherwise "database_output_agent".
7. Keep plans minimal. Most questions need one or two steps. Never add a step whose results nothing consumes.

Respond with ONLY valid JSON:
{
  "strategy": "sequential" | "parallel" | "single",
  "steps": [
    {
      "step_id": "step_1",
      "engine": "database" | "chain" | "vector",
      "action": "filter_by_spec",
      "category": "microcatheter",
      "filters": [{"field": "specification_length_cm", "operator": "lte", "value": 150}],
      "inject_devices_from": "",
      "named_devices": ["Device A"],
      "query_focus": "",
      "store_as": "filtered_candidates",
      "depends_on": []
    }
  ],
  "output_agent": "chain_output_agent"
}

EXAMPLES:

"Which microcatheters under 160cm are compatible with my Benchmark 071?" ->
strategy "sequential"; step_1 database filter_by_spec on microcatheter with a length filter storing "candidates"; step_2 chain with named_devices ["Benchmark 071"] and inject_devices_from "candidates"; output_agent "chain_output_agent".

"Does the IFU for Device X mention MRI safety, and what guide catheters accept it?" ->
strategy "parallel"; one vector step with query_focus on MRI safety, one database get_compatible step; output_agent "synthesis_output_agent".`

// PlanStep is one engine invocation in an execution plan.
type PlanStep struct {
	StepID            string           `json:"step_id"`
	Engine            string           `json:"engine"`
	Action            string           `json:"action"`
	Category          string           `json:"category"`
	Filters           []dbengine.Filter `json:"filters"`
	InjectDevicesFrom string           `json:"inject_devices_from"`
	NamedDevices      []string         `json:"named_devices"`
	QueryFocus        string           `json:"query_focus"`
	StoreAs           string           `json:"store_as"`
	DependsOn         []string         `json:"depends_on"`
}

// Plan is the planner's execution strategy for a multi-part query.
type Plan struct {
	Strategy    string     `json:"strategy"`
	Steps       []PlanStep `json:"steps"`
	OutputAgent string     `json:"output_agent"`
}

// key returns the name step results are stored under.
func (s PlanStep) key() string {
	if s.StoreAs != "" {
		return s.StoreAs
	}
	return s.StepID
}

// deps returns explicit dependencies, falling back to the injection
// source when none were declared.
func (s PlanStep) deps() []string {
	if len(s.DependsOn) > 0 {
		return s.DependsOn
	}
	if s.InjectDevicesFrom != "" {
		return []string{s.InjectDevicesFrom}
	}
	return nil
}

// QueryPlanner decomposes complex queries into engine execution plans.
type QueryPlanner struct {
	llm   provider.Provider
	model string
}

func NewQueryPlanner(llm provider.Provider, model string) *QueryPlanner {
	return &QueryPlanner{llm: llm, model: model}
}

func (a *QueryPlanner) Run(ctx context.Context, query string, ext *Extraction) (*Plan, provider.TokenUsage, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User Question: %s\n\n", query)
	if len(ext.Devices) > 0 {
		b.WriteString("Devices found:\n")
		names := make([]string, 0, len(ext.Devices))
		for name := range ext.Devices {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %q: conical_category=%s\n", name, ext.Devices[name].ConicalCategory)
		}
	} else {
		b.WriteString("Devices found: none\n")
	}
	if len(ext.Categories) > 0 {
		fmt.Fprintf(&b, "Categories mentioned: %s\n", strings.Join(ext.Categories, ", "))
	}
	if len(ext.Constraints) > 0 {
		raw, err := json.Marshal(ext.Constraints)
		if err == nil {
			fmt.Fprintf(&b, "Constraints: %s\n", raw)
		}
	}
	b.WriteString("\nGenerate an execution plan. Respond with ONLY valid JSON.")

	var plan Plan
	usage, err := provider.CompleteJSON(ctx, a.llm, provider.CompletionRequest{
		System:   plannerPrompt,
		Messages: []provider.LLMMessage{provider.User(b.String())},
		Model:    a.model,
		JSONMode: true,
	}, &plan)
	if err != nil {
		return nil, usage, fmt.Errorf("query planner: %w", err)
	}
	return &plan, usage, nil
}
