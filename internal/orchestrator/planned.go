package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/dbengine"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/vector"
)

// runPlannedPath handles filtered discovery and multi-part queries: the
// planner decomposes the question into engine steps, the executor runs
// them in dependency waves, and the plan's output agent renders the
// combined results.
func (o *Orchestrator) runPlannedPath(ctx context.Context, t *turn) (string, []map[string]any, error) {
	_ = t.brk.PutStatus(ctx, "query_planner", statusLabel("query_planner"))

	planner := NewQueryPlanner(o.llm, o.models.Resolve("query_planner"))
	plan, usage, err := planner.Run(ctx, t.normalized, t.ext)
	if err != nil || len(plan.Steps) == 0 {
		o.log.Warn("planner produced no usable plan, falling back to database path",
			"uid", t.uid, "error", err)
		text, err := o.runDatabasePath(ctx, t)
		return text, nil, err
	}
	t.usage.track("query_planner", usage)
	o.log.Info("executing plan",
		"uid", t.uid, "strategy", plan.Strategy,
		"steps", len(plan.Steps), "output_agent", plan.OutputAgent)

	results := o.executePlan(ctx, t, plan)
	return o.renderPlan(ctx, t, plan, results)
}

// executePlan runs steps in waves: every step whose dependencies are
// complete runs concurrently against a snapshot of prior results. A
// dependency cycle degrades to serial execution in declared order.
func (o *Orchestrator) executePlan(ctx context.Context, t *turn, plan *Plan) map[string]engine.Result {
	results := make(map[string]engine.Result, len(plan.Steps))
	completed := make(map[string]bool, len(plan.Steps))
	remaining := plan.Steps

	for len(remaining) > 0 {
		var ready, blocked []PlanStep
		for _, step := range remaining {
			ok := true
			for _, dep := range step.deps() {
				if !completed[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, step)
			} else {
				blocked = append(blocked, step)
			}
		}

		if len(ready) == 0 {
			o.log.Warn("plan has unresolvable dependencies, running remaining steps serially",
				"uid", t.uid, "remaining", len(remaining))
			for _, step := range remaining {
				res := o.executeStep(ctx, t, plan, step, results)
				results[step.key()] = res
				completed[step.key()] = true
				completed[step.StepID] = true
			}
			return results
		}

		// Snapshot so concurrent steps never read a map being written.
		snapshot := make(map[string]engine.Result, len(results))
		for k, v := range results {
			snapshot[k] = v
		}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, step := range ready {
			wg.Add(1)
			go func(step PlanStep) {
				defer wg.Done()
				res := o.executeStep(ctx, t, plan, step, snapshot)
				mu.Lock()
				results[step.key()] = res
				completed[step.key()] = true
				completed[step.StepID] = true
				mu.Unlock()
			}(step)
		}
		wg.Wait()
		remaining = blocked
	}
	return results
}

func (o *Orchestrator) executeStep(ctx context.Context, t *turn, plan *Plan, step PlanStep, prior map[string]engine.Result) engine.Result {
	switch step.Engine {
	case "chain":
		_ = t.brk.PutStatus(ctx, chain.EngineName, statusLabel(chain.EngineName))
		return o.runChainEngine(ctx, t, o.chainStepInput(plan, step, t, prior))
	case "vector":
		_ = t.brk.PutStatus(ctx, vector.EngineName, statusLabel(vector.EngineName))
		return o.runVectorEngine(ctx, t, o.vectorStepInput(step, t, prior))
	default:
		_ = t.brk.PutStatus(ctx, dbengine.EngineName, statusLabel(dbengine.EngineName))
		return o.runDatabaseEngine(ctx, t, o.databaseStepInput(step, t))
	}
}

// databaseStepInput builds a pre-resolved query spec from the plan step,
// bypassing the database engine's own spec agent. Extraction constraints
// the planner did not carry over are appended as contains filters.
func (o *Orchestrator) databaseStepInput(step PlanStep, t *turn) dbengine.Input {
	action := step.Action
	if action == "" {
		action = "filter_by_spec"
	}
	filters := append([]dbengine.Filter(nil), step.Filters...)
	for _, c := range t.ext.Constraints {
		present := false
		for _, f := range filters {
			if f.Field == c.Field {
				present = true
				break
			}
		}
		if !present {
			filters = append(filters, dbengine.Filter{Field: c.Field, Operator: "contains", Value: c.Value})
		}
	}

	query := step.QueryFocus
	if query == "" {
		query = t.normalized
	}
	return dbengine.Input{
		Query:      query,
		Devices:    t.ext.Groups,
		Categories: t.ext.Categories,
		Spec: &dbengine.QuerySpec{Step: dbengine.Step{
			StepID:   step.StepID,
			Action:   action,
			Category: step.Category,
			Filters:  filters,
		}},
	}
}

// chainStepInput scopes the chain engine to the step's named devices and
// feeds in prior step results so discovered candidates flow through.
func (o *Orchestrator) chainStepInput(plan *Plan, step PlanStep, t *turn, prior map[string]engine.Result) chain.Input {
	devices := t.ext.Devices
	if len(step.NamedDevices) > 0 {
		subset := make(map[string]chain.DeviceRef, len(step.NamedDevices))
		for _, want := range step.NamedDevices {
			for name, ref := range t.ext.Devices {
				if strings.EqualFold(name, want) {
					subset[name] = ref
				}
			}
		}
		if len(subset) > 0 {
			devices = subset
		}
	}

	in := chain.Input{
		Query:      t.normalized,
		Devices:    devices,
		Categories: t.ext.Categories,
	}
	if step.InjectDevicesFrom != "" {
		if res, ok := prior[step.InjectDevicesFrom]; ok {
			in.Prior = []engine.Result{res}
			in.FilterCategory = o.sourceCategory(plan, step.InjectDevicesFrom)
			// Candidates come from the prior step, not open discovery.
			in.Categories = nil
		}
	}
	return in
}

// sourceCategory resolves the category of the step whose results are
// being injected, so the chain engine knows what the candidates are.
func (o *Orchestrator) sourceCategory(plan *Plan, sourceKey string) string {
	for _, step := range plan.Steps {
		if (step.key() == sourceKey || step.StepID == sourceKey) && step.Category != "" {
			return step.Category
		}
	}
	return "device"
}

func (o *Orchestrator) vectorStepInput(step PlanStep, t *turn, prior map[string]engine.Result) vector.Input {
	query := step.QueryFocus
	if query == "" {
		query = t.normalized
	}

	groups := t.ext.Groups
	if len(step.NamedDevices) > 0 {
		groups = nil
		for _, name := range step.NamedDevices {
			groups = append(groups, t.db.GroupsForName(name)...)
		}
	}
	if step.InjectDevicesFrom != "" {
		if res, ok := prior[step.InjectDevicesFrom]; ok {
			for _, name := range engine.StringList(res.Data["device_list"]) {
				groups = append(groups, t.db.GroupsForName(name)...)
			}
		}
	}
	return vector.Input{Query: query, Devices: groups}
}

// renderPlan dispatches the collected results to the plan's output agent.
func (o *Orchestrator) renderPlan(ctx context.Context, t *turn, plan *Plan, results map[string]engine.Result) (string, []map[string]any, error) {
	firstResult := func(engineName string) (engine.Result, bool) {
		for _, step := range plan.Steps {
			if step.Engine != engineName {
				continue
			}
			if res, ok := results[step.key()]; ok {
				return res, true
			}
		}
		return engine.Result{}, false
	}

	switch plan.OutputAgent {
	case "chain_output_agent":
		res, ok := firstResult("chain")
		if !ok {
			break
		}
		flatData := anyMaps(res.Data["flat_data"])
		subsets, _ := res.Data["subset_analysis"].([]chain.SubsetResult)
		out := NewChainOutput(o.llm, o.models.Resolve("chain_output_agent"))
		text, usage, err := out.Run(ctx, t.brk, ChainOutputInput{
			UserQuery:      t.normalized,
			ResultType:     res.ResultType,
			Classification: res.Classification,
			TextSummary:    asString(res.Data["text_summary"]),
			FlatData:       flatData,
			SubsetAnalysis: subsets,
			NotFound:       t.ext.NotFound,
			Suggestions:    t.ext.Suggestions,
		})
		if err != nil {
			return "", nil, err
		}
		t.usage.track("chain_output_agent", usage)
		return text, flatData, nil

	case "vector_output_agent":
		res, ok := firstResult("vector")
		if !ok {
			break
		}
		chunks, _ := res.Data["chunks"].([]vector.Chunk)
		deviceCtx, _ := res.Data["device_context"].(map[string]any)
		out := NewVectorOutput(o.llm, o.models.Resolve("vector_output_agent"))
		text, usage, err := out.Run(ctx, t.brk, VectorOutputInput{
			UserQuery:     t.normalized,
			Chunks:        chunks,
			DeviceContext: deviceCtx,
		})
		if err != nil {
			return "", nil, err
		}
		t.usage.track("vector_output_agent", usage)
		return text, nil, nil

	case "synthesis_output_agent":
		_ = t.brk.PutStatus(ctx, "synthesis_output_agent", statusLabel("synthesis_output_agent"))
		out := NewSynthesisOutput(o.llm, o.models.Resolve("synthesis_output_agent"))
		text, usage, err := out.Run(ctx, t.brk, t.normalized, plan, results)
		if err != nil {
			return "", nil, err
		}
		t.usage.track("synthesis_output_agent", usage)
		var flatData []map[string]any
		if res, ok := firstResult("chain"); ok {
			flatData = anyMaps(res.Data["flat_data"])
		}
		return text, flatData, nil
	}

	// Default: render whichever database result the plan produced.
	res, ok := firstResult("database")
	if !ok {
		// Nothing usable came back; synthesize from whatever exists.
		out := NewSynthesisOutput(o.llm, o.models.Resolve("synthesis_output_agent"))
		text, usage, err := out.Run(ctx, t.brk, t.normalized, plan, results)
		if err != nil {
			return "", nil, err
		}
		t.usage.track("synthesis_output_agent", usage)
		return text, nil, nil
	}
	out := NewDatabaseOutput(o.llm, o.models.Resolve("database_output_agent"))
	text, usage, err := out.Run(ctx, t.brk, DatabaseOutputInput{
		UserQuery:           t.normalized,
		QuerySpec:           res.Data["query_spec"],
		Summary:             asString(res.Data["summary"]),
		DeviceList:          engine.StringList(res.Data["device_list"]),
		NotFound:            t.ext.NotFound,
		Suggestions:         t.ext.Suggestions,
		GenericInsufficient: t.genericInsufficient,
	})
	if err != nil {
		return "", nil, err
	}
	t.usage.track("database_output_agent", usage)
	return text, nil, nil
}
