package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/clinical"
	"github.com/cathlab/stackcheck/internal/dbengine"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/vector"
)

const researchStubPrefix = "The user asked a complex research question. The deep research feature is not yet available. Please acknowledge the complexity and offer to help with specific sub-questions instead.\n\nUser question: "

const degradedPrefix = "An internal analysis step failed, so full results are not available for this question. Apologize briefly, answer what you can from general knowledge without inventing device specifications, and suggest the user try again.\n\nUser question: "

// runDegraded produces the best-effort answer for a failed engine: the
// general agent answers from the query alone, and the error event trails
// the final response so the client still gets a complete turn with
// accounting intact.
func (o *Orchestrator) runDegraded(ctx context.Context, t *turn, engineName, errMsg string) (string, error) {
	o.log.Error("engine failed, degrading to best-effort answer",
		"engine", engineName, "uid", t.uid, "error", errMsg)

	text, err := o.runGeneralPath(ctx, t, degradedPrefix+t.normalized)
	if err != nil {
		return "", fmt.Errorf("%s: %s", engineName, errMsg)
	}
	_ = t.brk.Put(ctx, broker.ErrorEvent(engineName+": "+errMsg, ""))
	return text, nil
}

func (o *Orchestrator) runChainPath(ctx context.Context, t *turn) (string, []map[string]any, error) {
	_ = t.brk.PutStatus(ctx, chain.EngineName, statusLabel(chain.EngineName))

	res := o.runChainEngine(ctx, t, chain.Input{
		Query:      t.normalized,
		Devices:    t.ext.Devices,
		Categories: t.ext.Categories,
	})
	if res.Status == engine.StatusError {
		text, err := o.runDegraded(ctx, t, chain.EngineName, asString(res.Data["error"]))
		return text, nil, err
	}

	flatData := anyMaps(res.Data["flat_data"])
	subsets, _ := res.Data["subset_analysis"].([]chain.SubsetResult)

	out := NewChainOutput(o.llm, o.models.Resolve("chain_output_agent"))
	_ = t.brk.PutStatus(ctx, "chain_output_agent", statusLabel("chain_output_agent"))
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
}

func (o *Orchestrator) runDatabasePath(ctx context.Context, t *turn) (string, error) {
	_ = t.brk.PutStatus(ctx, dbengine.EngineName, statusLabel(dbengine.EngineName))

	res := o.runDatabaseEngine(ctx, t, dbengine.Input{
		Query:      t.normalized,
		Devices:    t.ext.Groups,
		Categories: t.ext.Categories,
	})
	if res.Status == engine.StatusError {
		return o.runDegraded(ctx, t, dbengine.EngineName, asString(res.Data["error"]))
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
		return "", err
	}
	t.usage.track("database_output_agent", usage)
	return text, nil
}

func (o *Orchestrator) runVectorPath(ctx context.Context, t *turn) (string, error) {
	_ = t.brk.PutStatus(ctx, vector.EngineName, statusLabel(vector.EngineName))

	res := o.runVectorEngine(ctx, t, vector.Input{
		Query:   t.normalized,
		Devices: t.ext.Groups,
	})
	if res.Status == engine.StatusError {
		return o.runDegraded(ctx, t, vector.EngineName, asString(res.Data["error"]))
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
		return "", err
	}
	t.usage.track("vector_output_agent", usage)
	return text, nil
}

// runClinicalPath runs eligibility assessment. An incomplete presentation
// short-circuits into a clarification turn: the questions stream back as
// the answer and the parsed patient is parked on the session so the next
// reply can be merged.
func (o *Orchestrator) runClinicalPath(ctx context.Context, t *turn) (string, error) {
	_ = t.brk.PutStatus(ctx, clinical.EngineName, statusLabel(clinical.EngineName))

	raw := t.message
	if t.followup {
		raw = t.normalized
	}
	res := o.runClinicalEngine(ctx, t, clinical.Input{
		Query:    t.normalized,
		RawQuery: raw,
	})
	if res.Status == engine.StatusError {
		return o.runDegraded(ctx, t, clinical.EngineName, asString(res.Data["error"]))
	}

	if res.Status == engine.StatusNeedsClarification {
		_ = t.brk.PutStatus(ctx, clinical.EngineName, "Missing Information…")
		text := formatClinicalClarification(res)
		if err := t.brk.Put(ctx, broker.FinalChunkEvent(clinical.EngineName, text)); err != nil {
			return "", err
		}
		patient, _ := res.Data["patient"].(clinical.PatientRecord)
		t.sess.PendingClinicalClarification = map[string]any{
			"original_query": t.normalized,
			"known":          knownPatientSummary(patient),
		}
		return text, nil
	}

	patient, _ := res.Data["patient"].(clinical.PatientRecord)
	eligibility, _ := res.Data["eligibility"].([]clinical.PathwayResult)
	vecCtx, _ := res.Data["vector_context"].([]clinical.GuidelineContext)
	trials, _ := res.Data["trial_context"].(map[string]clinical.TrialSummary)
	comp, _ := res.Data["completeness"].(clinical.Completeness)
	edgeCases := engine.StringList(res.Data["edge_cases"])

	out := NewClinicalOutput(o.llm, o.models.Resolve("clinical_output_agent"))
	_ = t.brk.PutStatus(ctx, "clinical_output_agent", statusLabel("clinical_output_agent"))
	text, usage, err := out.Run(ctx, t.brk, ClinicalOutputInput{
		UserQuery:     t.normalized,
		Patient:       patient,
		Eligibility:   eligibility,
		VectorContext: vecCtx,
		TrialContext:  trials,
		Completeness:  comp,
		EdgeCases:     edgeCases,
	})
	if err != nil {
		return "", err
	}
	t.usage.track("clinical_output_agent", usage)

	t.sess.PendingClinicalClarification = nil
	t.sess.LastClinicalAssessment = map[string]any{
		"context_suffix": asString(res.Data["context_suffix"]),
	}
	return text, nil
}

func (o *Orchestrator) runGeneralPath(ctx context.Context, t *turn, query string) (string, error) {
	out := NewGeneralOutput(o.llm, o.models.Resolve("general_output_agent"))
	text, usage, err := out.Run(ctx, t.brk, t.history, query)
	if err != nil {
		return "", err
	}
	t.usage.track("general_output_agent", usage)
	return text, nil
}

// runResearchStub answers deep-research intents with the general agent
// until the research pipeline exists.
func (o *Orchestrator) runResearchStub(ctx context.Context, t *turn) (string, error) {
	return o.runGeneralPath(ctx, t, researchStubPrefix+t.normalized)
}

// runClarificationPath handles relational queries naming devices the
// catalog does not have: ask the user to disambiguate instead of
// reasoning over a partial set.
func (o *Orchestrator) runClarificationPath(ctx context.Context, t *turn) (string, error) {
	resolved := make([]string, 0, len(t.ext.Devices))
	for name := range t.ext.Devices {
		resolved = append(resolved, name)
	}
	sort.Strings(resolved)

	out := NewClarificationOutput(o.llm, o.models.Resolve("clarification_output_agent"))
	text, usage, err := out.Run(ctx, t.brk, t.normalized, resolved, t.ext.NotFound, t.ext.Suggestions)
	if err != nil {
		return "", err
	}
	t.usage.track("clarification_output_agent", usage)
	return text, nil
}
