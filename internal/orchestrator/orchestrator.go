// Package orchestrator runs one conversation turn end to end: the
// pre-processing agents, engine routing, and the output agent that
// streams the answer through the broker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cathlab/stackcheck/internal/broker"
	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/clinical"
	"github.com/cathlab/stackcheck/internal/config"
	"github.com/cathlab/stackcheck/internal/dbengine"
	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/session"
	"github.com/cathlab/stackcheck/internal/vector"
)

// The engine interfaces mirror the concrete engines so tests can swap in
// stubs without an LLM.

type ChainEngine interface {
	Run(ctx context.Context, db *device.Store, in chain.Input) engine.Result
}

type DatabaseEngine interface {
	Run(ctx context.Context, db *device.Store, in dbengine.Input) engine.Result
}

type VectorEngine interface {
	Run(ctx context.Context, in vector.Input) engine.Result
}

type ClinicalEngine interface {
	Run(ctx context.Context, in clinical.Input) engine.Result
}

// Engines groups the routable engines.
type Engines struct {
	Chain    ChainEngine
	Database DatabaseEngine
	Vector   VectorEngine
	Clinical ClinicalEngine
}

// Orchestrator coordinates agents and engines for a session-scoped turn.
type Orchestrator struct {
	llm      provider.Provider
	models   *config.ModelResolver
	devices  *device.Store
	sessions session.Store
	locks    *session.Locks
	engines  Engines
	log      *slog.Logger
}

func New(llm provider.Provider, models *config.ModelResolver, devices *device.Store, sessions session.Store, engines Engines, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		llm:      llm,
		models:   models,
		devices:  devices,
		sessions: sessions,
		locks:    session.NewLocks(),
		engines:  engines,
		log:      log,
	}
}

// turn is the per-request working state. The session lock is held for
// the turn's whole lifetime, so mutation needs no further locking.
type turn struct {
	brk       *broker.Broker
	sess      *session.Session
	uid       string
	sessionID string

	message      string
	normalized   string
	sourceFilter []string
	followup     bool
	history      []session.Turn

	intent *IntentResult
	ext    *Extraction

	// db is the catalog for this turn. The generic pipeline swaps in a
	// request-scoped overlay so synthetic records never leak.
	db                  *device.Store
	genericInsufficient []PrepDevice

	usage *usageTracker
}

// Run executes one turn and closes the broker when done. Every outcome,
// including a panic, ends with events on the broker so the client is
// never left hanging.
func (o *Orchestrator) Run(ctx context.Context, brk *broker.Broker, uid, sessionID, message string) {
	defer brk.Close()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("turn panicked", "uid", uid, "session_id", sessionID, "panic", r)
			_ = brk.Put(ctx, broker.ErrorEvent(fmt.Sprintf("internal error: %v", r), string(debug.Stack())))
		}
	}()

	release := o.locks.Acquire(uid, sessionID)
	defer release()

	sess, err := o.sessions.Get(ctx, uid, sessionID)
	if err != nil {
		o.log.Error("session load failed", "uid", uid, "error", err)
		_ = brk.Put(ctx, broker.ErrorEvent("failed to load session: "+err.Error(), ""))
		return
	}

	t := &turn{
		brk:       brk,
		sess:      sess,
		uid:       uid,
		sessionID: sessionID,
		message:   message,
		history:   sess.RecentHistory(6),
		db:        o.devices,
		usage:     newUsageTracker(),
	}
	sess.Append("user", message)

	if err := o.preprocess(ctx, t); err != nil {
		o.fail(ctx, t, err)
		return
	}

	primary := t.intent.Primary()
	if t.followup {
		primary = IntentClinicalSupport
	}
	o.log.Info("routing turn",
		"uid", uid, "intent", primary,
		"needs_planning", t.intent.NeedsPlanning,
		"devices", len(t.ext.Devices), "not_found", len(t.ext.NotFound))

	text, chainData, err := o.route(ctx, t, primary)
	if err != nil {
		o.fail(ctx, t, err)
		return
	}
	o.finish(ctx, t, text, chainData)
}

// preprocess runs the rewriter, clinical follow-up handling, and the
// intent/extraction fan-out.
func (o *Orchestrator) preprocess(ctx context.Context, t *turn) error {
	_ = t.brk.PutStatus(ctx, "input_rewriter", statusLabel("input_rewriter"))
	rewriter := NewInputRewriter(o.llm, o.models.Resolve("input_rewriter"))
	rewritten, usage, err := rewriter.Run(ctx, t.history, t.message)
	if err != nil {
		o.log.Warn("input rewriter failed, using raw query", "error", err)
		t.normalized = t.message
	} else {
		t.usage.track("input_rewriter", usage)
		t.normalized = rewritten.RewrittenUserPrompt
		t.sourceFilter = rewritten.SourceFilter
	}
	if t.normalized == "" {
		t.normalized = t.message
	}

	if merged, ok := mergeClinicalFollowup(t.sess, t.message); ok {
		t.normalized = merged
		t.followup = true
	} else {
		t.normalized = enrichGuidelineQuery(t.sess, t.normalized)
	}

	_ = t.brk.PutStatus(ctx, "intent_classifier", statusLabel("intent_classifier"))
	_ = t.brk.PutStatus(ctx, "equipment_extraction", statusLabel("equipment_extraction"))

	var (
		wg        sync.WaitGroup
		intentRes *IntentResult
		intentUse provider.TokenUsage
		intentErr error
		ext       *Extraction
		extUse    provider.TokenUsage
		extErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		classifier := NewIntentClassifier(o.llm, o.models.Resolve("intent_classifier"))
		intentRes, intentUse, intentErr = classifier.Run(ctx, t.normalized)
	}()
	go func() {
		defer wg.Done()
		extractor := NewEquipmentExtraction(o.llm, o.models.Resolve("equipment_extraction"), o.devices)
		ext, extUse, extErr = extractor.Run(ctx, t.normalized)
	}()
	wg.Wait()
	if err := errors.Join(intentErr, extErr); err != nil {
		return err
	}
	t.usage.track("intent_classifier", intentUse)
	t.usage.track("equipment_extraction", extUse)
	t.intent = intentRes
	t.ext = ext
	return nil
}

// route picks the engine path and returns the final answer text plus
// any flat chain data for the post-answer device chunks.
func (o *Orchestrator) route(ctx context.Context, t *turn, primary string) (string, []map[string]any, error) {
	switch primary {
	case IntentGeneral:
		text, err := o.runGeneralPath(ctx, t, t.message)
		return text, nil, err
	case IntentDeepResearch:
		text, err := o.runResearchStub(ctx, t)
		return text, nil, err
	}

	if len(t.ext.NotFound) > 0 {
		t.ext.Suggestions = o.suggestAlternatives(t.ext.NotFound)
		if relationalIntents[primary] {
			// Cannot evaluate a relationship against unknown devices.
			text, err := o.runClarificationPath(ctx, t)
			return text, nil, err
		}
	}

	if len(t.ext.GenericSpecs) > 0 && compatIntents[primary] {
		if err := o.runGenericPipeline(ctx, t); err != nil {
			return "", nil, err
		}
	}

	if primary == IntentFilteredDiscovery || t.intent.NeedsPlanning || len(t.ext.Constraints) > 0 {
		return o.runPlannedPath(ctx, t)
	}

	switch intentEngine[primary] {
	case routeChain:
		return o.runChainPath(ctx, t)
	case routeDatabase:
		text, err := o.runDatabasePath(ctx, t)
		return text, nil, err
	case routeVector:
		text, err := o.runVectorPath(ctx, t)
		return text, nil, err
	case routeClinical:
		text, err := o.runClinicalPath(ctx, t)
		return text, nil, err
	default:
		text, err := o.runGeneralPath(ctx, t, t.message)
		return text, nil, err
	}
}

func (o *Orchestrator) suggestAlternatives(notFound []string) map[string][]string {
	out := make(map[string][]string, len(notFound))
	for _, name := range notFound {
		var alts []string
		for _, s := range o.devices.Suggest(name, 3) {
			alts = append(alts, s.Name)
		}
		out[name] = alts
	}
	return out
}

// fail ends a turn that produced no answer. Accounting still happens:
// tokens already spent on agents land in the ledger and the turn record
// keeps the error for inspection.
func (o *Orchestrator) fail(ctx context.Context, t *turn, err error) {
	o.log.Error("turn failed", "uid", t.uid, "session_id", t.sessionID, "error", err)
	_ = t.brk.Put(ctx, broker.ErrorEvent(err.Error(), ""))

	record := map[string]any{
		"query":            t.message,
		"normalized_query": t.normalized,
		"error":            err.Error(),
		"token_usage":      t.usage.Summary(),
	}
	if serr := o.sessions.SaveTurn(ctx, t.uid, t.sessionID, uuid.NewString(), record); serr != nil {
		o.log.Warn("turn record save failed", "uid", t.uid, "error", serr)
	}
	o.incrementTokensAsync(ctx, t.uid, t.usage.Total())
}

// finish persists the turn and emits the trailing events: chain device
// chunks, the turn record, the async token increment, and turn_complete.
func (o *Orchestrator) finish(ctx context.Context, t *turn, text string, chainData []map[string]any) {
	t.sess.Append("assistant", text)

	for _, ev := range broker.DeviceChunkEvents(broker.EventChainCategoryChunk, "chain_output_agent", chainData) {
		_ = t.brk.Put(ctx, ev)
	}

	if err := o.sessions.Save(ctx, t.uid, t.sessionID, t.sess); err != nil {
		o.log.Error("session save failed", "uid", t.uid, "error", err)
	}
	record := map[string]any{
		"query":            t.message,
		"normalized_query": t.normalized,
		"response":         text,
		"intent":           t.intent.Primary(),
		"token_usage":      t.usage.Summary(),
	}
	if err := o.sessions.SaveTurn(ctx, t.uid, t.sessionID, uuid.NewString(), record); err != nil {
		o.log.Warn("turn record save failed", "uid", t.uid, "error", err)
	}

	total := t.usage.Total()
	o.incrementTokensAsync(ctx, t.uid, total)

	turnIndex := 0
	for _, h := range t.sess.History {
		if h.Role == "assistant" {
			turnIndex++
		}
	}
	_ = t.brk.Put(ctx, broker.TurnCompleteEvent(turnIndex, total))
}

// incrementTokensAsync updates the user's token ledger off the turn's
// critical path. Detached from the request context so a finished or
// cancelled turn still gets billed.
func (o *Orchestrator) incrementTokensAsync(ctx context.Context, uid string, total broker.TokenUsage) {
	go func() {
		incCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.sessions.IncrementTokens(incCtx, uid, total.InputTokens, total.OutputTokens); err != nil {
			o.log.Warn("token increment failed", "uid", uid, "error", err)
		}
	}()
}
