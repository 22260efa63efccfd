package orchestrator

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/cathlab/stackcheck/internal/chain"
	"github.com/cathlab/stackcheck/internal/clinical"
	"github.com/cathlab/stackcheck/internal/dbengine"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/vector"
)

var engineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "stackcheck_engine_duration_seconds",
	Help:    "Wall time of one engine invocation.",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
}, []string{"engine"})

var tokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stackcheck_llm_tokens_total",
	Help: "LLM tokens consumed, by agent and direction.",
}, []string{"tool", "direction"})

// The engine wrappers open a span, time the invocation, and fold the
// engine's own token usage into the turn tracker.

func (o *Orchestrator) runChainEngine(ctx context.Context, t *turn, in chain.Input) engine.Result {
	ctx, done := startEngine(ctx, chain.EngineName)
	defer done()
	res := o.engines.Chain.Run(ctx, t.db, in)
	t.usage.trackEngine(chain.EngineName, res.Data)
	return res
}

func (o *Orchestrator) runDatabaseEngine(ctx context.Context, t *turn, in dbengine.Input) engine.Result {
	ctx, done := startEngine(ctx, dbengine.EngineName)
	defer done()
	res := o.engines.Database.Run(ctx, t.db, in)
	t.usage.trackEngine(dbengine.EngineName, res.Data)
	return res
}

func (o *Orchestrator) runVectorEngine(ctx context.Context, t *turn, in vector.Input) engine.Result {
	ctx, done := startEngine(ctx, vector.EngineName)
	defer done()
	res := o.engines.Vector.Run(ctx, in)
	t.usage.trackEngine(vector.EngineName, res.Data)
	return res
}

func (o *Orchestrator) runClinicalEngine(ctx context.Context, t *turn, in clinical.Input) engine.Result {
	ctx, done := startEngine(ctx, clinical.EngineName)
	defer done()
	res := o.engines.Clinical.Run(ctx, in)
	t.usage.trackEngine(clinical.EngineName, res.Data)
	return res
}

func startEngine(ctx context.Context, name string) (context.Context, func()) {
	start := time.Now()
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "engine."+name)
	return ctx, func() {
		span.End()
		engineDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}
