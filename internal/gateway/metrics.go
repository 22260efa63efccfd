package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var turnsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stackcheck_chat_turns_started_total",
	Help: "counter of chat turns accepted by the gateway",
})

var turnsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stackcheck_chat_turns_rejected_total",
	Help: "counter of chat requests rejected before reaching the orchestrator",
}, []string{"reason"})

var turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "stackcheck_chat_turn_duration_seconds",
	Help:    "duration of a chat turn from accept to stream close",
	Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
})

var activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "stackcheck_chat_active_streams",
	Help: "number of chat turns currently streaming",
})

var eventsStreamed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stackcheck_chat_events_total",
	Help: "counter of events written to chat streams",
}, []string{"type"})
