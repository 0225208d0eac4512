// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InputsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowstate_inputs_accepted_total",
		Help: "Inputs admitted into the buffer, clamped or not.",
	})

	InputsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowstate_inputs_dropped_total",
		Help: "Inputs dropped by the validation pipeline, by reason.",
	}, []string{"reason"})

	TicksStepped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowstate_ticks_stepped_total",
		Help: "Simulation ticks advanced.",
	})

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowstate_tick_duration_seconds",
		Help:    "Wall time of one orchestrator step.",
		Buckets: prometheus.ExponentialBuckets(1e-5, 2, 12),
	})

	SnapshotsBroadcast = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowstate_snapshots_broadcast_total",
		Help: "Snapshot broadcasts emitted.",
	})

	MatchesFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowstate_matches_finalized_total",
		Help: "Matches finalized, by end reason.",
	}, []string{"reason"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		InputsAccepted,
		InputsDropped,
		TicksStepped,
		TickDuration,
		SnapshotsBroadcast,
		MatchesFinalized,
	)
}

// Handler serves the registry for the ops listener.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
