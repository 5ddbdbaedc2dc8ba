// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActionsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupkeeper_actions_queued_total",
		Help: "Actions pushed to the queue by producers, by type and reason",
	}, []string{"type", "reason"})

	ActionsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupkeeper_actions_deduplicated_total",
		Help: "Decisions dropped because an identical action was already queued",
	}, []string{"type"})

	WorkerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupkeeper_worker_outcomes_total",
		Help: "Queue items processed by the worker, by type and terminal state",
	}, []string{"type", "outcome"})

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupkeeper_gate_decisions_total",
		Help: "Escalation gate results: warned, rewarned, waiting, remove, fail_open",
	}, []string{"decision"})

	ClientCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupkeeper_client_call_duration_seconds",
		Help:    "Latency of messaging client calls",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 15, 60},
	}, []string{"call"})

	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupkeeper_pass_duration_seconds",
		Help:    "Duration of producer passes",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	}, []string{"pass"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
