// Package metrics exposes Prometheus instrumentation for the agent
// runtime. It carries only the slice of the ambient observability
// stack relevant to an embedded agent loop: turns, provider requests,
// tool executions, and token/cost accounting. A host application wires
// Metrics into its own /metrics endpoint; this package never starts an
// HTTP server itself.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter, histogram, and gauge this runtime
// exports. Construct one with New and share it across a process; all
// fields are safe for concurrent use, per prometheus's own contract.
type Metrics struct {
	// TurnsTotal counts agent-loop turns by outcome (done|error|max_turns).
	TurnsTotal *prometheus.CounterVec

	// TurnDuration measures wall-clock time per turn.
	TurnDuration *prometheus.HistogramVec

	// ProviderRequestsTotal counts provider calls by provider, model, status.
	ProviderRequestsTotal *prometheus.CounterVec

	// ProviderRequestDuration measures provider call latency.
	// Buckets favor LLM-scale latencies over sub-second HTTP calls.
	ProviderRequestDuration *prometheus.HistogramVec

	// TokensTotal counts tokens consumed by provider, model, and kind
	// (input|output|cache_read|cache_write).
	TokensTotal *prometheus.CounterVec

	// CostUSDTotal tracks estimated spend by provider and model.
	CostUSDTotal *prometheus.CounterVec

	// ToolExecutionsTotal counts tool calls by tool name and status
	// (ok|error|denied).
	ToolExecutionsTotal *prometheus.CounterVec

	// ToolExecutionDuration measures tool call latency.
	ToolExecutionDuration *prometheus.HistogramVec

	// CompactionsTotal counts context-compaction runs by trigger and outcome.
	CompactionsTotal *prometheus.CounterVec

	// FailoversTotal counts model-failover events by reason.
	FailoversTotal *prometheus.CounterVec

	// ActiveTurns tracks in-flight agent-loop turns.
	ActiveTurns prometheus.Gauge
}

// New creates and registers every metric against reg. Passing a
// dedicated *prometheus.Registry (rather than the global default)
// keeps repeated test construction from colliding on duplicate
// registration; production callers typically pass
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_turns_total",
				Help: "Total number of agent-loop turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_turn_duration_seconds",
				Help:    "Duration of a single agent-loop turn in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_provider_requests_total",
				Help: "Total number of provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_provider_request_duration_seconds",
				Help:    "Duration of provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),

		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_tokens_total",
				Help: "Total number of tokens consumed by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),

		CostUSDTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_cost_usd_total",
				Help: "Estimated cost in USD by provider and model",
			},
			[]string{"provider", "model"},
		),

		ToolExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name", "status"},
		),

		CompactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_compactions_total",
				Help: "Total number of context-compaction runs by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),

		FailoversTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_failovers_total",
				Help: "Total number of model-failover events by reason",
			},
			[]string{"reason"},
		),

		ActiveTurns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coreagent_active_turns",
				Help: "Current number of in-flight agent-loop turns",
			},
		),
	}
}

// ObserveProviderRequest records both the counter and the histogram
// for a single provider call in one step, mirroring how the call
// sites in providers.Registry actually measure requests.
func (m *Metrics) ObserveProviderRequest(provider, model, status string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// ObserveToolExecution records both the counter and the histogram for
// a single tool call.
func (m *Metrics) ObserveToolExecution(toolName, status string, duration time.Duration) {
	m.ToolExecutionsTotal.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName, status).Observe(duration.Seconds())
}

// ObserveTurn records both the counter and the histogram for a single
// agent-loop turn.
func (m *Metrics) ObserveTurn(outcome string, duration time.Duration) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
