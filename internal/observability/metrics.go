package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle"

type moduleMetrics struct {
	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	turnSteps    prometheus.Histogram

	oracleDecisionTotal *prometheus.CounterVec
	overrideTotal       *prometheus.CounterVec

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	providerFailover     *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	retrievalDuration *prometheus.HistogramVec
	retrievalDocs     *prometheus.HistogramVec

	configReloadTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "turn_total",
					Help:      "Total conversation turns by outcome.",
				},
				[]string{"outcome"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "turn_duration_seconds",
					Help:      "Turn duration in seconds by outcome.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"outcome"},
			),
			turnSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "turn_intermediate_steps",
					Help:      "Intermediate steps consumed per turn.",
					Buckets:   prometheus.LinearBuckets(0, 1, 11),
				},
			),
			oracleDecisionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "oracle_decision_total",
					Help:      "Oracle decisions by kind.",
				},
				[]string{"kind"},
			),
			overrideTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "override_total",
					Help:      "Deterministic overrides applied by trigger.",
				},
				[]string{"trigger"},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "provider_call_total",
					Help:      "LLM provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "provider_call_duration_seconds",
					Help:      "LLM provider call duration in seconds by provider.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerFailover: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "provider_failover_total",
					Help:      "Failovers away from a provider after a retryable error.",
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_errors_total",
					Help:      "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			retrievalDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "retrieval_duration_seconds",
					Help:      "Vector retrieval duration in seconds by backend.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"backend"},
			),
			retrievalDocs: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "retrieval_documents",
					Help:      "Documents returned per retrieval by backend.",
					Buckets:   prometheus.LinearBuckets(0, 2, 10),
				},
				[]string{"backend"},
			),
			configReloadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "config_reload_total",
					Help:      "Agent config reloads by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.turnTotal,
			m.turnDuration,
			m.turnSteps,
			m.oracleDecisionTotal,
			m.overrideTotal,
			m.providerCallTotal,
			m.providerCallDuration,
			m.providerFailover,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.retrievalDuration,
			m.retrievalDocs,
			m.configReloadTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordTurn records a finished turn. outcome is the stop reason or the
// error class that ended it.
func RecordTurn(outcome string, duration time.Duration, steps int) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.turnSteps.Observe(float64(steps))
}

func RecordOracleDecision(kind string) {
	getMetrics().oracleDecisionTotal.WithLabelValues(kind).Inc()
}

func RecordOverride(trigger string) {
	getMetrics().overrideTotal.WithLabelValues(trigger).Inc()
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.providerCallTotal.WithLabelValues(provider, status(success)).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordProviderFailover(provider string) {
	getMetrics().providerFailover.WithLabelValues(provider).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordRetrieval(backend string, duration time.Duration, docs int) {
	m := getMetrics()
	m.retrievalDuration.WithLabelValues(backend).Observe(duration.Seconds())
	m.retrievalDocs.WithLabelValues(backend).Observe(float64(docs))
}

func RecordConfigReload(success bool) {
	getMetrics().configReloadTotal.WithLabelValues(status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
