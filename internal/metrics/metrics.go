// Package metrics declares the Prometheus collectors of the semantic compiler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compile outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "semq_build_info",
			Help: "Build information of the semantic query compiler",
		},
		[]string{"version", "commit"},
	)

	CompilationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semq_compilations_total",
			Help: "Total number of query compilations",
		},
		[]string{"outcome", "kind"},
	)

	CompilationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semq_compilation_duration_seconds",
			Help:    "Duration of query compilations",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50µs to ~410ms
		},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semq_executions_total",
			Help: "Total number of compiled query executions",
		},
		[]string{"status"},
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semq_execution_duration_seconds",
			Help:    "Duration of compiled query executions",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
	)

	GraphTables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semq_graph_tables",
			Help: "Number of tables in the bound metadata graph",
		},
	)
)
