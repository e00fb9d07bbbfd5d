// Package observability provides logging and metrics capabilities for
// the runbook execution engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics namespace for all runbook-engine metrics.
const metricsNamespace = "runbook_engine"

// Operation metrics.
var (
	// OperationsTotal counts operations by operation name and status.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Total number of runbook operations",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration measures the duration of runbook operations in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of runbook operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"operation"},
	)

	// ExecutionReturnCodes counts script exit codes by runbook filename.
	ExecutionReturnCodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "execution_return_codes_total",
			Help:      "Count of script return codes by runbook and code",
		},
		[]string{"runbook", "return_code"},
	)
)

// Execution concurrency metrics.
var (
	// ActiveExecutions tracks the number of scripts currently running.
	ActiveExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_executions",
			Help:      "Number of script executions currently in flight",
		},
	)

	// RecursionDepth is a histogram, per runbook, of the recursion depth
	// observed at execution start.
	RecursionDepth = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "recursion_depth",
			Help:      "Recursion depth observed at execution start",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		},
		[]string{"runbook"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		ExecutionReturnCodes,
		ActiveExecutions,
		RecursionDepth,
	)
}
