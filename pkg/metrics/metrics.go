// Package metrics exposes Kartograph's Prometheus collectors. Metrics are
// registered into a package-level custom registry rather than the global
// default so embedding applications can mount it under their own endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds Kartograph's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	// OutboxClaimed counts outbox rows claimed by a worker batch, by
	// event_type.
	OutboxClaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartograph",
			Subsystem: "outbox",
			Name:      "claimed_total",
			Help:      "Total number of outbox rows claimed for processing.",
		},
		[]string{"event_type"},
	)

	// OutboxProcessed counts outbox rows whose processed_at transitioned
	// to non-null, by event_type.
	OutboxProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartograph",
			Subsystem: "outbox",
			Name:      "processed_total",
			Help:      "Total number of outbox rows successfully processed.",
		},
		[]string{"event_type"},
	)

	// OutboxDeadLettered counts rows that exceeded max_retries.
	OutboxDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartograph",
			Subsystem: "outbox",
			Name:      "dead_lettered_total",
			Help:      "Total number of outbox rows moved to the dead-letter state.",
		},
		[]string{"event_type"},
	)

	// OutboxBatchDuration observes the wall-clock time to claim, translate,
	// apply, and commit one worker batch.
	OutboxBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kartograph",
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one outbox worker batch, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	// GraphBatchOperations counts mutation operations applied by the bulk
	// loading strategy, by op_kind (create_node, create_edge, delete_node,
	// delete_edge, update).
	GraphBatchOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartograph",
			Subsystem: "graph",
			Name:      "batch_operations_total",
			Help:      "Total number of graph mutation operations applied.",
		},
		[]string{"op_kind"},
	)

	// GraphBatchDuration observes the wall-clock time to apply one bulk
	// load batch end to end.
	GraphBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kartograph",
			Subsystem: "graph",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one bulk-loading batch, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

func init() {
	Registry.MustRegister(
		OutboxClaimed,
		OutboxProcessed,
		OutboxDeadLettered,
		OutboxBatchDuration,
		GraphBatchOperations,
		GraphBatchDuration,
	)
}
