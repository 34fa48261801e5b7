// Package metrics registers the Prometheus metrics used by the dedup layer.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup and write-through instrumentation.
var (
	// LookupsTotal counts completed cache lookups labelled by namespace and
	// outcome ("local_hit", "exact_hit", "approx_hit", "miss").
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_lookups_total",
			Help: "Total cache lookups by outcome.",
		},
		[]string{"namespace", "outcome"},
	)

	// LookupDuration observes the time spent deciding hit vs. miss, in
	// seconds. Includes remote round-trips but not the wrapped operation.
	LookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_lookup_duration_seconds",
			Help:    "Cache lookup duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"namespace"},
	)

	// LookupErrors counts recovered cache-layer failures during lookup,
	// labelled by path ("exact", "search", "fetch"). Each one was treated
	// as a miss.
	LookupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_lookup_errors_total",
			Help: "Recovered cache lookup failures by path.",
		},
		[]string{"namespace", "path"},
	)

	// WritesTotal counts write-through attempts labelled by status
	// ("ok", "error").
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_writes_total",
			Help: "Total write-through attempts by status.",
		},
		[]string{"namespace", "status"},
	)

	// OperationCalls counts invocations of the wrapped operation, i.e.
	// cache misses that reached the expensive call.
	OperationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_operation_calls_total",
			Help: "Total invocations of the wrapped operation.",
		},
		[]string{"namespace"},
	)
)
