package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rowsearch"

// Index synchronisation and query path Prometheus metrics.
var (
	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_operations_total",
			Help:      "Mutations processed by the indexer, by outcome",
		},
		[]string{"outcome", "status"},
	)

	IndexOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_operation_duration_seconds",
			Help:      "Time to index one mutation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	IndexRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rows_total",
			Help:      "Row documents written to or removed from the index",
		},
		[]string{"op"}, // "upsert" / "delete"
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests, by status",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration including materialization",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	MaterializeDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materialize_dropped_total",
			Help:      "Search hits whose rows were no longer in storage",
		},
	)

	MaterializeBatchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materialize_batch_errors_total",
			Help:      "Storage read batches that failed during materialization",
		},
	)
)

var registerOnce sync.Once

// Register registers the HTTP, indexing and search metrics on the default
// registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			httpRequestsInFlight,
			IndexOperationsTotal,
			IndexOperationDuration,
			IndexRowsTotal,
			SearchRequestsTotal,
			SearchDuration,
			MaterializeDroppedTotal,
			MaterializeBatchErrorsTotal,
		)
	})
}
