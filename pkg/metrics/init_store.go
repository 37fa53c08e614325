package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStoreMetrics() {
	r.StateStoreOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_store_operations_total",
			Help:      "Server state persistence operations",
		},
		[]string{"operation", "status"},
	)

	r.StateStoreOperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "state_store_operation_duration_seconds",
			Help:      "Server state persistence latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
}
