package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStateMetrics() {
	r.CSNsGeneratedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csns_generated_total",
			Help:      "Total number of CSNs generated for local writes",
		},
	)

	r.ServerStateAdvancesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_state_updates_total",
			Help:      "Server state merges by outcome",
		},
		[]string{"outcome"}, // advanced, stale
	)

	r.ServerStateReplicas = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_state_replicas",
			Help:      "Number of replicas known to the server state",
		},
	)

	r.ServerStateResetsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_state_resets_total",
			Help:      "Total number of wholesale server state replacements",
		},
	)
}
