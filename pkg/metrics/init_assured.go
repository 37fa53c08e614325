package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAssuredMetrics() {
	r.AssuredWaitsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assured_waits_total",
			Help:      "Completed assured update waits",
		},
		[]string{"mode", "outcome"}, // acked, timed_out
	)

	r.AssuredPending = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assured_pending",
			Help:      "Assured updates waiting for acknowledgments",
		},
	)

	r.AssuredWaitDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assured_wait_duration_seconds",
			Help:      "Time from sending an assured update to its outcome",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	r.AssuredFailedServersTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assured_failed_servers_total",
			Help:      "Servers listed as failed in assured acknowledgments",
		},
	)

	r.AssuredUnmatchedAcksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assured_unmatched_acks_total",
			Help:      "Acknowledgments received for no outstanding update",
		},
	)
}
