package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initProtocolMetrics() {
	r.MessagesEncodedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_encoded_total",
			Help:      "Total number of replication messages encoded",
		},
		[]string{"type", "version"},
	)

	r.MessagesDecodedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_decoded_total",
			Help:      "Total number of replication messages decoded",
		},
		[]string{"type", "version"},
	)

	r.DecodeErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of rejected PDUs",
		},
		[]string{"version"},
	)

	r.MessageSizeBytes = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_size_bytes",
			Help:      "Size of encoded replication messages",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 8), // 32B .. 512KB
		},
		[]string{"type", "direction"}, // sent, received
	)
}
