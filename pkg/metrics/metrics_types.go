package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "replcore"

// Registry holds all metrics of the replication core
type Registry struct {
	// Protocol Metrics
	MessagesEncodedTotal *prometheus.CounterVec
	MessagesDecodedTotal *prometheus.CounterVec
	DecodeErrorsTotal    *prometheus.CounterVec
	MessageSizeBytes     *prometheus.HistogramVec

	// Server State Metrics
	CSNsGeneratedTotal       prometheus.Counter
	ServerStateAdvancesTotal *prometheus.CounterVec
	ServerStateReplicas      prometheus.Gauge
	ServerStateResetsTotal   prometheus.Counter

	// Assured Replication Metrics
	AssuredWaitsTotal         *prometheus.CounterVec
	AssuredPending            prometheus.Gauge
	AssuredWaitDuration       *prometheus.HistogramVec
	AssuredFailedServersTotal prometheus.Counter
	AssuredUnmatchedAcksTotal prometheus.Counter

	// State Store Metrics
	StateStoreOperationsTotal   *prometheus.CounterVec
	StateStoreOperationDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initProtocolMetrics()
	r.initStateMetrics()
	r.initAssuredMetrics()
	r.initStoreMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
