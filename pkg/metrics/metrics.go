package metrics

import (
	"time"
)

// RecordEncode records a message written to a peer
func (r *Registry) RecordEncode(msgType, version string, size int) {
	r.MessagesEncodedTotal.WithLabelValues(msgType, version).Inc()
	r.MessageSizeBytes.WithLabelValues(msgType, "sent").Observe(float64(size))
}

// RecordDecode records a message read from a peer
func (r *Registry) RecordDecode(msgType, version string, size int) {
	r.MessagesDecodedTotal.WithLabelValues(msgType, version).Inc()
	r.MessageSizeBytes.WithLabelValues(msgType, "received").Observe(float64(size))
}

// RecordDecodeError records a rejected PDU
func (r *Registry) RecordDecodeError(version string) {
	r.DecodeErrorsTotal.WithLabelValues(version).Inc()
}

// RecordStateUpdate records a server state merge and the resulting state size
func (r *Registry) RecordStateUpdate(advanced bool, replicas int) {
	outcome := "stale"
	if advanced {
		outcome = "advanced"
	}
	r.ServerStateAdvancesTotal.WithLabelValues(outcome).Inc()
	r.ServerStateReplicas.Set(float64(replicas))
}

// RecordStateReset records a wholesale server state replacement
func (r *Registry) RecordStateReset(replicas int) {
	r.ServerStateResetsTotal.Inc()
	r.ServerStateReplicas.Set(float64(replicas))
}

// RecordAssuredOutcome records a finished assured wait
func (r *Registry) RecordAssuredOutcome(mode, outcome string, failedServers int, duration time.Duration) {
	r.AssuredWaitsTotal.WithLabelValues(mode, outcome).Inc()
	r.AssuredWaitDuration.WithLabelValues(mode).Observe(duration.Seconds())
	r.AssuredFailedServersTotal.Add(float64(failedServers))
}

// RecordStoreOperation records a state store operation
func (r *Registry) RecordStoreOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.StateStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	r.StateStoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
