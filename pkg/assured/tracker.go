package assured

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/logging"
	"github.com/dd0wney/replcore/pkg/metrics"
	"github.com/dd0wney/replcore/pkg/protocol"
)

var (
	// ErrAlreadyPending is returned when an update is already being waited on
	ErrAlreadyPending = errors.New("assured update already pending")
	// ErrUnknownUpdate is returned for a CSN with no outstanding wait
	ErrUnknownUpdate = errors.New("no pending assured update")
)

// Tracker holds the outstanding assured updates of one replica, keyed by CSN
type Tracker struct {
	mu    sync.Mutex
	waits map[csn.CSN]*Wait

	metrics *metrics.Registry
	logger  logging.Logger
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithMetrics records outcomes in r
func WithMetrics(r *metrics.Registry) TrackerOption {
	return func(t *Tracker) {
		t.metrics = r
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates an empty tracker
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		waits:   make(map[csn.CSN]*Wait),
		metrics: metrics.DefaultRegistry(),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logging.Component("assured"))
	return t
}

// Begin starts waiting on exp. A wait that is satisfied immediately is
// returned already acked and is not registered.
func (t *Tracker) Begin(exp Expectation) (*Wait, error) {
	t.mu.Lock()
	if _, ok := t.waits[exp.CSN]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPending, exp.CSN)
	}

	w := newWait(exp, time.Now(), t.finish)
	if w.State().Terminal() {
		t.mu.Unlock()
		t.record(w)
		return w, nil
	}
	t.metrics.AssuredPending.Inc()
	t.waits[exp.CSN] = w
	t.mu.Unlock()

	t.logger.Debug("assured update pending",
		logging.CSN(exp.CSN),
		logging.Stringer("mode", exp.Mode),
		logging.Int("required", exp.Required),
		logging.Count(len(exp.Servers)))
	return w, nil
}

// HandleAck routes an acknowledgment received from a replica to the wait for
// its CSN. It reports whether a pending wait accepted it.
func (t *Tracker) HandleAck(from uint16, ack *protocol.AckMsg) bool {
	t.mu.Lock()
	w, ok := t.waits[ack.CSN()]
	t.mu.Unlock()

	if ok && w.Ack(from, ack) {
		return true
	}

	t.metrics.AssuredUnmatchedAcksTotal.Inc()
	t.logger.Debug("unmatched acknowledgment", logging.PeerID(from), logging.CSN(ack.CSN()))
	return false
}

// HandleRelayedAck completes the wait for the ack's CSN with the aggregated
// acknowledgment of the replication server from. It reports whether a
// pending wait accepted it.
func (t *Tracker) HandleRelayedAck(from uint16, ack *protocol.AckMsg) bool {
	t.mu.Lock()
	w, ok := t.waits[ack.CSN()]
	t.mu.Unlock()

	if ok && w.Relay(from, ack) {
		return true
	}

	t.metrics.AssuredUnmatchedAcksTotal.Inc()
	t.logger.Debug("unmatched relayed acknowledgment", logging.PeerID(from), logging.CSN(ack.CSN()))
	return false
}

// Await blocks until the update with CSN c is acked or ctx is done
func (t *Tracker) Await(ctx context.Context, c csn.CSN) (*protocol.AckMsg, error) {
	t.mu.Lock()
	w, ok := t.waits[c]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUpdate, c)
	}
	return w.Await(ctx), nil
}

// Expire times out the update with CSN c
func (t *Tracker) Expire(c csn.CSN) (*protocol.AckMsg, error) {
	t.mu.Lock()
	w, ok := t.waits[c]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUpdate, c)
	}
	return w.Expire(), nil
}

// Pending returns the number of outstanding waits
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waits)
}

// Close times out every outstanding wait
func (t *Tracker) Close() {
	t.mu.Lock()
	waits := make([]*Wait, 0, len(t.waits))
	for _, w := range t.waits {
		waits = append(waits, w)
	}
	t.mu.Unlock()

	for _, w := range waits {
		w.Expire()
	}
}

// finish runs once per registered wait when it becomes terminal
func (t *Tracker) finish(w *Wait) {
	t.mu.Lock()
	delete(t.waits, w.CSN())
	t.mu.Unlock()

	t.metrics.AssuredPending.Dec()
	t.record(w)
}

func (t *Tracker) record(w *Wait) {
	result, _ := w.Result()
	state := w.State()
	elapsed := w.Elapsed()
	mode := w.exp.Mode.String()

	t.metrics.RecordAssuredOutcome(mode, state.String(), len(result.FailedServers()), elapsed)

	fields := []logging.Field{
		logging.CSN(w.CSN()),
		logging.String("mode", mode),
		logging.String("outcome", state.String()),
		logging.Latency(elapsed),
	}
	if result.HasErrors() {
		fields = append(fields, logging.Any("failed_servers", result.FailedServers()))
		t.logger.Warn("assured update incomplete", fields...)
		return
	}
	t.logger.Debug("assured update acknowledged", fields...)
}
