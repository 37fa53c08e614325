package assured

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/protocol"
)

// State of an outstanding assured update
type State uint8

const (
	StatePending State = iota
	StateAcked
	StateTimedOut
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAcked:
		return "acked"
	case StateTimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateAcked || s == StateTimedOut
}

// Wait is one outstanding assured update. It moves from pending to acked or
// timed out exactly once; there is no retry.
type Wait struct {
	exp     Expectation
	started time.Time

	mu          sync.Mutex
	state       State
	acked       map[uint16]struct{}
	reported    []uint16
	relayed     bool
	timeout     bool
	wrongStatus bool
	replayError bool
	result      *protocol.AckMsg
	finished    time.Time
	onDone      func(*Wait)

	done chan struct{}
}

// NewWait starts waiting on exp. An expectation that awaits nobody is acked
// immediately.
func NewWait(exp Expectation) *Wait {
	return newWait(exp, time.Now(), nil)
}

func newWait(exp Expectation, started time.Time, onDone func(*Wait)) *Wait {
	w := &Wait{
		exp:     exp,
		started: started,
		acked:   make(map[uint16]struct{}, len(exp.Servers)),
		onDone:  onDone,
		done:    make(chan struct{}),
	}
	if exp.Satisfied() {
		w.mu.Lock()
		w.finishLocked(StateAcked, started)
		w.mu.Unlock()
	}
	return w
}

func (w *Wait) CSN() csn.CSN { return w.exp.CSN }

// Expectation returns what the wait is waiting for
func (w *Wait) Expectation() Expectation { return w.exp }

// State returns the current state
func (w *Wait) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done is closed once the wait reaches a terminal state
func (w *Wait) Done() <-chan struct{} { return w.done }

// Result returns the acknowledgment for the origin once the wait is terminal
func (w *Wait) Result() (*protocol.AckMsg, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.result != nil
}

// Elapsed returns the time from creation to the terminal state, or to now
// while pending
func (w *Wait) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished.IsZero() {
		return time.Since(w.started)
	}
	return w.finished.Sub(w.started)
}

// Ack records an acknowledgment from a replica. report is the ack the
// replica sent, if any; failures it carries are merged into the result.
// Ack reports whether the replica was expected and the wait still pending.
func (w *Wait) Ack(from uint16, report *protocol.AckMsg) bool {
	w.mu.Lock()
	if w.state.Terminal() || !w.exp.expects(from) {
		w.mu.Unlock()
		return false
	}

	w.acked[from] = struct{}{}
	w.mergeLocked(report)

	var hook func(*Wait)
	if len(w.acked) >= w.exp.Required {
		hook = w.finishLocked(StateAcked, time.Now())
	}
	w.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return true
}

// Relay completes the wait with the acknowledgment of the replication server
// the update was sent through. That server aggregates the acks of the other
// replicas, so its report is the result: the failures it names are kept and
// every other expected replica counts as acknowledged. Relay reports whether
// the wait was still pending.
func (w *Wait) Relay(from uint16, report *protocol.AckMsg) bool {
	w.mu.Lock()
	if w.state.Terminal() {
		w.mu.Unlock()
		return false
	}

	var failed []uint16
	if report != nil {
		failed = report.FailedServers()
		w.timeout = report.HasTimeout()
	}
	w.relayed = true
	w.acked[from] = struct{}{}
	for _, id := range w.exp.Servers {
		if !slices.Contains(failed, id) {
			w.acked[id] = struct{}{}
		}
	}
	w.mergeLocked(report)
	hook := w.finishLocked(StateAcked, time.Now())
	w.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return true
}

func (w *Wait) mergeLocked(report *protocol.AckMsg) {
	if report == nil {
		return
	}
	w.wrongStatus = w.wrongStatus || report.HasWrongStatus()
	w.replayError = w.replayError || report.HasReplayError()
	w.reported = append(w.reported, report.FailedServers()...)
}

// Expire times the wait out if it is still pending and returns its result
func (w *Wait) Expire() *protocol.AckMsg {
	w.mu.Lock()
	var hook func(*Wait)
	if !w.state.Terminal() {
		hook = w.finishLocked(StateTimedOut, time.Now())
	}
	result := w.result
	w.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return result
}

// Await blocks until the wait is terminal or ctx is done, in which case the
// wait times out. The context deadline is the acknowledgment timeout.
func (w *Wait) Await(ctx context.Context) *protocol.AckMsg {
	select {
	case <-w.done:
		result, _ := w.Result()
		return result
	case <-ctx.Done():
		return w.Expire()
	}
}

// finishLocked moves the wait to a terminal state and returns the hook to
// run once the lock is released
func (w *Wait) finishLocked(state State, at time.Time) func(*Wait) {
	w.state = state
	w.finished = at
	w.result = w.buildResultLocked()
	close(w.done)
	return w.onDone
}

// buildResultLocked lists failed servers as: expected servers that did not
// ack (timeout only), servers in wrong status, then failures reported by
// peers, without duplicates. A relayed result carries only what the relay
// reported.
func (w *Wait) buildResultLocked() *protocol.AckMsg {
	var failed []uint16
	add := func(id uint16) {
		if !slices.Contains(failed, id) {
			failed = append(failed, id)
		}
	}

	timedOut := w.state == StateTimedOut
	if timedOut {
		for _, id := range w.exp.Servers {
			if _, ok := w.acked[id]; !ok {
				add(id)
			}
		}
	}
	if !w.relayed {
		for _, id := range w.exp.WrongStatus {
			add(id)
		}
	}
	for _, id := range w.reported {
		add(id)
	}

	ack := protocol.NewAckMsg(w.exp.CSN)
	if timedOut || w.timeout {
		ack = ack.WithTimeout(true)
	}
	if w.wrongStatus || (!w.relayed && len(w.exp.WrongStatus) > 0) {
		ack = ack.WithWrongStatus(true)
	}
	if w.replayError {
		ack = ack.WithReplayError(true)
	}
	if len(failed) > 0 {
		ack = ack.WithFailedServers(failed...)
	}
	return ack
}
