package serverstate

import (
	"sync"
	"sync/atomic"

	"github.com/dd0wney/replcore/pkg/csn"
)

// ServerState is the mutable server state of one replicated subtree.
// Writers are serialized; readers get lock-free consistent snapshots.
type ServerState struct {
	mu      sync.Mutex
	current atomic.Pointer[State]
}

// New creates an empty server state
func New() *ServerState {
	return NewFrom(Empty())
}

// NewFrom creates a server state seeded with a snapshot
func NewFrom(initial State) *ServerState {
	ss := &ServerState{}
	ss.current.Store(&initial)
	return ss
}

// Snapshot returns the current immutable state
func (ss *ServerState) Snapshot() State {
	return *ss.current.Load()
}

// Update merges c into the state and reports whether the state advanced.
// Older or equal CSNs for a replica are ignored.
func (ss *ServerState) Update(c csn.CSN) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	next, advanced := ss.current.Load().With(c)
	if advanced {
		ss.current.Store(&next)
	}
	return advanced
}

// UpdateCommit merges c like Update but publishes the new state only when
// commit accepts it. A commit error leaves the state unchanged; commit is not
// called when c does not advance the state.
func (ss *ServerState) UpdateCommit(c csn.CSN, commit func(State) error) (bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	next, advanced := ss.current.Load().With(c)
	if !advanced {
		return false, nil
	}
	if err := commit(next); err != nil {
		return false, err
	}
	ss.current.Store(&next)
	return true, nil
}

// Replace swaps the whole state, as done after a full re-initialization
func (ss *ServerState) Replace(s State) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Store(&s)
}

// CSNFor returns the newest CSN seen from a replica, or csn.Null
func (ss *ServerState) CSNFor(replicaID uint16) csn.CSN {
	return ss.Snapshot().CSNFor(replicaID)
}

// Covers reports whether this state covers other
func (ss *ServerState) Covers(other State) bool {
	return ss.Snapshot().Covers(other)
}

// CoversCSN reports whether c is already reflected in the state
func (ss *ServerState) CoversCSN(c csn.CSN) bool {
	return ss.Snapshot().CoversCSN(c)
}

// String renders the current snapshot
func (ss *ServerState) String() string {
	return ss.Snapshot().String()
}
