// Package serverstate implements the per-subtree vector clock: for every
// replica ever seen, the newest CSN known to have been generated by it.
package serverstate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dd0wney/replcore/pkg/csn"
)

const pairSize = 2 + csn.Size

// ErrInvalidState is returned when encoded server state bytes are malformed
var ErrInvalidState = errors.New("invalid server state encoding")

// State is an immutable snapshot of a server state
type State struct {
	csns map[uint16]csn.CSN
}

// Empty returns a state with no replicas
func Empty() State {
	return State{}
}

// Of builds a state holding the newest of the given CSNs per replica
func Of(csns ...csn.CSN) State {
	m := make(map[uint16]csn.CSN, len(csns))
	for _, c := range csns {
		if c.IsNull() {
			continue
		}
		if cur, ok := m[c.ReplicaID()]; !ok || c.Newer(cur) {
			m[c.ReplicaID()] = c
		}
	}
	if len(m) == 0 {
		return State{}
	}
	return State{csns: m}
}

// CSNFor returns the newest CSN seen from a replica, or csn.Null
func (s State) CSNFor(replicaID uint16) csn.CSN {
	return s.csns[replicaID]
}

// Len returns the number of replicas in the state
func (s State) Len() int {
	return len(s.csns)
}

// Replicas returns the known replica ids in ascending order
func (s State) Replicas() []uint16 {
	return slices.Sorted(maps.Keys(s.csns))
}

// CSNs returns the CSNs of the state ordered by replica id
func (s State) CSNs() []csn.CSN {
	ids := s.Replicas()
	out := make([]csn.CSN, len(ids))
	for i, id := range ids {
		out[i] = s.csns[id]
	}
	return out
}

// Covers reports whether s holds, for every replica of other, a CSN at least
// as new as other's.
func (s State) Covers(other State) bool {
	for id, theirs := range other.csns {
		if s.csns[id].Older(theirs) {
			return false
		}
	}
	return true
}

// CoversCSN reports whether the change identified by c is already reflected in s
func (s State) CoversCSN(c csn.CSN) bool {
	return !s.csns[c.ReplicaID()].Older(c)
}

// Equal reports whether both states hold identical CSNs per replica
func (s State) Equal(other State) bool {
	return maps.Equal(s.csns, other.csns)
}

// With returns a copy of s advanced with c. The boolean is false when c was
// not newer than the CSN already held for its replica.
func (s State) With(c csn.CSN) (State, bool) {
	if c.IsNull() || !c.Newer(s.csns[c.ReplicaID()]) {
		return s, false
	}
	next := make(map[uint16]csn.CSN, len(s.csns)+1)
	maps.Copy(next, s.csns)
	next[c.ReplicaID()] = c
	return State{csns: next}, true
}

// String renders the state as space-separated CSN text, ordered by replica id
func (s State) String() string {
	parts := make([]string, 0, len(s.csns))
	for _, c := range s.CSNs() {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " ")
}

// EncodedLen returns the size of the binary encoding
func (s State) EncodedLen() int {
	return 4 + len(s.csns)*pairSize
}

// AppendBinary appends the wire encoding: a uint32 count followed by
// (replica id, CSN) pairs sorted by replica id.
func (s State) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s.csns)))
	for _, id := range s.Replicas() {
		b = binary.BigEndian.AppendUint16(b, id)
		b = s.csns[id].AppendBinary(b)
	}
	return b
}

// Bytes returns the wire encoding of s
func (s State) Bytes() []byte {
	return s.AppendBinary(make([]byte, 0, s.EncodedLen()))
}

// Decode parses an encoding produced by AppendBinary. The whole input must be
// consumed.
func Decode(b []byte) (State, error) {
	if len(b) < 4 {
		return State{}, fmt.Errorf("%w: missing count", ErrInvalidState)
	}
	count := binary.BigEndian.Uint32(b)
	body := b[4:]
	if uint64(len(body)) != uint64(count)*pairSize {
		return State{}, fmt.Errorf("%w: %d bytes for %d replicas", ErrInvalidState, len(body), count)
	}
	if count == 0 {
		return State{}, nil
	}

	csns := make(map[uint16]csn.CSN, count)
	var prev uint16
	for i := 0; i < int(count); i++ {
		pair := body[i*pairSize : (i+1)*pairSize]
		id := binary.BigEndian.Uint16(pair)
		if i > 0 && id <= prev {
			return State{}, fmt.Errorf("%w: replica %d out of order", ErrInvalidState, id)
		}
		c, err := csn.FromBytes(pair[2:])
		if err != nil {
			return State{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		if c.ReplicaID() != id {
			return State{}, fmt.Errorf("%w: CSN %s filed under replica %d", ErrInvalidState, c, id)
		}
		csns[id] = c
		prev = id
	}
	return State{csns: csns}, nil
}
