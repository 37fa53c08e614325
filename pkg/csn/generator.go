package csn

import (
	"math"
	"sync"
	"time"
)

// Clock returns the current wall-clock time
type Clock func() time.Time

// Generator mints CSNs for a single replica. Successive calls to Next return
// strictly increasing CSNs even when the wall clock stalls or goes backwards.
type Generator struct {
	mu        sync.Mutex
	replicaID uint16
	lastTime  int64
	seq       uint16
	clock     Clock
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithClock replaces the wall clock used by the generator
func WithClock(clock Clock) GeneratorOption {
	return func(g *Generator) {
		g.clock = clock
	}
}

// WithStart seeds the generator so that every CSN it mints is newer than last.
// Used when restarting from a persisted server state.
func WithStart(last CSN) GeneratorOption {
	return func(g *Generator) {
		g.lastTime = last.timestamp
		g.seq = last.seq
	}
}

// NewGenerator creates a generator for the given replica
func NewGenerator(replicaID uint16, opts ...GeneratorOption) *Generator {
	g := &Generator{
		replicaID: replicaID,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReplicaID returns the replica this generator mints CSNs for
func (g *Generator) ReplicaID() uint16 {
	return g.replicaID
}

// Next returns a CSN strictly greater than any previously returned
func (g *Generator) Next() CSN {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock().UnixMilli()
	if now > g.lastTime {
		g.lastTime = now
		g.seq = 0
	} else if g.seq == math.MaxUint16 {
		g.lastTime++
		g.seq = 0
	} else {
		g.seq++
	}

	return CSN{timestamp: g.lastTime, replicaID: g.replicaID, seq: g.seq}
}

// Adjust moves the generator past a CSN seen from another replica so that the
// next local CSN sorts after it.
func (g *Generator) Adjust(seen CSN) {
	if seen.IsNull() {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case seen.timestamp > g.lastTime:
		g.lastTime = seen.timestamp
		g.seq = seen.seq
	case seen.timestamp == g.lastTime && seen.seq > g.seq:
		g.seq = seen.seq
	}
}
