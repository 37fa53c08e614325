// Package replication ties the protocol core together for one replicated
// subtree: CSN generation, the server state, assured waits, persistence and
// per-peer sessions.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/assured"
	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/logging"
	"github.com/dd0wney/replcore/pkg/metrics"
	"github.com/dd0wney/replcore/pkg/protocol"
	"github.com/dd0wney/replcore/pkg/serverstate"
	"github.com/dd0wney/replcore/pkg/statestore"
)

// Domain is one replicated subtree on one replica. It is the single updater
// of its server state; everyone else reads snapshots.
type Domain struct {
	cfg       DomainConfig
	baseDN    dn.DN
	replicaID uint16
	groupID   uint8

	generationID atomic.Int64
	topology     atomic.Pointer[protocol.TopologyMsg]
	closed       atomic.Bool

	// applyMu orders state changes with their persistence
	applyMu sync.Mutex
	gen     *csn.Generator
	state   *serverstate.ServerState

	store     *statestore.Store
	ownsStore bool
	tracker   *assured.Tracker
	metrics   *metrics.Registry
	logger    logging.Logger
	clock     csn.Clock
}

// DomainOption configures a Domain
type DomainOption func(*Domain)

// WithStore persists the server state in store. The caller keeps ownership
// of the store. Without it the domain opens StateDBPath, if set, and closes
// it on Close.
func WithStore(store *statestore.Store) DomainOption {
	return func(d *Domain) {
		d.store = store
	}
}

// WithMetrics records domain activity in r
func WithMetrics(r *metrics.Registry) DomainOption {
	return func(d *Domain) {
		d.metrics = r
	}
}

// WithLogger sets the logger. The default is the process default logger at
// the configured level.
func WithLogger(l logging.Logger) DomainOption {
	return func(d *Domain) {
		d.logger = l
	}
}

// WithClock sets the wall clock used for new CSNs
func WithClock(clock csn.Clock) DomainOption {
	return func(d *Domain) {
		d.clock = clock
	}
}

// NewDomain creates the domain described by cfg, restoring the server state
// and generation id from the store when one is configured
func NewDomain(ctx context.Context, cfg DomainConfig, opts ...DomainOption) (*Domain, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseDN, err := cfg.ParsedBaseDN()
	if err != nil {
		return nil, err
	}

	d := &Domain{
		cfg:       cfg,
		baseDN:    baseDN,
		replicaID: uint16(cfg.ReplicaID),
		groupID:   uint8(cfg.GroupID),
		metrics:   metrics.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.DefaultLogger().With()
		d.logger.SetLevel(cfg.Level())
	}
	d.logger = d.logger.With(
		logging.Component("replication"),
		logging.ReplicaID(d.replicaID),
		logging.BaseDN(d.baseDN))

	if d.store == nil && cfg.StateDBPath != "" {
		store, err := statestore.Open(cfg.StateDBPath,
			statestore.WithMetrics(d.metrics),
			statestore.WithLogger(d.logger))
		if err != nil {
			return nil, err
		}
		d.store, d.ownsStore = store, true
	}

	initial, generationID, err := d.restore(ctx)
	if err != nil {
		if d.ownsStore {
			d.store.Close()
		}
		return nil, err
	}
	d.generationID.Store(generationID)
	d.state = serverstate.NewFrom(initial)

	genOpts := []csn.GeneratorOption{csn.WithStart(initial.CSNFor(d.replicaID))}
	if d.clock != nil {
		genOpts = append(genOpts, csn.WithClock(d.clock))
	}
	d.gen = csn.NewGenerator(d.replicaID, genOpts...)

	d.tracker = assured.NewTracker(assured.WithMetrics(d.metrics), assured.WithLogger(d.logger))
	d.metrics.ServerStateReplicas.Set(float64(initial.Len()))

	d.logger.Info("replication domain started",
		logging.GroupID(d.groupID),
		logging.Int64("generation_id", generationID),
		logging.Stringer("server_state", initial))
	return d, nil
}

func (d *Domain) restore(ctx context.Context) (serverstate.State, int64, error) {
	if d.store == nil {
		return serverstate.Empty(), d.cfg.GenerationID, nil
	}

	state, err := d.store.Load(ctx, d.baseDN)
	switch {
	case errors.Is(err, statestore.ErrNotFound):
		state = serverstate.Empty()
	case err != nil:
		return serverstate.State{}, 0, fmt.Errorf("failed to restore server state: %w", err)
	}

	generationID, err := d.store.LoadGenerationID(ctx, d.baseDN)
	switch {
	case errors.Is(err, statestore.ErrNotFound):
		generationID = d.cfg.GenerationID
	case err != nil:
		return serverstate.State{}, 0, fmt.Errorf("failed to restore generation id: %w", err)
	}
	return state, generationID, nil
}

func (d *Domain) BaseDN() dn.DN        { return d.baseDN }
func (d *Domain) ReplicaID() uint16    { return d.replicaID }
func (d *Domain) GroupID() uint8       { return d.groupID }
func (d *Domain) Config() DomainConfig { return d.cfg }

// GenerationID returns the lineage id of the domain's data
func (d *Domain) GenerationID() int64 { return d.generationID.Load() }

// ServerState returns a snapshot of the domain's server state
func (d *Domain) ServerState() serverstate.State {
	return d.state.Snapshot()
}

// Tracker returns the assured waits of the domain
func (d *Domain) Tracker() *assured.Tracker { return d.tracker }

// NextCSN returns a fresh CSN for a local change
func (d *Domain) NextCSN() csn.CSN {
	d.metrics.CSNsGeneratedTotal.Inc()
	return d.gen.Next()
}

// Contains reports whether target lies in the replicated subtree
func (d *Domain) Contains(target dn.DN) bool {
	return d.baseDN.Equal(target) || d.baseDN.IsAncestorOf(target)
}

func (d *Domain) checkTarget(target dn.DN) error {
	if !d.Contains(target) {
		return fmt.Errorf("%w: %s not under %s", ErrOutsideDomain, target, d.baseDN)
	}
	return nil
}

func (d *Domain) updateOptions(opts []protocol.UpdateOption) []protocol.UpdateOption {
	return append(d.cfg.UpdateOptions(), opts...)
}

// NewAdd creates an add record for a local write with a fresh CSN and the
// configured assured defaults; opts override them
func (d *Domain) NewAdd(target dn.DN, entryUUID uuid.UUID, content protocol.AddContent, opts ...protocol.UpdateOption) (*protocol.AddMsg, error) {
	if err := d.checkTarget(target); err != nil {
		return nil, err
	}
	return protocol.NewAddMsg(d.NextCSN(), target, entryUUID, content, d.updateOptions(opts)...), nil
}

// NewDelete creates a delete record for a local write
func (d *Domain) NewDelete(target dn.DN, entryUUID uuid.UUID, opts ...protocol.UpdateOption) (*protocol.DeleteMsg, error) {
	if err := d.checkTarget(target); err != nil {
		return nil, err
	}
	return protocol.NewDeleteMsg(d.NextCSN(), target, entryUUID, d.updateOptions(opts)...), nil
}

// NewModify creates a modify record for a local write
func (d *Domain) NewModify(target dn.DN, entryUUID uuid.UUID, mods [][]byte, opts ...protocol.UpdateOption) (*protocol.ModifyMsg, error) {
	if err := d.checkTarget(target); err != nil {
		return nil, err
	}
	return protocol.NewModifyMsg(d.NextCSN(), target, entryUUID, mods, d.updateOptions(opts)...), nil
}

// NewModDN creates a rename record for a local write
func (d *Domain) NewModDN(target dn.DN, entryUUID uuid.UUID, rename protocol.Rename, opts ...protocol.UpdateOption) (*protocol.ModDNMsg, error) {
	if err := d.checkTarget(target); err != nil {
		return nil, err
	}
	return protocol.NewModDNMsg(d.NextCSN(), target, entryUUID, rename, d.updateOptions(opts)...), nil
}

// Apply merges the CSN of a fully decoded update into the server state and
// persists the result. It reports whether the state advanced; replaying an
// update already covered is a no-op.
func (d *Domain) Apply(ctx context.Context, u protocol.UpdateMsg) (bool, error) {
	if d.closed.Load() {
		return false, ErrDomainClosed
	}
	if err := d.checkTarget(u.DN()); err != nil {
		return false, err
	}

	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	c := u.CSN()
	if c.ReplicaID() != d.replicaID {
		d.gen.Adjust(c)
	}

	advanced, err := d.state.UpdateCommit(c, func(next serverstate.State) error {
		if d.store == nil {
			return nil
		}
		if err := d.store.Save(ctx, d.baseDN, next); err != nil {
			return fmt.Errorf("failed to persist server state: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	d.metrics.RecordStateUpdate(advanced, d.state.Snapshot().Len())
	if !advanced {
		d.logger.Debug("update already covered", logging.CSN(c), logging.MsgType(u.Type()))
	}
	return advanced, nil
}

// Reinitialize replaces the server state wholesale after a full
// re-initialization of the subtree's data
func (d *Domain) Reinitialize(ctx context.Context, state serverstate.State, generationID int64) error {
	if d.closed.Load() {
		return ErrDomainClosed
	}

	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	timer := logging.StartTimer(d.logger, "server state reinitialized",
		logging.Int64("generation_id", generationID),
		logging.Stringer("server_state", state))
	if d.store != nil {
		if err := d.store.Save(ctx, d.baseDN, state); err != nil {
			err = fmt.Errorf("failed to persist server state: %w", err)
			timer.EndError(err)
			return err
		}
		if err := d.store.SaveGenerationID(ctx, d.baseDN, generationID); err != nil {
			err = fmt.Errorf("failed to persist generation id: %w", err)
			timer.EndError(err)
			return err
		}
	}

	d.state.Replace(state)
	d.generationID.Store(generationID)
	for _, c := range state.CSNs() {
		d.gen.Adjust(c)
	}
	d.metrics.RecordStateReset(state.Len())
	timer.End()
	return nil
}

// StartInfo returns what the domain advertises to a peer
func (d *Domain) StartInfo() protocol.StartInfo {
	return protocol.StartInfo{
		ProtocolVersion:   d.cfg.Version(),
		BaseDN:            d.baseDN,
		ReplicaID:         d.replicaID,
		ServerURL:         d.cfg.ServerURL,
		WindowSize:        int32(d.cfg.WindowSize),
		HeartbeatInterval: d.cfg.HeartbeatInterval,
		GenerationID:      d.GenerationID(),
		SSLEncryption:     d.cfg.SSLEncryption,
		GroupID:           d.groupID,
		DegradedThreshold: int32(d.cfg.DegradedThreshold),
		ServerState:       d.ServerState(),
	}
}

// ServerStartMsg returns the message opening a session from this domain
func (d *Domain) ServerStartMsg() *protocol.ServerStartMsg {
	return protocol.NewServerStartMsg(d.StartInfo())
}

// StartSessionMsg returns the message starting the update flow with the
// given status and the configured assured defaults
func (d *Domain) StartSessionMsg(status protocol.ServerStatus) *protocol.StartSessionMsg {
	mode, err := protocol.ParseAssuredMode(d.cfg.Assured.Mode)
	if err != nil {
		mode = protocol.DefaultAssuredMode
	}
	return protocol.NewStartSessionMsg(protocol.SessionInfo{
		Status:        status,
		Assured:       d.cfg.Assured.Enabled,
		AssuredMode:   mode,
		SafeDataLevel: uint8(d.cfg.Assured.SafeDataLevel),
		ReferralURLs:  d.cfg.ReferralURLs,
	})
}

// SetTopology records the latest topology received from the replication
// servers
func (d *Domain) SetTopology(topo *protocol.TopologyMsg) {
	d.topology.Store(topo)
	d.logger.Debug("topology updated",
		logging.Int("directory_servers", len(topo.DSInfos())),
		logging.Int("replication_servers", len(topo.RSInfos())))
}

// Topology returns the latest topology, or nil before the first one
func (d *Domain) Topology() *protocol.TopologyMsg {
	return d.topology.Load()
}

// BeginAssured starts waiting for the acknowledgments a local assured update
// needs according to the current topology
func (d *Domain) BeginAssured(u protocol.UpdateMsg) (*assured.Wait, error) {
	if d.closed.Load() {
		return nil, ErrDomainClosed
	}
	return d.tracker.Begin(assured.Expect(u, d.replicaID, d.groupID, d.Topology()))
}

// AwaitAssured waits for w at most the configured assured timeout
func (d *Domain) AwaitAssured(ctx context.Context, w *assured.Wait) *protocol.AckMsg {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Assured.Timeout)
	defer cancel()
	return w.Await(ctx)
}

// Close times out outstanding assured waits and closes the store the domain
// opened itself. A store passed with WithStore is left open.
func (d *Domain) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.tracker.Close()
	d.logger.Info("replication domain closed", logging.Stringer("server_state", d.ServerState()))

	if d.ownsStore {
		if err := d.store.Close(); err != nil {
			return fmt.Errorf("failed to close state store: %w", err)
		}
	}
	return nil
}
