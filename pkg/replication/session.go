package replication

import (
	"context"
	"fmt"

	"github.com/dd0wney/replcore/pkg/codec"
	"github.com/dd0wney/replcore/pkg/logging"
	"github.com/dd0wney/replcore/pkg/protocol"
)

// Session is the replication conversation of a domain with one peer. Every
// message on it is encoded and decoded at the negotiated protocol version.
type Session struct {
	domain  *Domain
	peer    protocol.StartInfo
	peerRS  bool
	version protocol.Version
	logger  logging.Logger
}

// DecodeStart decodes a server start or replication server start message.
// The version byte that follows the tag selects the layout, capped at the
// newest version this implementation speaks.
func DecodeStart(b []byte) (protocol.Message, error) {
	if len(b) < 2 {
		return nil, codec.NewFormatError(0, "start message", fmt.Errorf("%w: %d bytes", ErrNotStartMessage, len(b)))
	}
	t := protocol.MsgType(b[0])
	if t != protocol.TypeServerStart && t != protocol.TypeReplServerStart {
		return nil, codec.NewFormatError(0, "start message", fmt.Errorf("%w: %s", ErrNotStartMessage, t))
	}
	v := protocol.NegotiateVersion(protocol.VersionLast, protocol.Version(b[1]))
	return protocol.Decode(b, v)
}

// OpenSession opens a session with the peer that sent start. The session
// speaks the lower of both protocol versions.
func (d *Domain) OpenSession(start protocol.Message) (*Session, error) {
	if d.closed.Load() {
		return nil, ErrDomainClosed
	}

	var (
		info   protocol.StartInfo
		peerRS bool
	)
	switch m := start.(type) {
	case *protocol.ServerStartMsg:
		info = m.Info()
	case *protocol.ReplServerStartMsg:
		info, peerRS = m.Info(), true
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotStartMessage, start.Type())
	}

	if !d.baseDN.Equal(info.BaseDN) {
		return nil, fmt.Errorf("%w: peer %d replicates %s", ErrBaseDNMismatch, info.ReplicaID, info.BaseDN)
	}
	if info.ReplicaID == d.replicaID {
		return nil, fmt.Errorf("%w: %d", ErrSelfSession, info.ReplicaID)
	}

	v := protocol.NegotiateVersion(d.cfg.Version(), info.ProtocolVersion)
	s := &Session{
		domain:  d,
		peer:    info,
		peerRS:  peerRS,
		version: v,
		logger: d.logger.With(
			logging.PeerID(info.ReplicaID),
			logging.Version(v)),
	}

	if info.GenerationID != d.GenerationID() {
		s.logger.Warn("peer has a different generation id",
			logging.Int64("peer_generation_id", info.GenerationID),
			logging.Int64("generation_id", d.GenerationID()))
	}
	s.logger.Info("replication session opened",
		logging.String("peer_url", info.ServerURL),
		logging.Bool("replication_server", peerRS),
		logging.Stringer("peer_server_state", info.ServerState))
	return s, nil
}

// Version returns the negotiated protocol version
func (s *Session) Version() protocol.Version { return s.version }

// Peer returns what the peer advertised in its start message
func (s *Session) Peer() protocol.StartInfo { return s.peer }

// PeerID returns the peer's replica id
func (s *Session) PeerID() uint16 { return s.peer.ReplicaID }

// PeerIsReplicationServer reports whether the peer is a replication server
func (s *Session) PeerIsReplicationServer() bool { return s.peerRS }

// GenerationMatches reports whether the peer's data shares the domain's
// lineage
func (s *Session) GenerationMatches() bool {
	return s.peer.GenerationID == s.domain.GenerationID()
}

// PeerIsBehind reports whether the peer's advertised state misses changes
// the domain has seen
func (s *Session) PeerIsBehind() bool {
	return !s.peer.ServerState.Covers(s.domain.ServerState())
}

// Encode returns the bytes of m at the session's version
func (s *Session) Encode(m protocol.Message) []byte {
	b := protocol.Encode(m, s.version)
	s.domain.metrics.RecordEncode(m.Type().String(), s.version.String(), len(b))
	return b
}

// Decode decodes one message received on the session
func (s *Session) Decode(b []byte) (protocol.Message, error) {
	m, err := protocol.Decode(b, s.version)
	if err != nil {
		s.domain.metrics.RecordDecodeError(s.version.String())
		s.logger.Warn("rejected message", logging.Int("size", len(b)), logging.Error(err))
		return nil, err
	}
	s.domain.metrics.RecordDecode(m.Type().String(), s.version.String(), len(b))
	return m, nil
}

// Handle decodes a message and routes it: updates are applied to the
// domain, acknowledgments go to the assured tracker and topologies replace
// the domain's view. A replication server peer aggregates the acks of the
// replicas behind it, so its acknowledgment completes the wait. It returns the decoded message and, for an assured
// update, the acknowledgment to send back. A message that fails to decode
// changes nothing.
func (s *Session) Handle(ctx context.Context, b []byte) (protocol.Message, *protocol.AckMsg, error) {
	m, err := s.Decode(b)
	if err != nil {
		return nil, nil, err
	}

	switch msg := m.(type) {
	case protocol.UpdateMsg:
		return m, s.applyUpdate(ctx, msg), nil
	case *protocol.AckMsg:
		if s.peerRS {
			s.domain.tracker.HandleRelayedAck(s.PeerID(), msg)
		} else {
			s.domain.tracker.HandleAck(s.PeerID(), msg)
		}
	case *protocol.TopologyMsg:
		s.domain.SetTopology(msg)
	case *protocol.ChangeStatusMsg:
		s.logger.Info("peer status change",
			logging.Stringer("requested", msg.RequestedStatus()),
			logging.Stringer("status", msg.NewStatus()))
	case *protocol.ErrorMsg:
		s.logger.Warn("peer reported an error",
			logging.Int("sender", int(msg.SenderID())),
			logging.String("details", msg.Details()))
	}
	return m, nil, nil
}

func (s *Session) applyUpdate(ctx context.Context, u protocol.UpdateMsg) *protocol.AckMsg {
	_, err := s.domain.Apply(ctx, u)
	if err != nil {
		s.logger.Error("failed to apply update",
			logging.CSN(u.CSN()),
			logging.MsgType(u.Type()),
			logging.Error(err))
	}
	if !u.IsAssured() {
		return nil
	}

	ack := protocol.NewAckMsg(u.CSN())
	if err != nil {
		ack = ack.WithReplayError(true).WithFailedServers(s.domain.replicaID)
	}
	return ack
}
