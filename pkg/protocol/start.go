package protocol

import (
	"fmt"
	"time"

	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/serverstate"
)

// StartInfo is what a server advertises when it opens a replication
// session for a base DN
type StartInfo struct {
	// ProtocolVersion is the newest version the sender speaks. On the wire
	// it never exceeds the version the message is encoded at.
	ProtocolVersion Version
	BaseDN          dn.DN
	ReplicaID       uint16
	ServerURL       string
	WindowSize      int32
	// HeartbeatInterval is only carried by directory servers
	HeartbeatInterval time.Duration
	GenerationID      int64
	SSLEncryption     bool
	GroupID           uint8
	DegradedThreshold int32
	ServerState       serverstate.State
}

// ServerStartMsg opens a session from a directory server
type ServerStartMsg struct {
	info StartInfo
}

// NewServerStartMsg creates a directory server start message
func NewServerStartMsg(info StartInfo) *ServerStartMsg {
	return &ServerStartMsg{info: info}
}

func (*ServerStartMsg) Type() MsgType { return TypeServerStart }
func (*ServerStartMsg) isMessage()    {}

// Info returns the advertised session parameters
func (m *ServerStartMsg) Info() StartInfo { return m.info }

// Bytes encodes the message for protocol version v
func (m *ServerStartMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeServerStart, v, 128+m.info.ServerState.EncodedLen())
	return encodeStart(w, m.info, true)
}

// ReplServerStartMsg opens a session from a replication server
type ReplServerStartMsg struct {
	info StartInfo
}

// NewReplServerStartMsg creates a replication server start message. The
// heartbeat interval is not carried.
func NewReplServerStartMsg(info StartInfo) *ReplServerStartMsg {
	info.HeartbeatInterval = 0
	return &ReplServerStartMsg{info: info}
}

func (*ReplServerStartMsg) Type() MsgType { return TypeReplServerStart }
func (*ReplServerStartMsg) isMessage()    {}

// Info returns the advertised session parameters
func (m *ReplServerStartMsg) Info() StartInfo { return m.info }

// Bytes encodes the message for protocol version v
func (m *ReplServerStartMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeReplServerStart, v, 128+m.info.ServerState.EncodedLen())
	return encodeStart(w, m.info, false)
}

func encodeStart(w writer, info StartInfo, heartbeat bool) []byte {
	w.AppendByte(byte(NegotiateVersion(info.ProtocolVersion, w.v)))
	w.AppendDN(info.BaseDN)
	w.int32(int32(info.ReplicaID))
	w.AppendString(info.ServerURL)
	w.int32(info.WindowSize)
	if heartbeat {
		w.int64(info.HeartbeatInterval.Milliseconds())
	}
	w.int64(info.GenerationID)
	w.AppendBool(info.SSLEncryption)
	if w.v.Has(FieldGroupID) {
		w.AppendByte(info.GroupID)
	}
	if w.v.Has(FieldDegradedThreshold) {
		w.int32(info.DegradedThreshold)
	}
	return w.AppendServerStateMustComeLast(info.ServerState)
}

func decodeStart(r reader, heartbeat bool) (StartInfo, error) {
	info := StartInfo{
		GroupID:           defaultFor[uint8](FieldGroupID),
		DegradedThreshold: defaultFor[int32](FieldDegradedThreshold),
	}

	start := r.Offset()
	pv, err := r.NextByte()
	if err != nil {
		return info, err
	}
	if pv == 0 {
		return info, r.fail(start, "protocol version", fmt.Errorf("%w: 0", ErrUnsupportedVersion))
	}
	info.ProtocolVersion = Version(pv)

	if info.BaseDN, err = r.NextDN(); err != nil {
		return info, err
	}
	if info.ReplicaID, err = r.replicaID(); err != nil {
		return info, err
	}
	if info.ServerURL, err = r.NextString(); err != nil {
		return info, err
	}
	if info.WindowSize, err = r.int32(); err != nil {
		return info, err
	}
	if heartbeat {
		ms, err := r.int64()
		if err != nil {
			return info, err
		}
		info.HeartbeatInterval = time.Duration(ms) * time.Millisecond
	}
	if info.GenerationID, err = r.int64(); err != nil {
		return info, err
	}
	if info.SSLEncryption, err = r.NextBool(); err != nil {
		return info, err
	}
	if r.v.Has(FieldGroupID) {
		if info.GroupID, err = r.NextByte(); err != nil {
			return info, err
		}
	}
	if r.v.Has(FieldDegradedThreshold) {
		if info.DegradedThreshold, err = r.int32(); err != nil {
			return info, err
		}
	}
	if info.ServerState, err = r.NextServerState(); err != nil {
		return info, err
	}
	return info, nil
}

func decodeServerStart(r reader) (Message, error) {
	info, err := decodeStart(r, true)
	if err != nil {
		return nil, err
	}
	return &ServerStartMsg{info: info}, nil
}

func decodeReplServerStart(r reader) (Message, error) {
	info, err := decodeStart(r, false)
	if err != nil {
		return nil, err
	}
	return &ReplServerStartMsg{info: info}, nil
}
