// Package protocol defines the replication messages exchanged between
// directory replicas and their versioned binary encoding.
package protocol

import (
	"errors"
	"fmt"
)

// MsgType is the one-byte tag that starts every message
type MsgType uint8

const (
	TypeModify          MsgType = 1
	TypeAdd             MsgType = 2
	TypeDelete          MsgType = 3
	TypeModDN           MsgType = 4
	TypeAck             MsgType = 5
	TypeServerStart     MsgType = 6
	TypeReplServerStart MsgType = 7
	TypeWindow          MsgType = 8
	TypeError           MsgType = 14
	TypeTopology        MsgType = 26
	TypeStartSession    MsgType = 27
	TypeChangeStatus    MsgType = 28
)

var typeNames = map[MsgType]string{
	TypeModify:          "modify",
	TypeAdd:             "add",
	TypeDelete:          "delete",
	TypeModDN:           "moddn",
	TypeAck:             "ack",
	TypeServerStart:     "server_start",
	TypeReplServerStart: "repl_server_start",
	TypeWindow:          "window",
	TypeError:           "error",
	TypeTopology:        "topology",
	TypeStartSession:    "start_session",
	TypeChangeStatus:    "change_status",
}

// String returns the message type name
func (t MsgType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// IsUpdate reports whether t tags a change record
func (t MsgType) IsUpdate() bool {
	switch t {
	case TypeModify, TypeAdd, TypeDelete, TypeModDN:
		return true
	}
	return false
}

// AssuredMode selects which replicas must acknowledge an assured update
type AssuredMode uint8

const (
	// AssuredModeSafeRead waits for every directory server of the group
	AssuredModeSafeRead AssuredMode = 1
	// AssuredModeSafeData waits for safe-data-level - 1 replication servers
	AssuredModeSafeData AssuredMode = 2
)

// Valid reports whether m is a known mode
func (m AssuredMode) Valid() bool {
	return m == AssuredModeSafeRead || m == AssuredModeSafeData
}

// String returns the mode name
func (m AssuredMode) String() string {
	switch m {
	case AssuredModeSafeRead:
		return "safe-read"
	case AssuredModeSafeData:
		return "safe-data"
	}
	return fmt.Sprintf("assured-mode(%d)", uint8(m))
}

// ParseAssuredMode converts "safe-read" or "safe-data" to a mode
func ParseAssuredMode(s string) (AssuredMode, error) {
	switch s {
	case "safe-read", "safe_read":
		return AssuredModeSafeRead, nil
	case "safe-data", "safe_data":
		return AssuredModeSafeData, nil
	}
	return 0, fmt.Errorf("unknown assured mode %q", s)
}

// ServerStatus is the replication status of a directory server
type ServerStatus uint8

const (
	StatusInvalid      ServerStatus = 0
	StatusNormal       ServerStatus = 1
	StatusDegraded     ServerStatus = 2
	StatusFullUpdate   ServerStatus = 3
	StatusBadGenID     ServerStatus = 4
	maxKnownStatusByte              = StatusBadGenID
)

// Valid reports whether s is a known status
func (s ServerStatus) Valid() bool {
	return s <= maxKnownStatusByte
}

// String returns the status name
func (s ServerStatus) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusNormal:
		return "normal"
	case StatusDegraded:
		return "degraded"
	case StatusFullUpdate:
		return "full-update"
	case StatusBadGenID:
		return "bad-generation-id"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Message is implemented by every replication message. The set of
// implementations is closed; Decode dispatches on the type tag.
type Message interface {
	// Type returns the wire type tag
	Type() MsgType
	// Bytes encodes the message for protocol version v. It panics when v is
	// unknown or predates the message type.
	Bytes(v Version) []byte

	isMessage()
}

// Decoding errors. All of them are reported wrapped in a codec.FormatError.
var (
	ErrUnknownType        = errors.New("unknown message type")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrVersionMismatch    = errors.New("embedded version does not match the session version")
	ErrInvalidAssuredMode = errors.New("invalid assured mode")
	ErrInvalidSafeLevel   = errors.New("invalid safe data level")
	ErrInvalidStatus      = errors.New("invalid server status")
	ErrInvalidEntryUUID   = errors.New("invalid entry UUID")
	ErrInvalidReplicaID   = errors.New("replica id out of range")
	ErrInvalidCount       = errors.New("invalid element count")
	ErrEmptyMessage       = errors.New("empty message")
)
