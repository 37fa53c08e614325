// Package csn implements change sequence numbers, the logical timestamps that
// identify and order every write in a replicated directory.
package csn

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// Size is the length of the binary encoding
	Size = 16

	// TextSize is the length of the hex text encoding
	TextSize = 24
)

// ErrInvalidCSN is returned when a binary or text CSN cannot be decoded
var ErrInvalidCSN = errors.New("invalid CSN")

// CSN is a change sequence number: wall-clock milliseconds, the replica that
// generated the change and a per-millisecond sequence counter.
// The zero value is the null CSN.
type CSN struct {
	timestamp int64
	replicaID uint16
	seq       uint16
}

// Null is the sentinel returned for replicas that were never seen
var Null = CSN{}

// New creates a CSN from its parts
func New(timestamp int64, replicaID, seq uint16) CSN {
	return CSN{timestamp: timestamp, replicaID: replicaID, seq: seq}
}

// Timestamp returns the wall-clock component in milliseconds
func (c CSN) Timestamp() int64 { return c.timestamp }

// ReplicaID returns the identifier of the replica that generated the CSN
func (c CSN) ReplicaID() uint16 { return c.replicaID }

// Seq returns the per-millisecond sequence counter
func (c CSN) Seq() uint16 { return c.seq }

// IsNull reports whether c is the null CSN
func (c CSN) IsNull() bool { return c == Null }

// Compare orders CSNs by timestamp, then sequence, then replica id.
// It returns -1, 0 or 1.
func Compare(a, b CSN) int {
	switch {
	case a.timestamp < b.timestamp:
		return -1
	case a.timestamp > b.timestamp:
		return 1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	case a.replicaID < b.replicaID:
		return -1
	case a.replicaID > b.replicaID:
		return 1
	}
	return 0
}

// Compare is the method form of the package-level Compare
func (c CSN) Compare(o CSN) int { return Compare(c, o) }

// Older reports whether c sorts strictly before o
func (c CSN) Older(o CSN) bool { return Compare(c, o) < 0 }

// Newer reports whether c sorts strictly after o
func (c CSN) Newer(o CSN) bool { return Compare(c, o) > 0 }

// Bytes returns the fixed-width binary encoding:
// timestamp(8) | replica id(2) | seq(2) | zero padding(4).
func (c CSN) Bytes() []byte {
	return c.AppendBinary(make([]byte, 0, Size))
}

// AppendBinary appends the binary encoding to b
func (c CSN) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(c.timestamp))
	b = binary.BigEndian.AppendUint16(b, c.replicaID)
	b = binary.BigEndian.AppendUint16(b, c.seq)
	return append(b, 0, 0, 0, 0)
}

// FromBytes decodes the binary encoding produced by Bytes
func FromBytes(b []byte) (CSN, error) {
	if len(b) != Size {
		return Null, fmt.Errorf("%w: binary length %d, want %d", ErrInvalidCSN, len(b), Size)
	}
	for _, p := range b[12:] {
		if p != 0 {
			return Null, fmt.Errorf("%w: non-zero padding", ErrInvalidCSN)
		}
	}
	return CSN{
		timestamp: int64(binary.BigEndian.Uint64(b[0:8])),
		replicaID: binary.BigEndian.Uint16(b[8:10]),
		seq:       binary.BigEndian.Uint16(b[10:12]),
	}, nil
}

// String returns the text encoding: 16 hex digits of timestamp, 4 of replica
// id and 4 of sequence.
func (c CSN) String() string {
	return fmt.Sprintf("%016x%04x%04x", uint64(c.timestamp), c.replicaID, c.seq)
}

// Parse decodes the text encoding produced by String
func Parse(s string) (CSN, error) {
	if len(s) != TextSize {
		return Null, fmt.Errorf("%w: text length %d, want %d", ErrInvalidCSN, len(s), TextSize)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Null, fmt.Errorf("%w: %v", ErrInvalidCSN, err)
	}
	return CSN{
		timestamp: int64(binary.BigEndian.Uint64(raw[0:8])),
		replicaID: binary.BigEndian.Uint16(raw[8:10]),
		seq:       binary.BigEndian.Uint16(raw[10:12]),
	}, nil
}

// MarshalText implements encoding.TextMarshaler
func (c CSN) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *CSN) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
