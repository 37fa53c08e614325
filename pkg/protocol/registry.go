package protocol

import (
	"fmt"

	"github.com/dd0wney/replcore/pkg/codec"
)

type decodeFunc func(r reader) (Message, error)

// kind describes one message type: the first version that carries it and
// its version-aware decoder.
type kind struct {
	since  Version
	decode decodeFunc
}

var kinds = map[MsgType]kind{
	TypeModify:          {V1, decodeModify},
	TypeAdd:             {V1, decodeAdd},
	TypeDelete:          {V1, decodeDelete},
	TypeModDN:           {V1, decodeModDN},
	TypeAck:             {V1, decodeAck},
	TypeServerStart:     {V1, decodeServerStart},
	TypeReplServerStart: {V1, decodeReplServerStart},
	TypeWindow:          {V1, decodeWindow},
	TypeError:           {V1, decodeError},
	TypeTopology:        {V2, decodeTopology},
	TypeStartSession:    {V2, decodeStartSession},
	TypeChangeStatus:    {V2, decodeChangeStatus},
}

// Since returns the first protocol version that carries messages of type t
func (t MsgType) Since() (Version, bool) {
	k, ok := kinds[t]
	return k.since, ok
}

// Encode returns the bytes of m for protocol version v
func Encode(m Message, v Version) []byte {
	return m.Bytes(v)
}

// Decode reads the type tag of b and decodes the message it introduces as
// written by protocol version v. Every failure is a *codec.FormatError.
func Decode(b []byte, v Version) (Message, error) {
	if len(b) == 0 {
		return nil, codec.NewFormatError(0, "message type", ErrEmptyMessage)
	}
	if !v.Valid() {
		return nil, codec.NewFormatError(0, "protocol version", fmt.Errorf("%w: %s", ErrUnsupportedVersion, v))
	}

	t := MsgType(b[0])
	k, ok := kinds[t]
	if !ok {
		return nil, codec.NewFormatError(0, "message type", fmt.Errorf("%w: %d", ErrUnknownType, b[0]))
	}
	if v < k.since {
		return nil, codec.NewFormatError(0, t.String(), fmt.Errorf("%w: %s needs %s", ErrUnsupportedVersion, v, k.since))
	}

	r := reader{Scanner: codec.NewScanner(b), v: v}
	// skip the tag
	_, _ = r.NextByte()

	m, err := k.decode(r)
	if err != nil {
		return nil, truncated(r.Scanner, err, t.String())
	}
	if err := r.ExpectEnd(); err != nil {
		return nil, err
	}
	return m, nil
}

// beginEncode checks the encoding contract for a message of type t at
// version v and starts the writer.
func beginEncode(t MsgType, v Version, capacity int) writer {
	if !v.Valid() {
		panic(fmt.Sprintf("protocol: cannot encode %s for unknown version %d", t, uint8(v)))
	}
	if since := kinds[t].since; v < since {
		panic(fmt.Sprintf("protocol: %s does not exist before %s, requested %s", t, since, v))
	}
	return newWriter(t, v, capacity)
}
