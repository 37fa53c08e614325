package protocol

import (
	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
)

// DeleteMsg records the removal of an entry, or of a whole subtree
type DeleteMsg struct {
	UpdateHeader
	subtreeDelete bool
}

// NewDeleteMsg creates a delete record
func NewDeleteMsg(c csn.CSN, target dn.DN, entryUUID uuid.UUID, opts ...UpdateOption) *DeleteMsg {
	return &DeleteMsg{UpdateHeader: newHeader(c, target, entryUUID, opts)}
}

func (*DeleteMsg) Type() MsgType { return TypeDelete }
func (*DeleteMsg) isMessage()    {}

// IsSubtreeDelete reports whether the whole subtree below the entry goes too
func (m *DeleteMsg) IsSubtreeDelete() bool { return m.subtreeDelete }

// With returns a copy of m with the options applied
func (m *DeleteMsg) With(opts ...UpdateOption) *DeleteMsg {
	c := *m
	c.apply(opts)
	return &c
}

// WithSubtreeDelete returns a copy of m with the subtree flag set
func (m *DeleteMsg) WithSubtreeDelete(subtree bool) *DeleteMsg {
	c := *m
	c.subtreeDelete = subtree
	return &c
}

// Bytes encodes the record for protocol version v
func (m *DeleteMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeDelete, v, 128)
	m.encode(w)
	if v.Has(FieldSubtreeDelete) {
		w.AppendBool(m.subtreeDelete)
	}
	m.encodeTrailer(w)
	return w.Bytes()
}

func decodeDelete(r reader) (Message, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	m := &DeleteMsg{UpdateHeader: h, subtreeDelete: defaultFor[bool](FieldSubtreeDelete)}
	if r.v.Has(FieldSubtreeDelete) {
		if m.subtreeDelete, err = r.NextBool(); err != nil {
			return nil, err
		}
	}
	if err := m.decodeTrailer(r); err != nil {
		return nil, err
	}
	return m, nil
}
