package protocol

import (
	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
)

// ModifyMsg records an ordered list of attribute modifications. Each
// modification is an opaque encoded block.
type ModifyMsg struct {
	UpdateHeader
	mods [][]byte
}

// NewModifyMsg creates a modify record
func NewModifyMsg(c csn.CSN, target dn.DN, entryUUID uuid.UUID, mods [][]byte, opts ...UpdateOption) *ModifyMsg {
	return &ModifyMsg{
		UpdateHeader: newHeader(c, target, entryUUID, opts),
		mods:         cloneBlocks(mods),
	}
}

func (*ModifyMsg) Type() MsgType { return TypeModify }
func (*ModifyMsg) isMessage()    {}

func (m *ModifyMsg) Mods() [][]byte { return m.mods }

// With returns a copy of m with the options applied
func (m *ModifyMsg) With(opts ...UpdateOption) *ModifyMsg {
	c := *m
	c.apply(opts)
	return &c
}

// Bytes encodes the record for protocol version v
func (m *ModifyMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeModify, v, 128)
	m.encode(w)
	w.blocks(m.mods)
	m.encodeTrailer(w)
	return w.Bytes()
}

func decodeModify(r reader) (Message, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	m := &ModifyMsg{UpdateHeader: h}
	if m.mods, err = r.blocks("modifications"); err != nil {
		return nil, err
	}
	if err := m.decodeTrailer(r); err != nil {
		return nil, err
	}
	return m, nil
}
