package protocol

import (
	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
)

// AddMsg records the creation of an entry
type AddMsg struct {
	UpdateHeader
	parentUUID       uuid.NullUUID
	objectClasses    []string
	userAttrs        [][]byte
	operationalAttrs [][]byte
}

// AddContent is the payload of an add: the new entry's parent, object
// classes and encoded attribute snapshots
type AddContent struct {
	ParentUUID       uuid.NullUUID
	ObjectClasses    []string
	UserAttrs        [][]byte
	OperationalAttrs [][]byte
}

// NewAddMsg creates an add record
func NewAddMsg(c csn.CSN, target dn.DN, entryUUID uuid.UUID, content AddContent, opts ...UpdateOption) *AddMsg {
	return &AddMsg{
		UpdateHeader:     newHeader(c, target, entryUUID, opts),
		parentUUID:       content.ParentUUID,
		objectClasses:    cloneStrings(content.ObjectClasses),
		userAttrs:        cloneBlocks(content.UserAttrs),
		operationalAttrs: cloneBlocks(content.OperationalAttrs),
	}
}

func (*AddMsg) Type() MsgType { return TypeAdd }
func (*AddMsg) isMessage()    {}

// ParentUUID returns the unique id of the new entry's parent, if known
func (m *AddMsg) ParentUUID() uuid.NullUUID { return m.parentUUID }

func (m *AddMsg) ObjectClasses() []string { return m.objectClasses }

func (m *AddMsg) UserAttrs() [][]byte { return m.userAttrs }

func (m *AddMsg) OperationalAttrs() [][]byte { return m.operationalAttrs }

// With returns a copy of m with the options applied
func (m *AddMsg) With(opts ...UpdateOption) *AddMsg {
	c := *m
	c.apply(opts)
	return &c
}

// Bytes encodes the record for protocol version v
func (m *AddMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeAdd, v, 256)
	m.encode(w)
	w.nullableUUID(m.parentUUID)
	w.AppendStrings(m.objectClasses)
	w.blocks(m.userAttrs)
	w.blocks(m.operationalAttrs)
	m.encodeTrailer(w)
	return w.Bytes()
}

func decodeAdd(r reader) (Message, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	m := &AddMsg{UpdateHeader: h}
	if m.parentUUID, err = r.nullableUUID("parent UUID"); err != nil {
		return nil, err
	}
	if m.objectClasses, err = r.strings(); err != nil {
		return nil, err
	}
	if m.userAttrs, err = r.blocks("user attributes"); err != nil {
		return nil, err
	}
	if m.operationalAttrs, err = r.blocks("operational attributes"); err != nil {
		return nil, err
	}
	if err := m.decodeTrailer(r); err != nil {
		return nil, err
	}
	return m, nil
}
