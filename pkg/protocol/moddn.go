package protocol

import (
	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
)

// ModDNMsg records a rename or move of an entry. The new RDN and new
// superior are kept as received so that malformed values survive a round
// trip; the rename predicates treat them as never matching.
type ModDNMsg struct {
	UpdateHeader
	newRDN          string
	newSuperior     *string
	newSuperiorUUID uuid.NullUUID
	deleteOldRDN    bool
	mods            [][]byte
}

// Rename is the payload of a ModDN record
type Rename struct {
	NewRDN string
	// NewSuperior is nil when the entry keeps its parent
	NewSuperior     *string
	NewSuperiorUUID uuid.NullUUID
	DeleteOldRDN    bool
	Mods            [][]byte
}

// NewModDNMsg creates a rename record
func NewModDNMsg(c csn.CSN, target dn.DN, entryUUID uuid.UUID, rename Rename, opts ...UpdateOption) *ModDNMsg {
	m := &ModDNMsg{
		UpdateHeader:    newHeader(c, target, entryUUID, opts),
		newRDN:          rename.NewRDN,
		newSuperiorUUID: rename.NewSuperiorUUID,
		deleteOldRDN:    rename.DeleteOldRDN,
		mods:            cloneBlocks(rename.Mods),
	}
	if rename.NewSuperior != nil {
		sup := *rename.NewSuperior
		m.newSuperior = &sup
	}
	return m
}

func (*ModDNMsg) Type() MsgType { return TypeModDN }
func (*ModDNMsg) isMessage()    {}

func (m *ModDNMsg) NewRDN() string { return m.newRDN }

// NewSuperior returns the new parent DN text, or nil when the parent is kept
func (m *ModDNMsg) NewSuperior() *string { return m.newSuperior }

func (m *ModDNMsg) NewSuperiorUUID() uuid.NullUUID { return m.newSuperiorUUID }

func (m *ModDNMsg) DeleteOldRDN() bool { return m.deleteOldRDN }

// Mods returns the modifications bundled with the rename
func (m *ModDNMsg) Mods() [][]byte { return m.mods }

// With returns a copy of m with the options applied
func (m *ModDNMsg) With(opts ...UpdateOption) *ModDNMsg {
	c := *m
	c.apply(opts)
	return &c
}

// NewDN computes the DN the entry has after the rename: the new RDN below
// the new superior, or below the current parent when no superior is given.
func (m *ModDNMsg) NewDN() (dn.DN, error) {
	parent := dn.Root
	if m.newSuperior != nil {
		sup, err := dn.Parse(*m.newSuperior)
		if err != nil {
			return dn.DN{}, err
		}
		parent = sup
	} else if p, ok := m.dn.Parent(); ok {
		parent = p
	}
	return parent.Child(m.newRDN)
}

// NewDNIsParent reports whether the renamed entry is the immediate parent of
// candidate. Malformed rename fields make it false.
func (m *ModDNMsg) NewDNIsParent(candidate dn.DN) bool {
	newDN, err := m.NewDN()
	if err != nil {
		return false
	}
	return newDN.IsParentOf(candidate)
}

// NewDNIsEqual reports whether the renamed entry's DN is candidate.
// Malformed rename fields make it false.
func (m *ModDNMsg) NewDNIsEqual(candidate dn.DN) bool {
	newDN, err := m.NewDN()
	if err != nil {
		return false
	}
	return newDN.Equal(candidate)
}

// NewParentIsEqual reports whether the renamed entry's parent is candidate.
// Malformed rename fields make it false.
func (m *ModDNMsg) NewParentIsEqual(candidate dn.DN) bool {
	newDN, err := m.NewDN()
	if err != nil {
		return false
	}
	parent, _ := newDN.Parent()
	return parent.Equal(candidate)
}

// Bytes encodes the record for protocol version v
func (m *ModDNMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeModDN, v, 192)
	m.encode(w)
	w.AppendString(m.newRDN)
	w.AppendNullableString(m.newSuperior)
	w.nullableUUID(m.newSuperiorUUID)
	w.AppendBool(m.deleteOldRDN)
	if v.Has(FieldRenameMods) {
		w.blocks(m.mods)
	}
	m.encodeTrailer(w)
	return w.Bytes()
}

func decodeModDN(r reader) (Message, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	m := &ModDNMsg{UpdateHeader: h, mods: defaultFor[[][]byte](FieldRenameMods)}
	if m.newRDN, err = r.NextString(); err != nil {
		return nil, err
	}
	if m.newSuperior, err = r.NextNullableString(); err != nil {
		return nil, err
	}
	if m.newSuperiorUUID, err = r.nullableUUID("new superior UUID"); err != nil {
		return nil, err
	}
	if m.deleteOldRDN, err = r.NextBool(); err != nil {
		return nil, err
	}
	if r.v.Has(FieldRenameMods) {
		if m.mods, err = r.blocks("rename modifications"); err != nil {
			return nil, err
		}
	}
	if err := m.decodeTrailer(r); err != nil {
		return nil, err
	}
	return m, nil
}
