package protocol

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
)

// UpdateMsg is a change record: Add, Delete, Modify or ModDN
type UpdateMsg interface {
	Message

	CSN() csn.CSN
	DN() dn.DN
	EntryUUID() uuid.UUID
	IsAssured() bool
	AssuredMode() AssuredMode
	SafeDataLevel() uint8
	ChangeNumber() int64
	ECLAttributes() [][]byte
}

// UpdateHeader holds the fields shared by every change record. CSN and entry
// UUID are fixed at construction; the rest can be changed through options
// that produce a new record.
type UpdateHeader struct {
	csn           csn.CSN
	dn            dn.DN
	entryUUID     uuid.UUID
	assured       bool
	assuredMode   AssuredMode
	safeDataLevel uint8
	changeNumber  int64
	eclAttributes [][]byte
}

// UpdateOption changes a mutable header field
type UpdateOption func(*UpdateHeader)

// WithAssured marks the update assured with the given mode and safe data
// level. It panics on an unknown mode or a zero level.
func WithAssured(mode AssuredMode, level uint8) UpdateOption {
	if !mode.Valid() {
		panic(fmt.Sprintf("protocol: invalid assured mode %d", uint8(mode)))
	}
	if level == 0 {
		panic("protocol: safe data level must be at least 1")
	}
	return func(h *UpdateHeader) {
		h.assured = true
		h.assuredMode = mode
		h.safeDataLevel = level
	}
}

// WithoutAssured clears the assured flag, keeping mode and level
func WithoutAssured() UpdateOption {
	return func(h *UpdateHeader) {
		h.assured = false
	}
}

// WithChangeNumber sets the external change log number
func WithChangeNumber(n int64) UpdateOption {
	return func(h *UpdateHeader) {
		h.changeNumber = n
	}
}

// WithECLAttributes attaches opaque attribute snapshots for the external
// change log
func WithECLAttributes(blocks ...[]byte) UpdateOption {
	cloned := cloneBlocks(blocks)
	return func(h *UpdateHeader) {
		h.eclAttributes = cloned
	}
}

// WithTargetDN changes the target DN
func WithTargetDN(target dn.DN) UpdateOption {
	return func(h *UpdateHeader) {
		h.dn = target
	}
}

func newHeader(c csn.CSN, target dn.DN, entryUUID uuid.UUID, opts []UpdateOption) UpdateHeader {
	h := UpdateHeader{
		csn:           c,
		dn:            target,
		entryUUID:     entryUUID,
		assuredMode:   DefaultAssuredMode,
		safeDataLevel: DefaultSafeDataLevel,
		changeNumber:  NoChangeNumber,
	}
	h.apply(opts)
	return h
}

func (h *UpdateHeader) apply(opts []UpdateOption) {
	for _, opt := range opts {
		opt(h)
	}
}

// CSN returns the change sequence number of the update
func (h *UpdateHeader) CSN() csn.CSN { return h.csn }

// DN returns the target entry DN
func (h *UpdateHeader) DN() dn.DN { return h.dn }

// EntryUUID returns the target entry's unique id, stable across renames
func (h *UpdateHeader) EntryUUID() uuid.UUID { return h.entryUUID }

// IsAssured reports whether the originator waits for acknowledgments
func (h *UpdateHeader) IsAssured() bool { return h.assured }

func (h *UpdateHeader) AssuredMode() AssuredMode { return h.assuredMode }

func (h *UpdateHeader) SafeDataLevel() uint8 { return h.safeDataLevel }

// ChangeNumber returns the external change log number or NoChangeNumber
func (h *UpdateHeader) ChangeNumber() int64 { return h.changeNumber }

// ECLAttributes returns the attached external change log snapshots
func (h *UpdateHeader) ECLAttributes() [][]byte { return h.eclAttributes }

func (h *UpdateHeader) encode(w writer) {
	if w.v.Has(FieldVersionByte) {
		w.AppendByte(byte(w.v))
	}
	w.csn(h.csn)
	w.AppendBool(h.assured)
	if w.v.Has(FieldAssuredMode) {
		w.AppendByte(byte(h.assuredMode))
		w.AppendByte(h.safeDataLevel)
	}
	w.AppendDN(h.dn)
	w.AppendString(h.entryUUID.String())
}

func (h *UpdateHeader) encodeTrailer(w writer) {
	if w.v.Has(FieldChangeNumber) {
		w.AppendLong(h.changeNumber)
	}
	if w.v.Has(FieldECLAttributes) {
		w.blocks(h.eclAttributes)
	}
}

func decodeHeader(r reader) (UpdateHeader, error) {
	h := UpdateHeader{
		assuredMode:   defaultFor[AssuredMode](FieldAssuredMode),
		safeDataLevel: defaultFor[uint8](FieldSafeDataLevel),
		changeNumber:  defaultFor[int64](FieldChangeNumber),
		eclAttributes: defaultFor[[][]byte](FieldECLAttributes),
	}

	if r.v.Has(FieldVersionByte) {
		start := r.Offset()
		b, err := r.NextByte()
		if err != nil {
			return h, err
		}
		if Version(b) != r.v {
			return h, r.fail(start, "update version", fmt.Errorf("%w: got %s, session %s", ErrVersionMismatch, Version(b), r.v))
		}
	}

	var err error
	if h.csn, err = r.csn(); err != nil {
		return h, err
	}
	if h.assured, err = r.NextBool(); err != nil {
		return h, err
	}
	if r.v.Has(FieldAssuredMode) {
		if h.assuredMode, err = r.assuredMode(); err != nil {
			return h, err
		}
		if h.safeDataLevel, err = r.safeDataLevel(); err != nil {
			return h, err
		}
	}
	if h.dn, err = r.NextDN(); err != nil {
		return h, err
	}
	if h.entryUUID, err = r.uuid("entry UUID"); err != nil {
		return h, err
	}
	return h, nil
}

func (h *UpdateHeader) decodeTrailer(r reader) error {
	var err error
	if r.v.Has(FieldChangeNumber) {
		if h.changeNumber, err = r.NextLong(); err != nil {
			return err
		}
	}
	if r.v.Has(FieldECLAttributes) {
		if h.eclAttributes, err = r.blocks("ECL attributes"); err != nil {
			return err
		}
	}
	return nil
}

func cloneBlocks(blocks [][]byte) [][]byte {
	if len(blocks) == 0 {
		return nil
	}
	out := make([][]byte, len(blocks))
	for i, b := range blocks {
		out[i] = slices.Clone(b)
		if out[i] == nil {
			out[i] = []byte{}
		}
	}
	return out
}

func cloneStrings(list []string) []string {
	return normalize(slices.Clone(list))
}
