package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dd0wney/replcore/pkg/codec"
	"github.com/dd0wney/replcore/pkg/csn"
)

// writer appends primitives whose encoding depends on the protocol version
type writer struct {
	*codec.Builder
	v Version
}

func newWriter(t MsgType, v Version, capacity int) writer {
	w := writer{Builder: codec.NewBuilder(capacity), v: v}
	w.AppendByte(byte(t))
	return w
}

func (w writer) csn(c csn.CSN) {
	if w.v.Has(FieldBinaryCSN) {
		w.AppendCSN(c)
	} else {
		w.AppendCSNUTF8(c)
	}
}

func (w writer) int32(n int32) {
	if w.v.Has(FieldBinaryInts) {
		w.AppendInt(n)
	} else {
		w.AppendIntUTF8(n)
	}
}

func (w writer) int64(n int64) {
	if w.v.Has(FieldBinaryInts) {
		w.AppendLong(n)
	} else {
		w.AppendLongUTF8(n)
	}
}

func (w writer) blocks(list [][]byte) {
	w.int32(int32(len(list)))
	for _, b := range list {
		w.AppendByteArray(b)
	}
}

func (w writer) nullableUUID(id uuid.NullUUID) {
	if !id.Valid {
		w.AppendNullableString(nil)
		return
	}
	w.AppendString(id.UUID.String())
}

// reader consumes primitives whose encoding depends on the protocol version
type reader struct {
	*codec.Scanner
	v Version
}

func (r reader) fail(offset int, what string, err error) error {
	return codec.NewFormatError(offset, what, err)
}

func (r reader) csn() (csn.CSN, error) {
	if r.v.Has(FieldBinaryCSN) {
		return r.NextCSN()
	}
	return r.NextCSNUTF8()
}

func (r reader) int32() (int32, error) {
	if r.v.Has(FieldBinaryInts) {
		return r.NextInt()
	}
	return r.NextIntUTF8()
}

func (r reader) int64() (int64, error) {
	if r.v.Has(FieldBinaryInts) {
		return r.NextLong()
	}
	return r.NextLongUTF8()
}

// count reads an element count and checks that the remaining input could
// hold that many elements of at least minSize bytes each.
func (r reader) count(what string, minSize int) (int, error) {
	start := r.Offset()
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, r.fail(start, what, ErrInvalidCount)
	}
	if minSize > 0 && int(n) > r.Remaining()/minSize {
		return 0, r.fail(start, what, codec.ErrTruncated)
	}
	return int(n), nil
}

func (r reader) blocks(what string) ([][]byte, error) {
	n, err := r.count(what, 4)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, n)
	for range n {
		b, err := r.NextByteArray()
		if err != nil {
			return nil, truncated(r.Scanner, err, what)
		}
		out = append(out, b)
	}
	return out, nil
}

func (r reader) strings() ([]string, error) {
	list, err := r.NextStrings()
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list, nil
}

func (r reader) uuid(what string) (uuid.UUID, error) {
	start := r.Offset()
	text, err := r.NextString()
	if err != nil {
		return uuid.Nil, err
	}
	id, perr := uuid.Parse(text)
	if perr != nil {
		return uuid.Nil, r.fail(start, what, fmt.Errorf("%w: %w", ErrInvalidEntryUUID, perr))
	}
	return id, nil
}

func (r reader) nullableUUID(what string) (uuid.NullUUID, error) {
	start := r.Offset()
	text, err := r.NextNullableString()
	if err != nil || text == nil {
		return uuid.NullUUID{}, err
	}
	id, perr := uuid.Parse(*text)
	if perr != nil {
		return uuid.NullUUID{}, r.fail(start, what, fmt.Errorf("%w: %w", ErrInvalidEntryUUID, perr))
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

func (r reader) assuredMode() (AssuredMode, error) {
	start := r.Offset()
	b, err := r.NextByte()
	if err != nil {
		return 0, err
	}
	m := AssuredMode(b)
	if !m.Valid() {
		return 0, r.fail(start, "assured mode", ErrInvalidAssuredMode)
	}
	return m, nil
}

func (r reader) safeDataLevel() (uint8, error) {
	start := r.Offset()
	b, err := r.NextByte()
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, r.fail(start, "safe data level", ErrInvalidSafeLevel)
	}
	return b, nil
}

func (r reader) status() (ServerStatus, error) {
	start := r.Offset()
	b, err := r.NextByte()
	if err != nil {
		return 0, err
	}
	s := ServerStatus(b)
	if !s.Valid() {
		return 0, r.fail(start, "server status", ErrInvalidStatus)
	}
	return s, nil
}

// replicaID reads a replica id carried as an int and checks its range
func (r reader) replicaID() (uint16, error) {
	start := r.Offset()
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 0xFFFF {
		return 0, r.fail(start, "replica id", ErrInvalidReplicaID)
	}
	return uint16(n), nil
}

// truncated converts running out of input in the middle of a message into a
// format error.
func truncated(s *codec.Scanner, err error, what string) error {
	if errors.Is(err, codec.ErrNoBytesLeft) {
		return codec.NewFormatError(s.Offset(), what, codec.ErrTruncated)
	}
	return err
}

// normalize returns nil for empty slices so decoded and constructed values
// compare equal.
func normalize[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
