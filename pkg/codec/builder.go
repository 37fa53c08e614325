package codec

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/serverstate"
)

// Builder accumulates encoded primitives in append order.
// Once a server state has been appended the builder is sealed and any further
// append panics.
type Builder struct {
	buf    []byte
	sealed bool
}

// NewBuilder creates a builder with an initial capacity
func NewBuilder(capacity int) *Builder {
	if capacity <= 0 {
		capacity = 64
	}
	return &Builder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the number of encoded bytes
func (b *Builder) Len() int {
	return len(b.buf)
}

func (b *Builder) checkOpen() {
	if b.sealed {
		panic("codec: append after server state; the server state must be the last item")
	}
}

// AppendBool appends a boolean as one byte
func (b *Builder) AppendBool(v bool) {
	b.checkOpen()
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

// AppendByte appends a single byte
func (b *Builder) AppendByte(v byte) {
	b.checkOpen()
	b.buf = append(b.buf, v)
}

// AppendShort appends a 2-byte integer
func (b *Builder) AppendShort(v uint16) {
	b.checkOpen()
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
}

// AppendInt appends a 4-byte integer
func (b *Builder) AppendInt(v int32) {
	b.checkOpen()
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v))
}

// AppendLong appends an 8-byte integer
func (b *Builder) AppendLong(v int64) {
	b.checkOpen()
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v))
}

// AppendIntUTF8 appends an integer as zero-terminated decimal text
func (b *Builder) AppendIntUTF8(v int32) {
	b.appendText(strconv.FormatInt(int64(v), 10))
}

// AppendLongUTF8 appends a long as zero-terminated decimal text
func (b *Builder) AppendLongUTF8(v int64) {
	b.appendText(strconv.FormatInt(v, 10))
}

// AppendString appends a zero-terminated UTF-8 string
func (b *Builder) AppendString(s string) {
	b.appendText(s)
}

// AppendNullableString appends a zero-terminated string, or the absence
// marker when s is nil.
func (b *Builder) AppendNullableString(s *string) {
	if s == nil {
		b.checkOpen()
		b.buf = append(b.buf, absentMarker, 0)
		return
	}
	b.appendText(*s)
}

// AppendStrings appends a count-prefixed list of zero-terminated strings
func (b *Builder) AppendStrings(list []string) {
	b.AppendInt(int32(len(list)))
	for _, s := range list {
		b.appendText(s)
	}
}

// AppendCSN appends the fixed-width binary CSN
func (b *Builder) AppendCSN(c csn.CSN) {
	b.checkOpen()
	b.buf = c.AppendBinary(b.buf)
}

// AppendCSNUTF8 appends the CSN in its zero-terminated text form
func (b *Builder) AppendCSNUTF8(c csn.CSN) {
	b.appendText(c.String())
}

// AppendDN appends a DN as a zero-terminated string
func (b *Builder) AppendDN(d dn.DN) {
	b.appendText(d.String())
}

// AppendZeroTerminatedBytes appends raw bytes followed by a zero byte.
// The block itself must not contain a zero byte.
func (b *Builder) AppendZeroTerminatedBytes(block []byte) {
	b.checkOpen()
	if bytes.IndexByte(block, 0) >= 0 {
		panic("codec: zero-terminated block contains a zero byte")
	}
	b.buf = append(b.buf, block...)
	b.buf = append(b.buf, 0)
}

// AppendByteArray appends a 4-byte length followed by the raw bytes
func (b *Builder) AppendByteArray(block []byte) {
	b.AppendInt(int32(len(block)))
	b.buf = append(b.buf, block...)
}

// AppendServerStateMustComeLast appends the server state, seals the builder
// and returns the finished encoding.
func (b *Builder) AppendServerStateMustComeLast(s serverstate.State) []byte {
	b.checkOpen()
	b.buf = s.AppendBinary(b.buf)
	b.sealed = true
	return b.buf
}

func (b *Builder) appendText(s string) {
	b.checkOpen()
	if len(s) > 0 && (s[0] == absentMarker || strings.IndexByte(s, 0) >= 0) {
		panic("codec: string contains a zero byte or starts with the absence marker")
	}
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
}
