package codec

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"unicode/utf8"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/serverstate"
)

// Scanner reads primitives from a byte slice in the order a Builder wrote them
type Scanner struct {
	buf []byte
	pos int
}

// NewScanner creates a scanner over b
func NewScanner(b []byte) *Scanner {
	return &Scanner{buf: b}
}

// Offset returns the cursor position
func (s *Scanner) Offset() int {
	return s.pos
}

// Remaining returns the number of unread bytes
func (s *Scanner) Remaining() int {
	return len(s.buf) - s.pos
}

// IsEmpty reports whether every byte has been consumed
func (s *Scanner) IsEmpty() bool {
	return s.pos >= len(s.buf)
}

// take returns the next n bytes and advances the cursor
func (s *Scanner) take(n int, what string) ([]byte, error) {
	if s.IsEmpty() {
		return nil, ErrNoBytesLeft
	}
	if s.Remaining() < n {
		return nil, NewFormatError(s.pos, what, ErrTruncated)
	}
	out := s.buf[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// takeZeroTerminated returns the bytes up to the next zero byte and moves the
// cursor past the terminator.
func (s *Scanner) takeZeroTerminated(what string) ([]byte, int, error) {
	if s.IsEmpty() {
		return nil, s.pos, ErrNoBytesLeft
	}
	start := s.pos
	end := bytes.IndexByte(s.buf[start:], 0)
	if end < 0 {
		return nil, start, NewFormatError(start, what, ErrUnterminated)
	}
	s.pos = start + end + 1
	return s.buf[start : start+end], start, nil
}

// NextBool reads a one-byte boolean
func (s *Scanner) NextBool() (bool, error) {
	b, err := s.take(1, "boolean")
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, NewFormatError(s.pos-1, "boolean", ErrInvalidBool)
}

// NextByte reads a single byte
func (s *Scanner) NextByte() (byte, error) {
	b, err := s.take(1, "byte")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// NextShort reads a 2-byte integer
func (s *Scanner) NextShort() (uint16, error) {
	b, err := s.take(2, "short")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// NextInt reads a 4-byte integer
func (s *Scanner) NextInt() (int32, error) {
	b, err := s.take(4, "int")
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// NextLong reads an 8-byte integer
func (s *Scanner) NextLong() (int64, error) {
	b, err := s.take(8, "long")
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// NextIntUTF8 reads an integer written as zero-terminated decimal text
func (s *Scanner) NextIntUTF8() (int32, error) {
	text, start, err := s.takeZeroTerminated("decimal int")
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseInt(string(text), 10, 32)
	if perr != nil {
		return 0, NewFormatError(start, "decimal int", ErrInvalidNumber)
	}
	return int32(v), nil
}

// NextLongUTF8 reads a long written as zero-terminated decimal text
func (s *Scanner) NextLongUTF8() (int64, error) {
	text, start, err := s.takeZeroTerminated("decimal long")
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseInt(string(text), 10, 64)
	if perr != nil {
		return 0, NewFormatError(start, "decimal long", ErrInvalidNumber)
	}
	return v, nil
}

// NextString reads a zero-terminated UTF-8 string. The absence marker is a
// format error here; use NextNullableString for optional values.
func (s *Scanner) NextString() (string, error) {
	v, err := s.NextNullableString()
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", NewFormatError(s.pos-2, "string", ErrAbsentValue)
	}
	return *v, nil
}

// NextNullableString reads a zero-terminated string or the absence marker
func (s *Scanner) NextNullableString() (*string, error) {
	text, start, err := s.takeZeroTerminated("string")
	if err != nil {
		return nil, err
	}
	if len(text) == 1 && text[0] == absentMarker {
		return nil, nil
	}
	if !utf8.Valid(text) {
		return nil, NewFormatError(start, "string", ErrInvalidUTF8)
	}
	v := string(text)
	return &v, nil
}

// NextStrings reads a count-prefixed list of zero-terminated strings
func (s *Scanner) NextStrings() ([]string, error) {
	start := s.pos
	count, err := s.NextInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, NewFormatError(start, "string list", ErrNegativeLength)
	}
	// every string takes at least its terminator
	if int(count) > s.Remaining() {
		return nil, NewFormatError(start, "string list", ErrTruncated)
	}
	list := make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		v, err := s.NextString()
		if err != nil {
			return nil, s.truncated(err, "string list")
		}
		list = append(list, v)
	}
	return list, nil
}

// NextCSN reads a fixed-width binary CSN
func (s *Scanner) NextCSN() (csn.CSN, error) {
	start := s.pos
	b, err := s.take(csn.Size, "CSN")
	if err != nil {
		return csn.Null, err
	}
	c, cerr := csn.FromBytes(b)
	if cerr != nil {
		return csn.Null, NewFormatError(start, "CSN", cerr)
	}
	return c, nil
}

// NextCSNUTF8 reads a CSN in its zero-terminated text form
func (s *Scanner) NextCSNUTF8() (csn.CSN, error) {
	text, start, err := s.takeZeroTerminated("CSN text")
	if err != nil {
		return csn.Null, err
	}
	c, cerr := csn.Parse(string(text))
	if cerr != nil {
		return csn.Null, NewFormatError(start, "CSN text", cerr)
	}
	return c, nil
}

// NextDN reads a zero-terminated DN and parses it
func (s *Scanner) NextDN() (dn.DN, error) {
	start := s.pos
	text, err := s.NextString()
	if err != nil {
		return dn.DN{}, err
	}
	d, derr := dn.Parse(text)
	if derr != nil {
		return dn.DN{}, NewFormatError(start, "DN", derr)
	}
	return d, nil
}

// NextZeroTerminatedBytes reads raw bytes up to the next zero byte
func (s *Scanner) NextZeroTerminatedBytes() ([]byte, error) {
	block, _, err := s.takeZeroTerminated("zero-terminated block")
	if err != nil {
		return nil, err
	}
	return bytes.Clone(block), nil
}

// NextByteArray reads a 4-byte length followed by that many raw bytes
func (s *Scanner) NextByteArray() ([]byte, error) {
	start := s.pos
	n, err := s.NextInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, NewFormatError(start, "byte array", ErrNegativeLength)
	}
	if n == 0 {
		return []byte{}, nil
	}
	block, err := s.take(int(n), "byte array")
	if err != nil {
		return nil, s.truncated(err, "byte array")
	}
	return bytes.Clone(block), nil
}

// NextServerState decodes the remaining bytes as a server state. It must be
// the last read on the scanner.
func (s *Scanner) NextServerState() (serverstate.State, error) {
	start := s.pos
	b, err := s.take(s.Remaining(), "server state")
	if err != nil {
		return serverstate.State{}, err
	}
	state, serr := serverstate.Decode(b)
	if serr != nil {
		return serverstate.State{}, NewFormatError(start, "server state", serr)
	}
	return state, nil
}

// ExpectEnd returns a format error if unread bytes remain
func (s *Scanner) ExpectEnd() error {
	if !s.IsEmpty() {
		return NewFormatError(s.pos, "end of data", ErrTrailingBytes)
	}
	return nil
}

// truncated turns running out of bytes in the middle of a composite item into
// a format error.
func (s *Scanner) truncated(err error, what string) error {
	if err == ErrNoBytesLeft {
		return NewFormatError(s.pos, what, ErrTruncated)
	}
	return err
}
