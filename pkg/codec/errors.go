// Package codec implements the ordered primitive encoding shared by every
// replication message: a Builder appends primitives, a Scanner reads them
// back in the same order.
package codec

import (
	"errors"
	"fmt"
)

// Scanner errors
var (
	// ErrFormat matches every error caused by malformed or truncated input
	ErrFormat = errors.New("codec: format error")

	// ErrNoBytesLeft is returned when a read is attempted on a fully consumed
	// scanner. It is not a format error: the caller read past the last item.
	ErrNoBytesLeft = errors.New("codec: no bytes left")

	ErrTruncated      = errors.New("truncated data")
	ErrUnterminated   = errors.New("missing zero terminator")
	ErrInvalidBool    = errors.New("invalid boolean")
	ErrInvalidNumber  = errors.New("invalid decimal number")
	ErrInvalidUTF8    = errors.New("invalid UTF-8 string")
	ErrAbsentValue    = errors.New("absent value where one is required")
	ErrTrailingBytes  = errors.New("trailing bytes")
	ErrNegativeLength = errors.New("negative length")
)

// absentMarker encodes a null string. 0xFF never occurs in valid UTF-8.
const absentMarker = 0xFF

// FormatError describes malformed input at a given offset
type FormatError struct {
	Offset  int    // Byte offset where decoding failed
	Message string // What was being decoded
	Err     error  // Underlying cause
}

// Error implements the error interface
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: format error at offset %d: %s: %v", e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("codec: format error at offset %d: %s", e.Offset, e.Message)
}

// Unwrap returns the underlying error
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is makes every FormatError match ErrFormat
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// NewFormatError creates a FormatError
func NewFormatError(offset int, message string, err error) *FormatError {
	return &FormatError{Offset: offset, Message: message, Err: err}
}

// IsFormatError reports whether err is a format error
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat)
}
