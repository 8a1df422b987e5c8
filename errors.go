package pickle

import (
	"errors"
	"fmt"
)

var (
	// ErrNilStream indicates that a Format constructor was called with a nil
	// io.Reader/io.Writer.
	ErrNilStream = errors.New("pickle: nil underlying stream")

	// ErrCorruptStream indicates that a marker byte, tag byte, or length prefix
	// read from the stream is not a value this format can produce.
	ErrCorruptStream = errors.New("pickle: corrupt stream")

	// ErrSchemaMismatch indicates a well-formed header whose type kind or
	// pickler info disagrees with what the caller expected. The concrete error
	// is a *SchemaMismatchError carrying both sides.
	ErrSchemaMismatch = errors.New("pickle: schema mismatch")

	// ErrEndiannessMismatch indicates the stream was produced on a machine with
	// a different native byte order. The concrete error is a
	// *EndiannessMismatchError. This is fatal: the array fast path performs no
	// byte swapping, so such a stream cannot be decoded safely.
	ErrEndiannessMismatch = errors.New("pickle: endianness mismatch")

	// ErrTruncatedStream indicates the underlying source was exhausted before a
	// fixed-length read completed.
	ErrTruncatedStream = errors.New("pickle: truncated stream")

	// ErrSessionMisuse indicates an unbalanced begin/end call or an operation
	// issued outside the root frame. The session is unusable afterwards.
	ErrSessionMisuse = errors.New("pickle: session misuse")

	// ErrUnknownFormat indicates that no Format with the requested name has
	// been registered.
	ErrUnknownFormat = errors.New("pickle: unknown wire format")

	// ErrUnsupportedEncoding indicates a nil text encoding was supplied to a
	// Format constructor.
	ErrUnsupportedEncoding = errors.New("pickle: unsupported text encoding")
)

// SchemaMismatchError reports a header whose tags disagree with the field the
// caller is decoding. It matches ErrSchemaMismatch under errors.Is.
type SchemaMismatchError struct {
	WantKind TypeKind
	GotKind  TypeKind
	WantInfo PicklerInfo
	GotInfo  PicklerInfo
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("pickle: schema mismatch: type kind %v (want %v), pickler %v (want %v)",
		e.GotKind, e.WantKind, e.GotInfo, e.WantInfo)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// EndiannessMismatchError reports a root frame produced on a machine whose
// byte order differs from the reading machine's. It matches
// ErrEndiannessMismatch under errors.Is.
type EndiannessMismatchError struct {
	ProducerLittleEndian bool
	ReaderLittleEndian   bool
}

func (e *EndiannessMismatchError) Error() string {
	return fmt.Sprintf("pickle: endianness mismatch: stream produced on a %s machine, reader is %s",
		endianName(e.ProducerLittleEndian), endianName(e.ReaderLittleEndian))
}

func (e *EndiannessMismatchError) Unwrap() error { return ErrEndiannessMismatch }

func endianName(little bool) string {
	if little {
		return "little-endian"
	}
	return "big-endian"
}
