package pickle

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"
)

// scratchSize is the capacity of the per-session scratch buffer used by the
// primitive array fast path. Arrays larger than this are transferred in
// scratch-sized chunks.
const scratchSize = 256

// maxFrameBytes caps any single length prefix read back from the wire, so a
// corrupt length cannot trigger an unbounded allocation.
const maxFrameBytes = 64 << 20

// Writer is a stateful pickling session over a byte sink. It tracks the first
// error encountered; after an error, all subsequent operations become no-ops,
// so a frame of writes can be issued unconditionally and checked once via
// Err or Close.
//
// A Writer is owned by exactly one serialization session and must not be
// driven concurrently: the call protocol is ordered and stateful.
type Writer struct {
	w     *bufio.Writer
	dst   io.Writer
	enc   TextEncoding
	order binary.ByteOrder
	log   zerolog.Logger

	count int64 // total bytes written
	err   error // first error encountered

	rootOpen  bool
	objDepth  int
	seqDepth  int
	leaveOpen bool
	closed    bool

	scratch [scratchSize]byte
}

func newWriter(dst io.Writer, o options) *Writer {
	w := &Writer{
		w:         bufio.NewWriterSize(dst, o.bufSize),
		dst:       dst,
		enc:       o.enc,
		order:     binary.NativeEndian,
		log:       o.log,
		leaveOpen: o.leaveOpen,
	}
	w.log.Trace().Str("encoding", o.enc.Name()).Bool("leaveOpen", o.leaveOpen).
		Msg("pickle write session opened")
	return w
}

func (w *Writer) Count() int64 { return w.count }
func (w *Writer) Err() error   { return w.err }

// Result flushes the buffer and returns the final count and error state.
func (w *Writer) Result() (int64, error) {
	w.Flush()
	return w.count, w.err
}

// setError records the first non-nil error. Later errors are usually
// consequences of the first one, so only the root cause is kept.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
		w.log.Trace().Err(err).Msg("pickle write session failed")
	}
}

func (w *Writer) misuse(format string, args ...any) {
	w.setError(fmt.Errorf("%w: %s", ErrSessionMisuse, fmt.Sprintf(format, args...)))
}

// Flush writes any buffered data to the underlying stream.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.setError(w.w.Flush())
	return w.err
}

// Close flushes pending writes and, unless the session was opened with
// WithLeaveOpen, closes the underlying stream. Close is idempotent; the
// release happens exactly once even when serialization aborted mid-stream.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if err := w.w.Flush(); err != nil {
		w.setError(err)
	}
	if !w.leaveOpen {
		if c, ok := w.dst.(io.Closer); ok {
			w.setError(c.Close())
		}
	}
	w.log.Trace().Int64("bytes", w.count).Err(w.err).Msg("pickle write session closed")
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.count += int64(n)
	w.setError(err)
}

func (w *Writer) writeByte(b byte) {
	if w.err != nil {
		return
	}
	if err := w.w.WriteByte(b); err != nil {
		w.setError(err)
		return
	}
	w.count++
}

func (w *Writer) writeUvarint(x uint64) {
	if w.err != nil {
		return
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], x)
	w.write(buf[:n])
}

func (w *Writer) writeZigZag(v int64) {
	w.writeUvarint(uint64((v << 1) ^ (v >> 63)))
}

// writeRawString writes a never-null length-prefixed string.
func (w *Writer) writeRawString(s string) {
	p := w.enc.Encode(s)
	w.writeUvarint(uint64(len(p)))
	w.write(p)
}

// --- Root and object framing ---

// BeginRoot opens the stream: the format sentinel, the producing machine's
// byte order, and the identifier of the root pickler. It must be the first
// operation of the session and may be issued only once.
func (w *Writer) BeginRoot(id string) {
	if w.err != nil {
		return
	}
	if w.rootOpen || w.count > 0 {
		w.misuse("BeginRoot after stream already started")
		return
	}
	w.rootOpen = true
	w.writeByte(Marker)
	w.WriteBool(nativeLittle)
	w.writeRawString(id)
}

// EndRoot closes the root frame and flushes. Every object and sequence opened
// inside it must already be balanced.
func (w *Writer) EndRoot() {
	if w.err != nil {
		return
	}
	if !w.rootOpen {
		w.misuse("EndRoot without BeginRoot")
		return
	}
	if w.objDepth != 0 || w.seqDepth != 0 {
		w.misuse("EndRoot with %d objects and %d sequences still open", w.objDepth, w.seqDepth)
		return
	}
	w.rootOpen = false
	w.Flush()
}

// BeginObject emits the 4-byte header opening a nested object frame.
func (w *Writer) BeginObject(kind TypeKind, info PicklerInfo, flags ObjectFlags) {
	if w.err != nil {
		return
	}
	if !w.rootOpen {
		w.misuse("BeginObject outside root frame")
		return
	}
	w.WriteUint32(EncodeHeader(kind, info, flags))
	w.objDepth++
}

// EndObject closes the innermost object frame. It emits no bytes; the frame
// boundary is implied by the symmetric call order.
func (w *Writer) EndObject() {
	if w.err != nil {
		return
	}
	if w.objDepth == 0 {
		w.misuse("EndObject without BeginObject")
		return
	}
	w.objDepth--
}

// --- Sequence framing ---

// BeginBoundedSequence opens a sequence whose element count is known up front
// and emits the count. The count is immutable for the frame: exactly n
// elements must follow.
func (w *Writer) BeginBoundedSequence(n int) {
	if w.err != nil {
		return
	}
	if n < 0 || n > math.MaxInt32 {
		w.misuse("bounded sequence length %d out of range", n)
		return
	}
	w.WriteInt32(int32(n))
	w.seqDepth++
}

func (w *Writer) EndBoundedSequence() {
	if w.err != nil {
		return
	}
	if w.seqDepth == 0 {
		w.misuse("EndBoundedSequence without BeginBoundedSequence")
		return
	}
	w.seqDepth--
}

// BeginUnboundedSequence opens a sequence of unknown length. Each element must
// be preceded by WriteHasNext(true); WriteHasNext(false) terminates the frame
// with no element following. An empty sequence writes only the terminator.
func (w *Writer) BeginUnboundedSequence() {
	if w.err != nil {
		return
	}
	w.seqDepth++
}

// WriteHasNext emits one continuation flag of an unbounded sequence.
func (w *Writer) WriteHasNext(more bool) {
	if w.err != nil {
		return
	}
	if w.seqDepth == 0 {
		w.misuse("WriteHasNext outside a sequence frame")
		return
	}
	w.WriteBool(more)
}

func (w *Writer) EndUnboundedSequence() {
	if w.err != nil {
		return
	}
	if w.seqDepth == 0 {
		w.misuse("EndUnboundedSequence without BeginUnboundedSequence")
		return
	}
	w.seqDepth--
}

// --- Primitive write operations ---

func (w *Writer) WriteBool(v bool) {
	if v {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
}

func (w *Writer) WriteInt8(v int8)   { w.writeByte(byte(v)) }
func (w *Writer) WriteUint8(v uint8) { w.writeByte(v) }

func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}
	w.order.PutUint16(w.scratch[:2], v)
	w.write(w.scratch[:2])
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.order.PutUint32(w.scratch[:4], v)
	w.write(w.scratch[:4])
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }
func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	w.order.PutUint64(w.scratch[:8], v)
	w.write(w.scratch[:8])
}

func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteChar writes a UTF character as its 32-bit code point.
func (w *Writer) WriteChar(v rune) { w.WriteUint32(uint32(v)) }

// WriteString writes a nullable string: an is-null flag, then the encoded
// payload only when non-null.
func (w *Writer) WriteString(v *string) {
	w.WriteBool(v == nil)
	if v != nil {
		w.writeRawString(*v)
	}
}

// WriteByteArray writes a nullable byte sequence: a 32-bit length where -1
// denotes nil and any non-negative length a present, possibly empty, array.
func (w *Writer) WriteByteArray(v []byte) {
	if v == nil {
		w.WriteInt32(-1)
		return
	}
	if len(v) > math.MaxInt32 {
		w.misuse("byte array length %d out of range", len(v))
		return
	}
	w.WriteInt32(int32(len(v)))
	w.write(v)
}

// WriteUUID writes the canonical 16-byte representation.
func (w *Writer) WriteUUID(v UUID) { w.write(v[:]) }

// WriteTime writes a calendar timestamp as a 64-bit nanosecond tick count.
func (w *Writer) WriteTime(v time.Time) { w.WriteInt64(v.UnixNano()) }

// WriteDuration writes a duration as a 64-bit nanosecond tick count.
func (w *Writer) WriteDuration(v time.Duration) { w.WriteInt64(int64(v)) }

// WriteDecimal writes a high-precision decimal as a sign byte, a zigzag-varint
// exponent, and a length-prefixed coefficient magnitude.
func (w *Writer) WriteDecimal(v *apd.Decimal) {
	if w.err != nil {
		return
	}
	sign := byte(0)
	if v.Negative {
		sign = 1
	}
	w.writeByte(sign)
	w.writeZigZag(int64(v.Exponent))
	coeff := v.Coeff.Bytes()
	w.writeUvarint(uint64(len(coeff)))
	w.write(coeff)
}

// WriteBigInt writes an arbitrary-precision integer as a length-prefixed
// big-endian two's-complement byte sequence.
func (w *Writer) WriteBigInt(v *big.Int) {
	if w.err != nil {
		return
	}
	p := bigIntToTwos(v)
	w.WriteInt32(int32(len(p)))
	w.write(p)
}
