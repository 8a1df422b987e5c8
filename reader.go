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

// Reader is a stateful unpickling session over a byte source. Like Writer it
// latches the first error: once any protocol error is raised the stream
// position is unreliable and every subsequent operation is a no-op, so the
// session must be discarded.
//
// Mirroring operations must be invoked in exactly the order the producer
// invoked theirs; the symmetric call order is the protocol contract.
type Reader struct {
	r     *bufio.Reader
	src   io.Reader
	enc   TextEncoding
	order binary.ByteOrder
	log   zerolog.Logger

	count int64 // total bytes read
	err   error // first error encountered

	rootRead  bool
	objDepth  int
	seqDepth  int
	leaveOpen bool
	closed    bool

	scratch [scratchSize]byte
}

func newReader(src io.Reader, o options) *Reader {
	r := &Reader{
		r:         bufio.NewReaderSize(src, o.bufSize),
		src:       src,
		enc:       o.enc,
		order:     binary.NativeEndian,
		log:       o.log,
		leaveOpen: o.leaveOpen,
	}
	r.log.Trace().Str("encoding", o.enc.Name()).Bool("leaveOpen", o.leaveOpen).
		Msg("pickle read session opened")
	return r
}

func (r *Reader) Count() int64 { return r.count }
func (r *Reader) Err() error   { return r.err }

// Result returns the total bytes read and the final error state.
func (r *Reader) Result() (int64, error) {
	return r.count, r.err
}

// setError records the first non-nil error.
func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
		r.log.Trace().Err(err).Msg("pickle read session failed")
	}
}

func (r *Reader) misuse(format string, args ...any) {
	r.setError(fmt.Errorf("%w: %s", ErrSessionMisuse, fmt.Sprintf(format, args...)))
}

// Close releases the session. Unless opened with WithLeaveOpen it also closes
// the underlying stream; the release happens exactly once.
func (r *Reader) Close() error {
	if r.closed {
		return r.err
	}
	r.closed = true
	if !r.leaveOpen {
		if c, ok := r.src.(io.Closer); ok {
			r.setError(c.Close())
		}
	}
	r.log.Trace().Int64("bytes", r.count).Err(r.err).Msg("pickle read session closed")
	return r.err
}

// readFull fills p completely, issuing as many reads as the source needs.
// Exhaustion before p is full is a truncated stream.
func (r *Reader) readFull(p []byte) {
	if r.err != nil {
		return
	}
	n, err := io.ReadFull(r.r, p)
	r.count += int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedStream, n, len(p))
		}
		r.setError(err)
	}
}

func (r *Reader) readByte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("%w: source exhausted", ErrTruncatedStream)
		}
		r.setError(err)
		return 0
	}
	r.count++
	return b
}

func (r *Reader) readUvarint() uint64 {
	var x uint64
	var s uint
	for i := 0; ; i++ {
		b := r.readByte()
		if r.err != nil {
			return 0
		}
		if i == binary.MaxVarintLen64 {
			r.setError(fmt.Errorf("%w: varint overflows 64 bits", ErrCorruptStream))
			return 0
		}
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				r.setError(fmt.Errorf("%w: varint overflows 64 bits", ErrCorruptStream))
				return 0
			}
			return x | uint64(b)<<s
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
}

func (r *Reader) readZigZag() int64 {
	u := r.readUvarint()
	return int64((u >> 1) ^ uint64((int64(u&1)<<63)>>63))
}

// readLength reads a varint length prefix and bounds it, so a corrupt prefix
// cannot drive an unbounded allocation.
func (r *Reader) readLength() int {
	n := r.readUvarint()
	if r.err != nil {
		return 0
	}
	if n > maxFrameBytes {
		r.setError(fmt.Errorf("%w: length prefix %d exceeds %d-byte limit", ErrCorruptStream, n, maxFrameBytes))
		return 0
	}
	return int(n)
}

// readRawString reads a never-null length-prefixed string.
func (r *Reader) readRawString() string {
	n := r.readLength()
	if r.err != nil || n == 0 {
		return ""
	}
	var p []byte
	if n <= scratchSize {
		p = r.scratch[:n]
	} else {
		p = make([]byte, n)
	}
	r.readFull(p)
	if r.err != nil {
		return ""
	}
	s, err := r.enc.Decode(p)
	r.setError(err)
	return s
}

// --- Root and object framing ---

// BeginRoot consumes the stream preamble and returns the root pickler
// identifier. It verifies the format sentinel and rejects a stream produced
// under a foreign byte order before any payload is interpreted.
func (r *Reader) BeginRoot() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.rootRead {
		r.misuse("BeginRoot called twice")
		return "", r.err
	}
	r.rootRead = true
	if b := r.readByte(); r.err == nil && b != Marker {
		r.setError(fmt.Errorf("%w: root marker 0x%02x, want 0x%02x", ErrCorruptStream, b, Marker))
	}
	var producerLittle bool
	r.ReadBool(&producerLittle)
	if r.err == nil && producerLittle != nativeLittle {
		r.setError(&EndiannessMismatchError{
			ProducerLittleEndian: producerLittle,
			ReaderLittleEndian:   nativeLittle,
		})
	}
	id := r.readRawString()
	return id, r.err
}

// EndRoot closes the root frame. Every object and sequence opened inside it
// must already be balanced.
func (r *Reader) EndRoot() {
	if r.err != nil {
		return
	}
	if !r.rootRead {
		r.misuse("EndRoot without BeginRoot")
		return
	}
	if r.objDepth != 0 || r.seqDepth != 0 {
		r.misuse("EndRoot with %d objects and %d sequences still open", r.objDepth, r.seqDepth)
	}
}

// BeginObject consumes a 4-byte header and validates it against the tags the
// caller expects for the field being decoded. A sentinel or range failure is
// ErrCorruptStream; a tag disagreement is a *SchemaMismatchError carrying both
// sides. On success it returns the object flags unchanged.
func (r *Reader) BeginObject(wantKind TypeKind, wantInfo PicklerInfo) (ObjectFlags, error) {
	if r.err != nil {
		return 0, r.err
	}
	var word uint32
	r.ReadUint32(&word)
	if r.err != nil {
		return 0, r.err
	}
	flags, err := DecodeHeader(word, wantKind, wantInfo)
	if err != nil {
		r.setError(err)
		return 0, r.err
	}
	r.objDepth++
	return flags, nil
}

// EndObject closes the innermost object frame; it consumes no bytes.
func (r *Reader) EndObject() {
	if r.err != nil {
		return
	}
	if r.objDepth == 0 {
		r.misuse("EndObject without BeginObject")
		return
	}
	r.objDepth--
}

// --- Sequence framing ---

// BeginBoundedSequence consumes the element count of a bounded sequence. The
// caller sizes its result storage from the count and then reads exactly that
// many elements.
func (r *Reader) BeginBoundedSequence() int {
	if r.err != nil {
		return 0
	}
	var n int32
	r.ReadInt32(&n)
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.setError(fmt.Errorf("%w: negative bounded sequence length %d", ErrCorruptStream, n))
		return 0
	}
	r.seqDepth++
	return int(n)
}

func (r *Reader) EndBoundedSequence() {
	if r.err != nil {
		return
	}
	if r.seqDepth == 0 {
		r.misuse("EndBoundedSequence without BeginBoundedSequence")
		return
	}
	r.seqDepth--
}

// BeginUnboundedSequence opens a sequence framed by per-element continuation
// flags; ReadHasNext drives the caller's loop until it yields false.
func (r *Reader) BeginUnboundedSequence() {
	if r.err != nil {
		return
	}
	r.seqDepth++
}

// ReadHasNext consumes one continuation flag of an unbounded sequence.
func (r *Reader) ReadHasNext(dest *bool) {
	if r.err != nil {
		return
	}
	if r.seqDepth == 0 {
		r.misuse("ReadHasNext outside a sequence frame")
		return
	}
	r.ReadBool(dest)
}

func (r *Reader) EndUnboundedSequence() {
	if r.err != nil {
		return
	}
	if r.seqDepth == 0 {
		r.misuse("EndUnboundedSequence without BeginUnboundedSequence")
		return
	}
	r.seqDepth--
}

// --- Primitive read operations ---

func (r *Reader) ReadBool(dest *bool) {
	b := r.readByte()
	if r.err == nil {
		*dest = b != 0
	}
}

func (r *Reader) ReadInt8(dest *int8) {
	b := r.readByte()
	if r.err == nil {
		*dest = int8(b)
	}
}

func (r *Reader) ReadUint8(dest *uint8) {
	b := r.readByte()
	if r.err == nil {
		*dest = b
	}
}

func (r *Reader) ReadInt16(dest *int16) {
	var u uint16
	r.ReadUint16(&u)
	if r.err == nil {
		*dest = int16(u)
	}
}

func (r *Reader) ReadUint16(dest *uint16) {
	r.readFull(r.scratch[:2])
	if r.err == nil {
		*dest = r.order.Uint16(r.scratch[:2])
	}
}

func (r *Reader) ReadInt32(dest *int32) {
	var u uint32
	r.ReadUint32(&u)
	if r.err == nil {
		*dest = int32(u)
	}
}

func (r *Reader) ReadUint32(dest *uint32) {
	r.readFull(r.scratch[:4])
	if r.err == nil {
		*dest = r.order.Uint32(r.scratch[:4])
	}
}

func (r *Reader) ReadInt64(dest *int64) {
	var u uint64
	r.ReadUint64(&u)
	if r.err == nil {
		*dest = int64(u)
	}
}

func (r *Reader) ReadUint64(dest *uint64) {
	r.readFull(r.scratch[:8])
	if r.err == nil {
		*dest = r.order.Uint64(r.scratch[:8])
	}
}

func (r *Reader) ReadFloat32(dest *float32) {
	var u uint32
	r.ReadUint32(&u)
	if r.err == nil {
		*dest = math.Float32frombits(u)
	}
}

func (r *Reader) ReadFloat64(dest *float64) {
	var u uint64
	r.ReadUint64(&u)
	if r.err == nil {
		*dest = math.Float64frombits(u)
	}
}

// ReadChar reads a UTF character from its 32-bit code point.
func (r *Reader) ReadChar(dest *rune) {
	var u uint32
	r.ReadUint32(&u)
	if r.err == nil {
		*dest = rune(u)
	}
}

// ReadString reads a nullable string; *dest is nil when the stream recorded a
// null.
func (r *Reader) ReadString(dest **string) {
	var isNull bool
	r.ReadBool(&isNull)
	if r.err != nil {
		return
	}
	if isNull {
		*dest = nil
		return
	}
	s := r.readRawString()
	if r.err == nil {
		*dest = &s
	}
}

// ReadByteArray reads a nullable byte sequence. A recorded length of -1 yields
// nil; a length of 0 yields an empty non-nil slice.
func (r *Reader) ReadByteArray(dest *[]byte) {
	var n int32
	r.ReadInt32(&n)
	if r.err != nil {
		return
	}
	switch {
	case n == -1:
		*dest = nil
	case n < -1:
		r.setError(fmt.Errorf("%w: byte array length %d", ErrCorruptStream, n))
	case n > maxFrameBytes:
		r.setError(fmt.Errorf("%w: byte array length %d exceeds %d-byte limit", ErrCorruptStream, n, maxFrameBytes))
	default:
		p := make([]byte, n)
		r.readFull(p)
		if r.err == nil {
			*dest = p
		}
	}
}

func (r *Reader) ReadUUID(dest *UUID) {
	r.readFull(dest[:])
}

func (r *Reader) ReadTime(dest *time.Time) {
	var ticks int64
	r.ReadInt64(&ticks)
	if r.err == nil {
		*dest = time.Unix(0, ticks).UTC()
	}
}

func (r *Reader) ReadDuration(dest *time.Duration) {
	var ticks int64
	r.ReadInt64(&ticks)
	if r.err == nil {
		*dest = time.Duration(ticks)
	}
}

func (r *Reader) ReadDecimal(dest *apd.Decimal) {
	sign := r.readByte()
	if r.err != nil {
		return
	}
	if sign > 1 {
		r.setError(fmt.Errorf("%w: decimal sign byte 0x%02x", ErrCorruptStream, sign))
		return
	}
	exp := r.readZigZag()
	if r.err != nil {
		return
	}
	if exp < math.MinInt32 || exp > math.MaxInt32 {
		r.setError(fmt.Errorf("%w: decimal exponent %d out of range", ErrCorruptStream, exp))
		return
	}
	n := r.readLength()
	if r.err != nil {
		return
	}
	coeff := make([]byte, n)
	r.readFull(coeff)
	if r.err != nil {
		return
	}
	dest.Coeff.SetBytes(coeff)
	dest.Exponent = int32(exp)
	dest.Negative = sign == 1
	dest.Form = apd.Finite
}

func (r *Reader) ReadBigInt(dest *big.Int) {
	var n int32
	r.ReadInt32(&n)
	if r.err != nil {
		return
	}
	if n <= 0 || n > maxFrameBytes {
		r.setError(fmt.Errorf("%w: big integer length %d", ErrCorruptStream, n))
		return
	}
	var p []byte
	if n <= scratchSize {
		p = r.scratch[:n]
	} else {
		p = make([]byte, n)
	}
	r.readFull(p)
	if r.err == nil {
		bigIntFromTwos(dest, p)
	}
}
