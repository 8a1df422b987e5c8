package pickle

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Primitive constrains the element types eligible for the raw-transfer fast
// path: fixed-size numerics whose in-memory layout equals their wire layout.
type Primitive interface {
	constraints.Integer | constraints.Float
}

// rawBytes aliases the memory of a primitive slice as bytes without copying.
// The alias is only valid while v is reachable; callers copy through the
// session scratch buffer before the slice can escape.
func rawBytes[T Primitive](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(unsafe.Sizeof(v[0])))
}

// WriteArray bulk-transfers a homogeneous primitive array: a bounded element
// count followed by the raw element bytes, copied through the session's
// fixed-size scratch buffer in chunks. No per-element conversion happens;
// correctness rests on the endianness guard rejecting foreign streams.
func WriteArray[T Primitive](w *Writer, v []T) {
	if w.err != nil {
		return
	}
	w.BeginBoundedSequence(len(v))
	raw := rawBytes(v)
	for off := 0; off < len(raw); {
		n := copy(w.scratch[:], raw[off:])
		w.write(w.scratch[:n])
		off += n
	}
	w.EndBoundedSequence()
}

// ReadArray mirrors WriteArray: it reads the element count, allocates the
// result, and fills it chunk by chunk through the scratch buffer. Each chunk
// fill tolerates short reads from the source and fails with ErrTruncatedStream
// only when the source is exhausted before the chunk completes.
func ReadArray[T Primitive](r *Reader) []T {
	n := r.BeginBoundedSequence()
	if r.err != nil {
		return nil
	}
	var zero T
	if n > maxFrameBytes/int(unsafe.Sizeof(zero)) {
		r.setError(fmt.Errorf("%w: array length %d exceeds %d-byte limit", ErrCorruptStream, n, maxFrameBytes))
		return nil
	}
	v := make([]T, n)
	raw := rawBytes(v)
	for off := 0; off < len(raw); {
		chunk := len(raw) - off
		if chunk > scratchSize {
			chunk = scratchSize
		}
		r.readFull(r.scratch[:chunk])
		if r.err != nil {
			return nil
		}
		copy(raw[off:off+chunk], r.scratch[:chunk])
		off += chunk
	}
	r.EndBoundedSequence()
	if r.err != nil {
		return nil
	}
	return v
}
