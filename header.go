package pickle

import "fmt"

// Marker is the sentinel byte opening the root frame and every object header.
// A stream that does not produce it where one is expected is corrupt or
// misaligned.
const Marker byte = 0x50

// TypeKind categorizes the statically-known type being serialized.
type TypeKind uint8

const (
	KindNull TypeKind = iota
	KindPrimitive
	KindString
	KindArray
	KindSequence
	KindObject

	kindCount
)

func (k TypeKind) valid() bool { return k < kindCount }

func (k TypeKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindPrimitive:
		return "Primitive"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindSequence:
		return "Sequence"
	case KindObject:
		return "Object"
	}
	return fmt.Sprintf("TypeKind(%d)", uint8(k))
}

// PicklerInfo identifies the pickling strategy that produced a value, so a
// reader driven by a different strategy fails loudly instead of misreading.
type PicklerInfo uint8

const (
	PicklerPrimitive PicklerInfo = iota
	PicklerArray
	PicklerSequence
	PicklerComposite
	PicklerCustom

	picklerCount
)

func (p PicklerInfo) valid() bool { return p < picklerCount }

func (p PicklerInfo) String() string {
	switch p {
	case PicklerPrimitive:
		return "PrimitivePickler"
	case PicklerArray:
		return "ArrayPickler"
	case PicklerSequence:
		return "SequencePickler"
	case PicklerComposite:
		return "CompositePickler"
	case PicklerCustom:
		return "CustomPickler"
	}
	return fmt.Sprintf("PicklerInfo(%d)", uint8(p))
}

// ObjectFlags is a bitmask of orthogonal per-value conditions attached to a
// header. Callers interpret individual bits themselves.
type ObjectFlags uint8

const (
	FlagNone   ObjectFlags = 0
	FlagNull   ObjectFlags = 1 << 0
	FlagShared ObjectFlags = 1 << 1
	FlagCyclic ObjectFlags = 1 << 2
	FlagProxy  ObjectFlags = 1 << 3

	flagsMask = FlagNull | FlagShared | FlagCyclic | FlagProxy
)

// Has reports whether all bits of f are set.
func (o ObjectFlags) Has(f ObjectFlags) bool { return o&f == f }

// EncodeHeader packs the sentinel and the three tag bytes into one word.
// The marker occupies the low byte so the packing is byte-order independent.
func EncodeHeader(kind TypeKind, info PicklerInfo, flags ObjectFlags) uint32 {
	return uint32(Marker) | uint32(kind)<<8 | uint32(info)<<16 | uint32(flags)<<24
}

// DecodeHeader unpacks and validates a header word. It returns the object
// flags on success. The sentinel is checked first, then tag ranges, then the
// caller's expectations: a bad sentinel or out-of-range tag is ErrCorruptStream,
// a well-formed header for the wrong field is a *SchemaMismatchError.
func DecodeHeader(word uint32, wantKind TypeKind, wantInfo PicklerInfo) (ObjectFlags, error) {
	if byte(word) != Marker {
		return 0, fmt.Errorf("%w: header marker 0x%02x, want 0x%02x", ErrCorruptStream, byte(word), Marker)
	}
	kind := TypeKind(word >> 8)
	info := PicklerInfo(word >> 16)
	flags := ObjectFlags(word >> 24)
	if !kind.valid() {
		return 0, fmt.Errorf("%w: type kind byte 0x%02x out of range", ErrCorruptStream, uint8(kind))
	}
	if !info.valid() {
		return 0, fmt.Errorf("%w: pickler info byte 0x%02x out of range", ErrCorruptStream, uint8(info))
	}
	if bad := flags &^ flagsMask; bad != 0 {
		return 0, fmt.Errorf("%w: unknown object flag bits 0x%02x", ErrCorruptStream, uint8(bad))
	}
	if kind != wantKind || info != wantInfo {
		return 0, &SchemaMismatchError{WantKind: wantKind, GotKind: kind, WantInfo: wantInfo, GotInfo: info}
	}
	return flags, nil
}
