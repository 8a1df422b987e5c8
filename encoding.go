package pickle

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// nativeLittle records the executing machine's byte order, probed once at
// startup. The writer stamps it into the root frame; the reader refuses
// streams produced under the other order.
var nativeLittle = binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 1

// TextEncoding translates between Go strings and their wire payload bytes.
// Only UTF8 ships with the package; a Format accepts any implementation so a
// higher layer can bind a legacy encoding without touching the wire code.
type TextEncoding interface {
	Name() string
	Encode(s string) []byte
	Decode(p []byte) (string, error)
}

// UTF8 is the default text encoding.
var UTF8 TextEncoding = utf8Encoding{}

type utf8Encoding struct{}

func (utf8Encoding) Name() string { return "utf-8" }

func (utf8Encoding) Encode(s string) []byte { return []byte(s) }

func (utf8Encoding) Decode(p []byte) (string, error) {
	if !utf8.Valid(p) {
		return "", fmt.Errorf("%w: string payload is not valid UTF-8", ErrCorruptStream)
	}
	return string(p), nil
}
