package pickle

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// UUID is a 128-bit unique identifier, serialized as its canonical 16-byte
// representation.
type UUID [16]byte

// NewUUID returns a random version-4 UUID.
func NewUUID() (UUID, error) {
	var u UUID
	if _, err := io.ReadFull(rand.Reader, u[:]); err != nil {
		return u, err
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return u, nil
}

func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(u[0:4]),
		binary.BigEndian.Uint16(u[4:6]),
		binary.BigEndian.Uint16(u[6:8]),
		binary.BigEndian.Uint16(u[8:10]),
		u[10:16])
}
