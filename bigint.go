package pickle

import "math/big"

// bigIntToTwos returns the minimal big-endian two's-complement encoding of v.
// Zero encodes as a single 0x00 byte.
func bigIntToTwos(v *big.Int) []byte {
	switch v.Sign() {
	case 0:
		return []byte{0x00}
	case 1:
		b := v.Bytes()
		if b[0]&0x80 != 0 {
			// Needs a leading zero byte so the sign bit reads positive.
			b = append([]byte{0x00}, b...)
		}
		return b
	}

	// One byte beyond the magnitude always has room for the sign bit; the
	// redundant 0xFF prefix is stripped afterwards.
	n := len(v.Bytes()) + 1
	t := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
	t.Add(t, v)
	b := t.Bytes()
	for len(b) > 1 && b[0] == 0xFF && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

// bigIntFromTwos decodes a big-endian two's-complement byte sequence into dest.
func bigIntFromTwos(dest *big.Int, p []byte) {
	dest.SetBytes(p)
	if len(p) > 0 && p[0]&0x80 != 0 {
		dest.Sub(dest, new(big.Int).Lsh(big.NewInt(1), uint(8*len(p))))
	}
}
