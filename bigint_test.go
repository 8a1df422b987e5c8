package pickle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTwosComplementEncoding(t *testing.T) {
	cases := []struct {
		value string
		wire  []byte
	}{
		{"0", []byte{0x00}},
		{"1", []byte{0x01}},
		{"127", []byte{0x7F}},
		{"128", []byte{0x00, 0x80}},
		{"255", []byte{0x00, 0xFF}},
		{"256", []byte{0x01, 0x00}},
		{"-1", []byte{0xFF}},
		{"-2", []byte{0xFE}},
		{"-128", []byte{0x80}},
		{"-129", []byte{0xFF, 0x7F}},
		{"-256", []byte{0xFF, 0x00}},
		{"-32768", []byte{0x80, 0x00}},
	}

	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			v, ok := new(big.Int).SetString(tc.value, 10)
			assert.True(t, ok)
			assert.Equal(t, tc.wire, bigIntToTwos(v))

			var back big.Int
			bigIntFromTwos(&back, tc.wire)
			assert.Zero(t, back.Cmp(v))
		})
	}
}

func TestTwosComplementLargeRoundTrip(t *testing.T) {
	for _, s := range []string{
		"123456789012345678901234567890",
		"-123456789012345678901234567890",
		"-340282366920938463463374607431768211456", // -2^128
		"340282366920938463463374607431768211455",  // 2^128-1
	} {
		v, ok := new(big.Int).SetString(s, 10)
		assert.True(t, ok)

		var back big.Int
		bigIntFromTwos(&back, bigIntToTwos(v))
		assert.Zero(t, back.Cmp(v), s)
	}
}
