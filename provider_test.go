package pickle

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupFormat(t *testing.T) {
	t.Run("BclBinary", func(t *testing.T) {
		f, err := LookupFormat(BclBinaryName)
		require.NoError(t, err)
		assert.Equal(t, BclBinaryName, f.Name())
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := LookupFormat("XmlText")
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})
}

func TestConstructorValidation(t *testing.T) {
	f, err := LookupFormat(BclBinaryName)
	require.NoError(t, err)

	t.Run("NilStream", func(t *testing.T) {
		_, err := f.NewWriter(nil)
		assert.ErrorIs(t, err, ErrNilStream)
		_, err = f.NewReader(nil)
		assert.ErrorIs(t, err, ErrNilStream)
	})

	t.Run("NilEncoding", func(t *testing.T) {
		_, err := f.NewWriter(&bytes.Buffer{}, WithEncoding(nil))
		assert.ErrorIs(t, err, ErrUnsupportedEncoding)
	})
}

func TestSessionLogging(t *testing.T) {
	f, err := LookupFormat(BclBinaryName)
	require.NoError(t, err)

	var logBuf bytes.Buffer
	log := zerolog.New(&logBuf).Level(zerolog.TraceLevel)

	var out bytes.Buffer
	w, err := f.NewWriter(&out, WithLogger(log))
	require.NoError(t, err)
	w.WriteBool(true)
	require.NoError(t, w.Close())

	assert.Contains(t, logBuf.String(), "pickle write session opened")
	assert.Contains(t, logBuf.String(), "pickle write session closed")
}

func TestUTF8Encoding(t *testing.T) {
	assert.Equal(t, "utf-8", UTF8.Name())

	s, err := UTF8.Decode(UTF8.Encode("héllo 世界"))
	require.NoError(t, err)
	assert.Equal(t, "héllo 世界", s)

	_, err = UTF8.Decode([]byte{0xFF, 0xFE, 0xFD})
	assert.ErrorIs(t, err, ErrCorruptStream)
}
