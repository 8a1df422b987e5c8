package pickle

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// trickleReader returns at most one byte per Read call, exercising short-read
// tolerance in the chunk fill loop.
type trickleReader struct {
	r io.Reader
}

func (t trickleReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return t.r.Read(p)
}

type ArrayTestSuite struct {
	suite.Suite
	format Format
	buf    *bytes.Buffer
	w      *Writer
}

func (s *ArrayTestSuite) SetupTest() {
	f, err := LookupFormat(BclBinaryName)
	s.Require().NoError(err)
	s.format = f
	s.buf = &bytes.Buffer{}
	s.w, err = f.NewWriter(s.buf)
	s.Require().NoError(err)
}

func TestArraySuite(t *testing.T) {
	suite.Run(t, new(ArrayTestSuite))
}

func (s *ArrayTestSuite) TestByteArrayLargerThanScratch() {
	src := make([]byte, 1000) // forces several scratch-sized chunks
	for i := range src {
		src[i] = byte(i * 7)
	}
	WriteArray(s.w, src)
	s.Require().NoError(s.w.Flush())

	r, err := s.format.NewReader(bytes.NewReader(s.buf.Bytes()))
	s.Require().NoError(err)
	got := ReadArray[byte](r)
	s.Require().NoError(r.Err())
	s.Assert().Equal(src, got)
}

func (s *ArrayTestSuite) TestNumericArrays() {
	s.T().Run("Int32", func(t *testing.T) {
		src := make([]int32, 300)
		for i := range src {
			src[i] = int32(i*i - 5000)
		}
		buf := &bytes.Buffer{}
		w, _ := s.format.NewWriter(buf)
		WriteArray(w, src)
		require.NoError(t, w.Flush())

		r, _ := s.format.NewReader(bytes.NewReader(buf.Bytes()))
		got := ReadArray[int32](r)
		require.NoError(t, r.Err())
		assert.Equal(t, src, got)
	})

	s.T().Run("Float64", func(t *testing.T) {
		src := make([]float64, 129)
		for i := range src {
			src[i] = float64(i) / 3.0
		}
		buf := &bytes.Buffer{}
		w, _ := s.format.NewWriter(buf)
		WriteArray(w, src)
		require.NoError(t, w.Flush())

		r, _ := s.format.NewReader(bytes.NewReader(buf.Bytes()))
		got := ReadArray[float64](r)
		require.NoError(t, r.Err())
		assert.Equal(t, src, got)
	})

	s.T().Run("Empty", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w, _ := s.format.NewWriter(buf)
		WriteArray(w, []uint16{})
		require.NoError(t, w.Flush())

		r, _ := s.format.NewReader(bytes.NewReader(buf.Bytes()))
		got := ReadArray[uint16](r)
		require.NoError(t, r.Err())
		assert.Empty(t, got)
	})
}

func (s *ArrayTestSuite) TestShortReadsStillFillChunks() {
	src := make([]uint64, 200)
	for i := range src {
		src[i] = uint64(i) * 0x0101010101010101
	}
	WriteArray(s.w, src)
	s.Require().NoError(s.w.Flush())

	r, err := s.format.NewReader(trickleReader{r: bytes.NewReader(s.buf.Bytes())})
	s.Require().NoError(err)
	got := ReadArray[uint64](r)
	s.Require().NoError(r.Err())
	s.Assert().Equal(src, got)
}

func (s *ArrayTestSuite) TestExhaustedSourceIsTruncated() {
	src := make([]byte, 1000)
	WriteArray(s.w, src)
	s.Require().NoError(s.w.Flush())

	half := s.buf.Bytes()[:s.buf.Len()/2]
	r, err := s.format.NewReader(trickleReader{r: bytes.NewReader(half)})
	s.Require().NoError(err)
	got := ReadArray[byte](r)
	s.Assert().Nil(got)
	s.Assert().ErrorIs(r.Err(), ErrTruncatedStream)
}

func (s *ArrayTestSuite) TestCorruptLengthRejected() {
	w, _ := s.format.NewWriter(s.buf)
	w.WriteInt32(-2) // no valid bounded count is negative
	s.Require().NoError(w.Flush())

	r, err := s.format.NewReader(bytes.NewReader(s.buf.Bytes()))
	s.Require().NoError(err)
	got := ReadArray[int32](r)
	s.Assert().Nil(got)
	s.Assert().ErrorIs(r.Err(), ErrCorruptStream)
}
