package pickle

import (
	"bytes"
	"io"
	"testing"
)

func benchFormat(b *testing.B) Format {
	f, err := LookupFormat(BclBinaryName)
	if err != nil {
		b.Fatal(err)
	}
	return f
}

func BenchmarkWriteArrayFastPath(b *testing.B) {
	f := benchFormat(b)
	src := make([]int32, 4096)
	for i := range src {
		src[i] = int32(i)
	}
	w, _ := f.NewWriter(io.Discard)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WriteArray(w, src)
	}
	if err := w.Flush(); err != nil {
		b.Fatal(err)
	}
}

// Baseline comparison: the same array element by element, to see what the
// raw-transfer path saves.
func BenchmarkWritePerElement(b *testing.B) {
	f := benchFormat(b)
	src := make([]int32, 4096)
	for i := range src {
		src[i] = int32(i)
	}
	w, _ := f.NewWriter(io.Discard)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.BeginBoundedSequence(len(src))
		for _, v := range src {
			w.WriteInt32(v)
		}
		w.EndBoundedSequence()
	}
	if err := w.Flush(); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkReadArrayFastPath(b *testing.B) {
	f := benchFormat(b)
	src := make([]int32, 4096)
	for i := range src {
		src[i] = int32(i)
	}
	var buf bytes.Buffer
	w, _ := f.NewWriter(&buf)
	WriteArray(w, src)
	if err := w.Flush(); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, _ := f.NewReader(bytes.NewReader(data))
		if got := ReadArray[int32](r); len(got) != len(src) {
			b.Fatal(r.Err())
		}
	}
}
