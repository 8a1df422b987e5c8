package pickle

import (
	"fmt"
	"io"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
)

// Format is a named wire-format provider. It is the only public entry point
// of the layer: it binds a Writer or Reader to a concrete byte stream, text
// encoding, and stream-ownership policy, and exposes no other behavior.
// Alternative wire formats implement the same interface and register under
// their own names.
type Format interface {
	Name() string
	NewWriter(dst io.Writer, opts ...Option) (*Writer, error)
	NewReader(src io.Reader, opts ...Option) (*Reader, error)
}

type options struct {
	enc       TextEncoding
	leaveOpen bool
	bufSize   int
	log       zerolog.Logger
}

// Option configures a session at construction time.
type Option func(*options)

// WithEncoding selects the text encoding for string payloads. Default UTF8.
func WithEncoding(enc TextEncoding) Option {
	return func(o *options) { o.enc = enc }
}

// WithLeaveOpen keeps the underlying stream open when the session is closed.
func WithLeaveOpen() Option {
	return func(o *options) { o.leaveOpen = true }
}

// WithLogger attaches a logger to the session; events are emitted at trace
// level. Default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithBufferSize sets the size of the session's stream buffer.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufSize = n }
}

func buildOptions(opts []Option) (options, error) {
	o := options{enc: UTF8, bufSize: 4096, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.enc == nil {
		return o, ErrUnsupportedEncoding
	}
	return o, nil
}

var formats = xsync.NewMap[string, Format]()

// RegisterFormat makes a wire format selectable by name. Registering a name
// twice replaces the earlier format.
func RegisterFormat(f Format) {
	formats.Store(f.Name(), f)
}

// LookupFormat returns the Format registered under name.
func LookupFormat(name string) (Format, error) {
	f, ok := formats.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return f, nil
}

// BclBinaryName is the registry name of the built-in binary format.
const BclBinaryName = "BclBinary"

type bclBinary struct{}

var _ Format = bclBinary{}

func (bclBinary) Name() string { return BclBinaryName }

func (bclBinary) NewWriter(dst io.Writer, opts ...Option) (*Writer, error) {
	if dst == nil {
		return nil, ErrNilStream
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newWriter(dst, o), nil
}

func (bclBinary) NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	if src == nil {
		return nil, ErrNilStream
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newReader(src, o), nil
}

func init() {
	RegisterFormat(bclBinary{})
}
