/*
 * Package compress wraps the codecs available for a delta's literal stream
 * behind one small interface. The generator only needs three things: push
 * bytes in, learn how many compressed bytes actually reached the underlying
 * writer (the number bandwidth pacing is charged against), and flush whatever
 * the codec is still holding at end of stream.
 */
package compress

import (
    "compress/zlib"
    "io"

    "github.com/DataDog/zstd"
    "github.com/pkg/errors"
)

// ErrUnknownCodec is returned when a codec name does not resolve.
var ErrUnknownCodec = errors.New("unknown compression codec")

/*
 * Compressor is the literal-path codec contract. BytesWritten reports bytes
 * that reached the underlying writer so far; codecs buffer internally, so the
 * count typically jumps at block boundaries and again at Finish. Finish
 * flushes and releases the codec - no Write may follow it.
 */
type Compressor interface {
    Write(p []byte) (int, error)
    BytesWritten() uint64
    Finish() error
}

// countingWriter tallies bytes on their way to the destination.
type countingWriter struct {
    dest    io.Writer
    written uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
    n, err := c.dest.Write(p)
    c.written += uint64(n)
    return n, errors.Wrap(err, "write compressed bytes")
}

type zlibCompressor struct {
    counter *countingWriter
    writer  *zlib.Writer
}

// NewZlib builds a deflate compressor, the wire-compatible default.
func NewZlib(dest io.Writer) Compressor {
    counter := &countingWriter{dest: dest}
    return &zlibCompressor{
        counter: counter,
        writer:  zlib.NewWriter(counter),
    }
}

func (z *zlibCompressor) Write(p []byte) (int, error) {
    n, err := z.writer.Write(p)
    return n, errors.Wrap(err, "zlib compress")
}

func (z *zlibCompressor) BytesWritten() uint64 {
    return z.counter.written
}

func (z *zlibCompressor) Finish() error {
    return errors.Wrap(z.writer.Close(), "zlib finish")
}

type zstdCompressor struct {
    counter *countingWriter
    writer  *zstd.Writer
}

// NewZstd builds a zstd compressor at the default level.
func NewZstd(dest io.Writer) Compressor {
    counter := &countingWriter{dest: dest}
    return &zstdCompressor{
        counter: counter,
        writer:  zstd.NewWriter(counter),
    }
}

// NewZstdLevel builds a zstd compressor at an explicit level.
func NewZstdLevel(dest io.Writer, level int) Compressor {
    counter := &countingWriter{dest: dest}
    return &zstdCompressor{
        counter: counter,
        writer:  zstd.NewWriterLevel(counter, level),
    }
}

func (z *zstdCompressor) Write(p []byte) (int, error) {
    n, err := z.writer.Write(p)
    return n, errors.Wrap(err, "zstd compress")
}

func (z *zstdCompressor) BytesWritten() uint64 {
    return z.counter.written
}

func (z *zstdCompressor) Finish() error {
    return errors.Wrap(z.writer.Close(), "zstd finish")
}

/*
 * passthrough hands literals straight to the destination. Used when the
 * delta is left uncompressed; BytesWritten then equals the literal bytes
 * themselves, which keeps the pacing arithmetic uniform.
 */
type passthrough struct {
    counter countingWriter
}

// NewPassthrough builds the identity codec.
func NewPassthrough(dest io.Writer) Compressor {
    return &passthrough{counter: countingWriter{dest: dest}}
}

func (p *passthrough) Write(data []byte) (int, error) {
    return p.counter.Write(data)
}

func (p *passthrough) BytesWritten() uint64 {
    return p.counter.written
}

func (p *passthrough) Finish() error {
    return nil
}

// ByName resolves a codec constructor from its configuration name.
func ByName(name string) (func(io.Writer) Compressor, error) {
    switch name {
    case "zlib", "deflate":
        return NewZlib, nil
    case "zstd":
        return NewZstd, nil
    case "none", "":
        return NewPassthrough, nil
    }
    return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
}

// Decompressor opens a read side matching a codec name, for consumers that
// reinflate the literal stream.
func Decompressor(name string, source io.Reader) (io.ReadCloser, error) {
    switch name {
    case "zlib", "deflate":
        reader, err := zlib.NewReader(source)
        return reader, errors.Wrap(err, "open zlib reader")
    case "zstd":
        return zstd.NewReader(source), nil
    case "none", "":
        return io.NopCloser(source), nil
    }
    return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
}
