package s3io

import (
	"compress/gzip"
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compressor identifies a compression format and opens streams in it.
//
// Decompress is the read side used over a Reader's Stream; Compress exists
// so fixtures and tools can produce objects the read side understands.
type Compressor interface {
	// Name returns the format name ("gzip", "zstd", "noop").
	Name() string

	// Extension returns the key suffix for the format, including the dot.
	Extension() string

	// Compress wraps w so that written bytes are compressed.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps r so that read bytes are decompressed.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// CompressorForKey picks a Compressor from the key's extension.
// Keys without a known extension get the noop compressor.
func CompressorForKey(key string) Compressor {
	for _, c := range []Compressor{NewGzipCompressor(), NewZstdCompressor()} {
		if strings.HasSuffix(key, c.Extension()) {
			return c
		}
	}
	return NewNoOpCompressor()
}

// CompressorByName returns the Compressor with the given name, or nil.
func CompressorByName(name string) Compressor {
	switch name {
	case "gzip", "gz":
		return NewGzipCompressor()
	case "zstd", "zst":
		return NewZstdCompressor()
	case "noop", "none", "":
		return NewNoOpCompressor()
	default:
		return nil
	}
}

// DecompressedLines returns a LineScanner over the decompressed stream of r.
// The returned closer releases the decompressor and must be called once
// scanning is finished. Modification of the object surfaces as a
// ReadModifiedError from LineScanner.Next.
func (r *Reader) DecompressedLines(ctx context.Context, c Compressor) (*LineScanner, io.Closer, error) {
	rc, err := c.Decompress(r.Stream(ctx))
	if err != nil {
		return nil, nil, err
	}
	s, err := NewLineScanner(ChunkReaderFrom(rc), r.chunkSize, r.separator)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return s, rc, nil
}

// -----------------------------------------------------------------------------
// Gzip
// -----------------------------------------------------------------------------

type gzipCompressor struct{}

// NewGzipCompressor creates a gzip compressor (.gz).
func NewGzipCompressor() Compressor {
	return &gzipCompressor{}
}

func (g *gzipCompressor) Name() string {
	return "gzip"
}

func (g *gzipCompressor) Extension() string {
	return ".gz"
}

func (g *gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (g *gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd
// -----------------------------------------------------------------------------

type zstdCompressor struct{}

// NewZstdCompressor creates a Zstandard compressor (.zst).
func NewZstdCompressor() Compressor {
	return &zstdCompressor{}
}

func (z *zstdCompressor) Name() string {
	return "zstd"
}

func (z *zstdCompressor) Extension() string {
	return ".zst"
}

func (z *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (z *zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	// Single goroutine: the upstream is a guarded, sequential range reader.
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp
// -----------------------------------------------------------------------------

type noopCompressor struct{}

// NewNoOpCompressor creates a pass-through compressor.
func NewNoOpCompressor() Compressor {
	return &noopCompressor{}
}

func (n *noopCompressor) Name() string {
	return "noop"
}

func (n *noopCompressor) Extension() string {
	return ""
}

func (n *noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (n *noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
