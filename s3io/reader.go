package s3io

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// Reader presents an Object as a cursor-based byte stream.
//
// The object's modification time is captured when the Reader is created and
// submitted as an If-Unmodified-Since guard on every fetch. The content
// length is fetched lazily by the first read and cached for the Reader's
// lifetime; EOF refreshes it on every call.
//
// A Reader is not safe for concurrent use. Use one Reader per goroutine;
// independent Readers over the same object do not interfere.
type Reader struct {
	obj          Object
	lastModified time.Time

	pos       int64
	size      int64
	sizeKnown bool

	chunkSize int64
	separator []byte
	logger    log.Logger

	// lines backs NextLine. Created on first use and never reset.
	lines *LineScanner
}

// NewReader creates a Reader over obj and captures its modification time.
//
// Default behavior:
//   - Chunk size: DefaultChunkSize
//   - Separator: DefaultSeparator
//   - Logger: no-op
func NewReader(ctx context.Context, obj Object, opts ...Option) (*Reader, error) {
	if obj == nil {
		return nil, errors.New("s3io: object is required")
	}

	cfg := defaultReaderConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, fmt.Errorf("s3io: %w", err)
		}
	}

	lastModified, err := obj.LastModified(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3io: last modified %s: %w", obj.Key(), err)
	}

	return &Reader{
		obj:          obj,
		lastModified: lastModified,
		chunkSize:    cfg.chunkSize,
		separator:    cfg.separator,
		logger:       log.With(cfg.logger, "key", obj.Key()),
	}, nil
}

// Open is an alias for NewReader.
func Open(ctx context.Context, obj Object, opts ...Option) (*Reader, error) {
	return NewReader(ctx, obj, opts...)
}

// Key returns the underlying object's key.
func (r *Reader) Key() string {
	return r.obj.Key()
}

// Pos returns the current byte position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// LastModified returns the modification time captured at construction.
func (r *Reader) LastModified() time.Time {
	return r.lastModified
}

// Separator returns the configured line separator.
func (r *Reader) Separator() []byte {
	return r.separator
}

// ReadN reads up to n bytes from the current position and advances it.
//
// Returns an empty slice without any remote call if n is 0, and without a
// range fetch if the position is at or past the cached content length.
// The range is clamped to the last byte of the object.
//
// Returns *ReadModifiedError if the object changed since the Reader was
// created; the position is unchanged in that case and for every other error.
func (r *Reader) ReadN(ctx context.Context, n int64) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	return r.read(ctx, n)
}

// ReadAll reads from the current position to the end of the object in a
// single range fetch. The byte count defaults to the cached content length
// and is clamped like any other read.
func (r *Reader) ReadAll(ctx context.Context) ([]byte, error) {
	size, err := r.contentLength(ctx)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, size)
}

// ReadNInto behaves like ReadN and, when bytes were fetched, replaces the
// contents of out with them. On failure, for n == 0, and at end of object
// out is left untouched.
func (r *Reader) ReadNInto(ctx context.Context, n int64, out *bytes.Buffer) ([]byte, error) {
	data, err := r.ReadN(ctx, n)
	if err != nil {
		return nil, err
	}
	if out != nil && len(data) > 0 {
		out.Reset()
		out.Write(data)
	}
	return data, nil
}

// EOF reports whether the position is at or past the end of the object.
//
// Unlike the read methods, EOF refetches the content length on every call
// and stores it, so it observes growth or truncation of the object. It does
// not check the modification guard; only reads enforce it.
func (r *Reader) EOF(ctx context.Context) (bool, error) {
	size, err := r.obj.ContentLength(ctx)
	if err != nil {
		return false, err
	}
	r.size, r.sizeKnown = size, true
	return r.pos >= size, nil
}

// Rewind resets the position to the beginning of the object.
// The captured modification time and cached content length are kept.
func (r *Reader) Rewind() {
	r.pos = 0
}

// Lines returns a lazy sequence of lines starting at the current position.
// A nil sep uses the configured separator. Each line includes its separator,
// except possibly the last.
//
// The sequence shares the Reader's cursor; iterating it again yields nothing
// unless Rewind is called first. Iteration stops after the first error.
func (r *Reader) Lines(ctx context.Context, sep []byte) iter.Seq2[[]byte, error] {
	if sep == nil {
		sep = r.separator
	}
	return func(yield func([]byte, error) bool) {
		s, err := NewLineScanner(r, r.chunkSize, sep)
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			line, ok, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(line, nil) {
				return
			}
		}
	}
}

// NextLine returns the next line using the configured separator.
// ok is false once the object is exhausted.
//
// NextLine is backed by a single scanner per Reader. Mixing it with direct
// reads or Rewind gives inconsistent results.
func (r *Reader) NextLine(ctx context.Context) (line []byte, ok bool, err error) {
	if r.lines == nil {
		r.lines, err = NewLineScanner(r, r.chunkSize, r.separator)
		if err != nil {
			return nil, false, err
		}
	}
	return r.lines.Next(ctx)
}

// Stream returns an io.Reader that reads through r using ctx.
//
// The stream fetches the configured chunk size per range request regardless
// of the size of the caller's buffer, and serves smaller reads from the
// fetched chunk. The Reader's position therefore advances a whole chunk at a
// time. Fetches are subject to the modification guard. io.EOF is returned
// once the object is exhausted.
func (r *Reader) Stream(ctx context.Context) io.Reader {
	return &streamReader{r: r, ctx: ctx}
}

// read is the single fetch path shared by every read method.
func (r *Reader) read(ctx context.Context, n int64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}

	size, err := r.contentLength(ctx)
	if err != nil {
		return nil, err
	}
	if r.pos >= size {
		return []byte{}, nil
	}

	upper := size - 1
	if n <= size-r.pos {
		upper = r.pos + n - 1
	}

	data, err := r.obj.FetchRange(ctx, r.pos, upper, r.lastModified)
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			level.Warn(r.logger).Log("msg", "object modified during read", "since", r.lastModified, "pos", r.pos)
			return nil, &ReadModifiedError{Key: r.obj.Key(), Since: r.lastModified}
		}
		return nil, err
	}

	level.Debug(r.logger).Log("msg", "range fetched", "start", r.pos, "end", upper, "bytes", len(data))
	r.pos = upper + 1
	return data, nil
}

// contentLength returns the cached size, fetching it on first use.
func (r *Reader) contentLength(ctx context.Context) (int64, error) {
	if r.sizeKnown {
		return r.size, nil
	}
	size, err := r.obj.ContentLength(ctx)
	if err != nil {
		return 0, err
	}
	r.size, r.sizeKnown = size, true
	return size, nil
}

// streamReader adapts a Reader to io.Reader.
type streamReader struct {
	r   *Reader
	ctx context.Context

	// unread remainder of the last fetched chunk
	pending []byte
}

func (s *streamReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.pending) == 0 {
		data, err := s.r.ReadN(s.ctx, s.r.chunkSize)
		if err != nil {
			return 0, err
		}
		if len(data) == 0 {
			return 0, io.EOF
		}
		s.pending = data
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Ensure Reader implements ChunkReader
var _ ChunkReader = (*Reader)(nil)
