package s3io

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// scanState is the LineScanner state.
type scanState int

const (
	stateFetching scanState = iota
	stateSplitting
	stateFlushing
	stateDone
)

func (s scanState) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateSplitting:
		return "splitting"
	case stateFlushing:
		return "flushing"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("scanState(%d)", int(s))
	}
}

// LineScanner splits a chunked byte source into lines.
//
// Chunks are pulled from the source on demand; a single chunk may yield many
// lines, and a line may span many chunks. Each returned line includes its
// separator, except a final line at the end of the source that has none.
// Empty trailing segments are never produced.
//
// A LineScanner is forward-only and not restartable. Once it reports the end
// of the stream or an error, every further call reports the end of stream.
type LineScanner struct {
	src       ChunkReader
	chunkSize int64
	sep       []byte

	line  []byte // accumulated partial line
	chunk []byte // most recently fetched chunk
	off   int    // pending split offset into chunk
	state scanState
}

// NewLineScanner creates a LineScanner reading chunkSize bytes at a time
// from src and splitting on sep.
func NewLineScanner(src ChunkReader, chunkSize int64, sep []byte) (*LineScanner, error) {
	if src == nil {
		return nil, errors.New("s3io: chunk source is required")
	}
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if len(sep) == 0 {
		return nil, ErrInvalidSeparator
	}
	return &LineScanner{
		src:       src,
		chunkSize: chunkSize,
		sep:       append([]byte(nil), sep...),
		state:     stateFetching,
	}, nil
}

// Next returns the next line. ok is false at the end of the stream.
// An error is terminal: the scanner moves to its done state.
func (s *LineScanner) Next(ctx context.Context) (line []byte, ok bool, err error) {
	for {
		switch s.state {
		case stateFetching:
			chunk, err := s.src.ReadN(ctx, s.chunkSize)
			if err != nil {
				s.finish()
				return nil, false, err
			}
			if len(chunk) == 0 {
				s.state = stateFlushing
				continue
			}
			s.chunk, s.off = chunk, 0
			s.state = stateSplitting

		case stateSplitting:
			if end := s.splitEnd(); end >= 0 {
				line = append(s.line, s.chunk[s.off:end]...)
				s.line = nil
				s.off = end
				if s.off == len(s.chunk) {
					s.state = stateFetching
				}
				return line, true, nil
			}
			s.line = append(s.line, s.chunk[s.off:]...)
			s.chunk, s.off = nil, 0
			s.state = stateFetching

		case stateFlushing:
			line = s.line
			s.finish()
			if len(line) > 0 {
				return line, true, nil
			}
			return nil, false, nil

		default:
			return nil, false, nil
		}
	}
}

// splitEnd returns the chunk offset just past the next separator at or after
// s.off, or -1 if the rest of the chunk holds no complete separator.
// A separator that began in the accumulated line is completed first.
func (s *LineScanner) splitEnd() int {
	rest := s.chunk[s.off:]

	if s.off == 0 && len(s.line) > 0 && len(s.sep) > 1 {
		// Longest prefix of sep held by the line's tail wins: it starts earliest.
		maxHead := min(len(s.sep)-1, len(s.line))
		for head := maxHead; head > 0; head-- {
			tail := s.sep[head:]
			if bytes.HasSuffix(s.line, s.sep[:head]) && bytes.HasPrefix(rest, tail) {
				return len(tail)
			}
		}
	}

	i := bytes.Index(rest, s.sep)
	if i < 0 {
		return -1
	}
	return s.off + i + len(s.sep)
}

func (s *LineScanner) finish() {
	s.line, s.chunk, s.off = nil, nil, 0
	s.state = stateDone
}

// -----------------------------------------------------------------------------
// io.Reader chunk source
// -----------------------------------------------------------------------------

// ChunkReaderFrom adapts an io.Reader to ChunkReader so that a LineScanner
// can tokenize any stream, such as a decompressed object.
func ChunkReaderFrom(r io.Reader) ChunkReader {
	return &ioChunkReader{r: r}
}

// ioChunkReader reads full chunks from an io.Reader.
type ioChunkReader struct {
	r   io.Reader
	eof bool
}

func (c *ioChunkReader) ReadN(_ context.Context, n int64) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if c.eof || n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(c.r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.eof = true
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}
