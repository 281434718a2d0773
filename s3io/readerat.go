package s3io

import (
	"context"
	"errors"
	"io"
	"time"
)

// ReaderAt returns an io.ReaderAt over the object for random access.
//
// Reads go through the same modification guard as the Reader but do not
// move its position. The object size is the Reader's cached content length.
// The returned value also reports that size via Size().
func (r *Reader) ReaderAt(ctx context.Context) (*ObjectReaderAt, error) {
	size, err := r.contentLength(ctx)
	if err != nil {
		return nil, err
	}
	return &ObjectReaderAt{
		obj:          r.obj,
		lastModified: r.lastModified,
		size:         size,
		baseCtx:      ctx,
	}, nil
}

// ObjectReaderAt implements io.ReaderAt using guarded range fetches.
// It holds no cursor and is safe for concurrent use if the underlying
// Object is.
type ObjectReaderAt struct {
	obj          Object
	lastModified time.Time
	size         int64
	baseCtx      context.Context
}

// Size returns the object size captured when the ReaderAt was created.
func (a *ObjectReaderAt) Size() int64 {
	return a.size
}

// ReadAt implements io.ReaderAt.
func (a *ObjectReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("s3io: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= a.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= a.size {
		end = a.size - 1
	}

	data, err := a.obj.FetchRange(a.baseCtx, off, end, a.lastModified)
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return 0, &ReadModifiedError{Key: a.obj.Key(), Since: a.lastModified}
		}
		return 0, err
	}

	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Ensure ObjectReaderAt implements io.ReaderAt
var _ io.ReaderAt = (*ObjectReaderAt)(nil)
