// Package s3io provides a sequential, stream-like view over a remote,
// range-addressable object such as a blob in an object store.
//
// A Reader tracks a logical cursor over the object and turns cursor-relative
// reads into inclusive byte-range fetches. Every fetch is conditional on the
// object not having changed since the Reader was constructed; a change is
// reported as a ReadModifiedError and is fatal to the read in progress.
//
// Lines are produced lazily by a LineScanner that pulls fixed-size chunks
// through the Reader and reassembles lines across chunk boundaries.
package s3io

import (
	"context"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Object interface
// -----------------------------------------------------------------------------

// Object abstracts a single remote object that can be fetched by byte range.
//
// Implementations target S3, MinIO, GCS, local files, or memory. Object
// construction, credentials, and transport belong to the implementation.
type Object interface {
	// Key identifies the object. It is used in error messages only.
	Key() string

	// ContentLength returns the current size of the object in bytes.
	ContentLength(ctx context.Context) (int64, error)

	// LastModified returns the object's current modification time.
	LastModified(ctx context.Context) (time.Time, error)

	// FetchRange returns bytes [start, end] (inclusive) of the object.
	// It returns an error matching ErrPreconditionFailed when the object
	// was modified after ifUnmodifiedSince.
	FetchRange(ctx context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error)
}

// ChunkReader is the source a LineScanner pulls chunks from.
//
// ReadN returns at most n bytes. An empty result means the source is
// exhausted.
type ChunkReader interface {
	ReadN(ctx context.Context, n int64) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates the remote object does not exist.
	ErrNotFound = errNotFound{}

	// ErrPreconditionFailed is returned by Object.FetchRange when the
	// conditional fetch was rejected because the object changed.
	ErrPreconditionFailed = errPreconditionFailed{}

	// ErrObjectModified matches every ReadModifiedError.
	ErrObjectModified = errObjectModified{}

	// ErrNegativeCount indicates a negative byte count was passed to ReadN.
	ErrNegativeCount = errNegativeCount{}

	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errInvalidChunkSize{}

	// ErrInvalidSeparator indicates an empty line separator.
	ErrInvalidSeparator = errInvalidSeparator{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPreconditionFailed struct{}

func (errPreconditionFailed) Error() string { return "precondition failed" }

type errObjectModified struct{}

func (errObjectModified) Error() string { return "object modified during read" }

type errNegativeCount struct{}

func (errNegativeCount) Error() string { return "byte count must not be negative" }

type errInvalidChunkSize struct{}

func (errInvalidChunkSize) Error() string { return "chunk size must be positive" }

type errInvalidSeparator struct{}

func (errInvalidSeparator) Error() string { return "line separator must not be empty" }

// ReadModifiedError indicates the object was modified between the Reader
// being opened and a range being fetched. The Reader's position is left
// unchanged. The condition is not retriable for that Reader.
type ReadModifiedError struct {
	// Key identifies the object.
	Key string

	// Since is the modification time captured when the Reader was opened.
	Since time.Time
}

func (e *ReadModifiedError) Error() string {
	return fmt.Sprintf("object %s was updated during read (modified since %s)",
		e.Key, e.Since.UTC().Format(time.RFC1123))
}

// Is reports whether target is ErrObjectModified.
func (e *ReadModifiedError) Is(target error) bool {
	return target == ErrObjectModified
}
