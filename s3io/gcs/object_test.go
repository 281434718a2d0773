package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/justapithecus/s3io/s3io"
)

// fakeHandle is an in-memory handle that keeps every generation.
type fakeHandle struct {
	mu          sync.Mutex
	generations map[int64][]byte
	current     int64
	updated     time.Time
	attrsCalls  int
	lastGen     int64
}

func newFakeHandle(data string) *fakeHandle {
	return &fakeHandle{
		generations: map[int64][]byte{1: []byte(data)},
		current:     1,
		updated:     time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}
}

func (f *fakeHandle) rewrite(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current++
	f.generations[f.current] = []byte(data)
	f.updated = f.updated.Add(time.Minute)
}

func (f *fakeHandle) Attrs(context.Context) (*storage.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrsCalls++
	if f.current == 0 {
		return nil, storage.ErrObjectNotExist
	}
	return &storage.ObjectAttrs{
		Size:       int64(len(f.generations[f.current])),
		Generation: f.current,
		Updated:    f.updated,
	}, nil
}

func (f *fakeHandle) NewRangeReader(_ context.Context, generation, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGen = generation
	if f.current == 0 {
		return nil, storage.ErrObjectNotExist
	}
	if generation != 0 && generation != f.current {
		return nil, &googleapi.Error{Code: http.StatusPreconditionFailed, Message: "conditionNotMet"}
	}
	data := f.generations[f.current]
	if offset >= int64(len(data)) {
		return nil, &googleapi.Error{Code: http.StatusRequestedRangeNotSatisfiable}
	}
	end := min(offset+length, int64(len(data)))
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func TestObject_PinsGeneration(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandle("hello world")
	obj := &Object{h: h, key: "data.txt"}

	since, err := obj.LastModified(ctx)
	require.NoError(t, err)

	data, err := obj.FetchRange(ctx, 0, 4, since)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(1), h.lastGen)

	h.rewrite("HELLO WORLD")

	_, err = obj.FetchRange(ctx, 5, 10, since)
	assert.ErrorIs(t, err, s3io.ErrPreconditionFailed)
}

func TestObject_NewerPinRejectsOlderGuard(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandle("v1")
	obj := &Object{h: h, key: "data.txt"}

	first, err := obj.LastModified(ctx)
	require.NoError(t, err)

	h.rewrite("v2")

	// A second reader re-pins to the new generation
	second, err := obj.LastModified(ctx)
	require.NoError(t, err)

	_, err = obj.FetchRange(ctx, 0, 1, first)
	assert.ErrorIs(t, err, s3io.ErrPreconditionFailed)

	data, err := obj.FetchRange(ctx, 0, 1, second)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestObject_FetchWithoutPin(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandle("abc")
	obj := &Object{h: h, key: "k"}

	data, err := obj.FetchRange(ctx, 1, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "bc", string(data))
	assert.Equal(t, 1, h.attrsCalls)
	assert.Equal(t, int64(1), h.lastGen)
}

func TestObject_RangeNotSatisfiable(t *testing.T) {
	ctx := context.Background()
	obj := &Object{h: newFakeHandle("abc"), key: "k"}

	data, err := obj.FetchRange(ctx, 5, 9, time.Now())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestObject_NotFound(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandle("")
	h.current = 0
	obj := &Object{h: h, key: "missing"}

	_, err := obj.ContentLength(ctx)
	assert.ErrorIs(t, err, s3io.ErrNotFound)
	_, err = obj.LastModified(ctx)
	assert.ErrorIs(t, err, s3io.ErrNotFound)
	_, err = obj.FetchRange(ctx, 0, 1, time.Now())
	assert.ErrorIs(t, err, s3io.ErrNotFound)
}

func TestReader_OverGCS_ModifiedDuringRead(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandle("a\nb\nc\n")
	obj := &Object{h: h, key: "lines.txt"}

	r, err := s3io.NewReader(ctx, obj, s3io.WithChunkSize(2))
	require.NoError(t, err)

	line, ok, err := r.NextLine(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a\n", string(line))

	h.rewrite("x\ny\nz\n")

	_, _, err = r.NextLine(ctx)
	assert.ErrorIs(t, err, s3io.ErrObjectModified)
}

func TestNewObject_Validation(t *testing.T) {
	_, err := NewObject(nil, "k")
	assert.Error(t, err)
}

func TestNewBucket_RequiresName(t *testing.T) {
	_, err := NewBucket(context.Background(), &Config{})
	assert.Error(t, err)
}

func TestReadError(t *testing.T) {
	errA := storage.ErrObjectNotExist
	errB := readError(errA)
	assert.Equal(t, s3io.ErrNotFound, errB)

	errB = readError(&googleapi.Error{Code: http.StatusPreconditionFailed})
	assert.ErrorIs(t, errB, s3io.ErrPreconditionFailed)

	wups := fmt.Errorf("wups")
	errB = readError(wups)
	assert.Equal(t, wups, errB)
}
