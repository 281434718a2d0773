package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/s3io/s3io"
)

// mockAPI serves a single object and records the headers of each GetObject.
type mockAPI struct {
	mu           sync.Mutex
	data         []byte
	lastModified time.Time
	missing      bool
	getErr       error
	headers      []http.Header
}

func (m *mockAPI) GetObject(_ context.Context, _, _ string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := opts.Header()
	m.headers = append(m.headers, h)

	if m.getErr != nil {
		return nil, minio.ObjectInfo{}, nil, m.getErr
	}
	if m.missing {
		return nil, minio.ObjectInfo{}, nil, minio.ErrorResponse{Code: errCodeNoSuchKey, StatusCode: http.StatusNotFound}
	}
	if s := h.Get("If-Unmodified-Since"); s != "" {
		since, err := http.ParseTime(s)
		if err != nil {
			return nil, minio.ObjectInfo{}, nil, err
		}
		if m.lastModified.After(since) {
			return nil, minio.ObjectInfo{}, nil, minio.ErrorResponse{Code: errCodePreconditionFailed, StatusCode: http.StatusPreconditionFailed}
		}
	}

	var start, end int64
	_, _ = fmt.Sscanf(h.Get("Range"), "bytes=%d-%d", &start, &end)
	if start >= int64(len(m.data)) {
		return nil, minio.ObjectInfo{}, nil, minio.ErrorResponse{Code: errCodeInvalidRange, StatusCode: http.StatusRequestedRangeNotSatisfiable}
	}
	if end >= int64(len(m.data)) {
		end = int64(len(m.data)) - 1
	}
	return io.NopCloser(bytes.NewReader(m.data[start : end+1])), minio.ObjectInfo{}, nil, nil
}

func (m *mockAPI) StatObject(_ context.Context, _, _ string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.missing {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: errCodeNoSuchKey, StatusCode: http.StatusNotFound}
	}
	return minio.ObjectInfo{Size: int64(len(m.data)), LastModified: m.lastModified}, nil
}

func (m *mockAPI) replace(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.lastModified = m.lastModified.Add(time.Minute)
}

func newMockAPI(data string) *mockAPI {
	return &mockAPI{
		data:         []byte(data),
		lastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewObject_Validation(t *testing.T) {
	_, err := NewObject(nil, "b", "k")
	assert.Error(t, err)
	_, err = NewObject(newMockAPI(""), "", "k")
	assert.Error(t, err)
	_, err = NewObject(newMockAPI(""), "b", "")
	assert.Error(t, err)
}

func TestObject_FetchRange_Headers(t *testing.T) {
	api := newMockAPI("hello world")
	obj, err := NewObject(api, "bucket", "data.txt")
	require.NoError(t, err)

	since := api.lastModified
	data, err := obj.FetchRange(context.Background(), 6, 10, since)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	require.Len(t, api.headers, 1)
	assert.Equal(t, "bytes=6-10", api.headers[0].Get("Range"))
	assert.Equal(t, since.Format(http.TimeFormat), api.headers[0].Get("If-Unmodified-Since"))
}

func TestObject_FetchRange_ZeroSinceSkipsGuard(t *testing.T) {
	api := newMockAPI("abc")
	obj, err := NewObject(api, "bucket", "k")
	require.NoError(t, err)

	_, err = obj.FetchRange(context.Background(), 0, 0, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, api.headers[0].Get("If-Unmodified-Since"))
}

func TestObject_ErrNotFound(t *testing.T) {
	api := newMockAPI("")
	api.missing = true
	obj, err := NewObject(api, "bucket", "missing")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = obj.ContentLength(ctx)
	assert.ErrorIs(t, err, s3io.ErrNotFound)
	_, err = obj.LastModified(ctx)
	assert.ErrorIs(t, err, s3io.ErrNotFound)
	_, err = obj.FetchRange(ctx, 0, 1, time.Now())
	assert.ErrorIs(t, err, s3io.ErrNotFound)
}

func TestObject_FetchRange_InvalidRange(t *testing.T) {
	obj, err := NewObject(newMockAPI("abc"), "bucket", "k")
	require.NoError(t, err)

	data, err := obj.FetchRange(context.Background(), 10, 12, time.Now())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestReadError(t *testing.T) {
	assert.Nil(t, readError(nil, "b", "k"))

	err := readError(minio.ErrorResponse{Code: errCodeNoSuchKey}, "b", "k")
	assert.Equal(t, s3io.ErrNotFound, err)

	err = readError(minio.ErrorResponse{Code: errCodePreconditionFailed}, "b", "k")
	assert.ErrorIs(t, err, s3io.ErrPreconditionFailed)

	err = readError(minio.ErrorResponse{StatusCode: http.StatusPreconditionFailed}, "b", "k")
	assert.ErrorIs(t, err, s3io.ErrPreconditionFailed)

	wups := fmt.Errorf("wups")
	err = readError(wups, "b", "k")
	assert.ErrorIs(t, err, wups)
	assert.NotErrorIs(t, err, s3io.ErrPreconditionFailed)
}

func TestReader_OverMinio_ModifiedDuringRead(t *testing.T) {
	ctx := context.Background()
	api := newMockAPI("one\ntwo\nthree\n")
	obj, err := NewObject(api, "bucket", "lines.txt")
	require.NoError(t, err)

	r, err := s3io.NewReader(ctx, obj, s3io.WithChunkSize(4))
	require.NoError(t, err)

	line, ok, err := r.NextLine(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one\n", string(line))

	api.replace([]byte("changed\n"))

	_, ok, err = r.NextLine(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, s3io.ErrObjectModified)

	var modErr *s3io.ReadModifiedError
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, "lines.txt", modErr.Key)
}

// -----------------------------------------------------------------------------
// Against a fake S3 endpoint
// -----------------------------------------------------------------------------

// fakeServer serves one object at /bucket/key with Range and
// If-Unmodified-Since support. Every request increments counter.
func fakeServer(t *testing.T, content []byte, lastModified time.Time, returnIn time.Duration, counter *int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(returnIn)
		atomic.AddInt32(counter, 1)

		if r.URL.Query().Has("location") {
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))
			return
		}
		if r.URL.Path != "/bucket/key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Content-Type", "text/plain")

		if s := r.Header.Get("If-Unmodified-Since"); s != "" {
			since, err := http.ParseTime(s)
			if err == nil && lastModified.Truncate(time.Second).After(since) {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusPreconditionFailed)
				if r.Method != http.MethodHead {
					_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`))
				}
				return
			}
		}

		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			w.WriteHeader(http.StatusOK)
			return
		}

		body := content
		status := http.StatusOK
		if rng := r.Header.Get("Range"); strings.HasPrefix(rng, "bytes=") {
			var start, end int
			_, _ = fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
			if end >= len(content) {
				end = len(content) - 1
			}
			body = content[start : end+1]
			status = http.StatusPartialContent
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestObject_AgainstServer(t *testing.T) {
	var count int32
	modTime := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	server := fakeServer(t, []byte("alpha\nbeta\ngamma"), modTime, 0, &count)

	core, err := NewCore(&Config{
		Region:         "us-east-1",
		AccessKey:      "test",
		SecretKey:      "test",
		Insecure:       true,
		ForcePathStyle: true,
		Endpoint:       server.URL[7:], // [7:] -> strip http://
	})
	require.NoError(t, err)

	obj, err := NewObject(core, "bucket", "key")
	require.NoError(t, err)

	ctx := context.Background()
	size, err := obj.ContentLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(16), size)

	data, err := obj.FetchRange(ctx, 6, 9, modTime)
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	_, err = obj.FetchRange(ctx, 0, 4, modTime.Add(-time.Minute))
	assert.ErrorIs(t, err, s3io.ErrPreconditionFailed)
}

func TestHedge(t *testing.T) {
	tests := []struct {
		name                   string
		returnIn               time.Duration
		hedgeAt                time.Duration
		expectedHedgedRequests int32
	}{
		{
			name:                   "hedge disabled",
			expectedHedgedRequests: 1,
		},
		{
			name:                   "hedge enabled doesn't hit",
			hedgeAt:                time.Hour,
			expectedHedgedRequests: 1,
		},
		{
			name:                   "hedge enabled and hits",
			hedgeAt:                time.Millisecond,
			returnIn:               100 * time.Millisecond,
			expectedHedgedRequests: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count := int32(0)
			server := fakeServer(t, []byte("hello world"), time.Now().Add(-time.Hour), tc.returnIn, &count)

			core, err := NewCore(&Config{
				Region:            "us-east-1",
				AccessKey:         "test",
				SecretKey:         "test",
				Insecure:          true,
				ForcePathStyle:    true,
				Endpoint:          server.URL[7:], // [7:] -> strip http://
				HedgeRequestsAt:   tc.hedgeAt,
				HedgeRequestsUpTo: 2,
			})
			require.NoError(t, err)

			obj, err := NewObject(core, "bucket", "key")
			require.NoError(t, err)

			ctx := context.Background()

			// the first call on each client may initiate an extra http request
			// clearing that here
			_, _ = obj.FetchRange(ctx, 0, 4, time.Now())
			time.Sleep(tc.returnIn)
			atomic.StoreInt32(&count, 0)

			_, _ = obj.FetchRange(ctx, 0, 4, time.Now())
			time.Sleep(tc.returnIn)
			assert.Equal(t, tc.expectedHedgedRequests, atomic.LoadInt32(&count))
		})
	}
}
