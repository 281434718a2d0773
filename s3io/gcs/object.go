// Package gcs provides an Object adapter for s3io over Google Cloud Storage.
//
// GCS has no If-Unmodified-Since on reads. The adapter pins the object
// generation observed by LastModified and sends every range read with a
// generation-match precondition; a rewrite makes GCS answer 412.
// Metadata-only updates do not change the generation and are not detected.
package gcs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cristalhq/hedgedhttp"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	google_http "google.golang.org/api/transport/http"

	"github.com/justapithecus/s3io/internal/instrumentation"
	"github.com/justapithecus/s3io/s3io"
)

// Config configures the GCS client.
type Config struct {
	BucketName        string        `yaml:"bucket_name"`
	Endpoint          string        `yaml:"endpoint"`
	HedgeRequestsAt   time.Duration `yaml:"hedge_requests_at"`
	HedgeRequestsUpTo int           `yaml:"hedge_requests_up_to"`
	Insecure          bool          `yaml:"insecure"`
}

// NewBucket creates a bucket handle from cfg.
func NewBucket(ctx context.Context, cfg *Config) (*storage.BucketHandle, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	// start with default transport
	customTransport := http.DefaultTransport.(*http.Transport).Clone()

	// add google auth
	transportOptions := []option.ClientOption{
		option.WithScopes(storage.ScopeReadOnly),
	}
	if cfg.Insecure {
		transportOptions = append(transportOptions, option.WithoutAuthentication())
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	transport, err := google_http.NewTransport(ctx, customTransport, transportOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating google http transport: %w", err)
	}

	// hedge if desired (0 means disabled)
	if cfg.HedgeRequestsAt != 0 {
		var stats *hedgedhttp.Stats
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	// Build client
	storageClientOptions := []option.ClientOption{
		option.WithHTTPClient(&http.Client{
			Transport: transport,
		}),
		option.WithScopes(storage.ScopeReadOnly),
	}
	if cfg.Endpoint != "" {
		storageClientOptions = append(storageClientOptions, option.WithEndpoint(cfg.Endpoint))
		storageClientOptions = append(storageClientOptions, storage.WithJSONReads())
	}

	client, err := storage.NewClient(ctx, storageClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return client.Bucket(cfg.BucketName), nil
}

// -----------------------------------------------------------------------------
// Object
// -----------------------------------------------------------------------------

// handle is the subset of storage.ObjectHandle used by Object.
type handle interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewRangeReader(ctx context.Context, generation, offset, length int64) (io.ReadCloser, error)
}

// storageHandle adapts *storage.ObjectHandle to handle.
type storageHandle struct {
	h *storage.ObjectHandle
}

func (s storageHandle) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return s.h.Attrs(ctx)
}

func (s storageHandle) NewRangeReader(ctx context.Context, generation, offset, length int64) (io.ReadCloser, error) {
	h := s.h
	if generation != 0 {
		h = h.If(storage.Conditions{GenerationMatch: generation})
	}
	r, err := h.NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Object implements s3io.Object for a single GCS object.
// It is safe for concurrent use.
type Object struct {
	h   handle
	key string

	mu         sync.Mutex
	generation int64
	updated    time.Time
}

// NewObject returns the Object named key in bucket. No request is made.
func NewObject(bucket *storage.BucketHandle, key string) (*Object, error) {
	if bucket == nil {
		return nil, errors.New("gcs: bucket is required")
	}
	if key == "" {
		return nil, errors.New("gcs: key is required")
	}
	return &Object{h: storageHandle{h: bucket.Object(key)}, key: key}, nil
}

func (o *Object) Key() string {
	return o.key
}

func (o *Object) ContentLength(ctx context.Context) (int64, error) {
	attrs, err := o.h.Attrs(ctx)
	if err != nil {
		return 0, readError(err)
	}
	return attrs.Size, nil
}

// LastModified returns the object's update time and pins its generation
// for subsequent range reads.
func (o *Object) LastModified(ctx context.Context) (time.Time, error) {
	attrs, err := o.h.Attrs(ctx)
	if err != nil {
		return time.Time{}, readError(err)
	}
	o.mu.Lock()
	o.generation, o.updated = attrs.Generation, attrs.Updated
	o.mu.Unlock()
	return attrs.Updated, nil
}

// FetchRange reads bytes [start, end] of the pinned generation.
// Returns s3io.ErrPreconditionFailed if the pinned generation is newer than
// ifUnmodifiedSince or if GCS rejects the generation match.
func (o *Object) FetchRange(ctx context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("gcs: invalid range %d-%d", start, end)
	}

	o.mu.Lock()
	generation, updated := o.generation, o.updated
	o.mu.Unlock()

	if generation == 0 {
		attrs, err := o.h.Attrs(ctx)
		if err != nil {
			return nil, readError(err)
		}
		generation, updated = attrs.Generation, attrs.Updated
	}
	if updated.After(ifUnmodifiedSince) {
		return nil, fmt.Errorf("gcs: range read %s: %w", o.key, s3io.ErrPreconditionFailed)
	}

	r, err := o.h.NewRangeReader(ctx, generation, start, end-start+1)
	if err != nil {
		if isRangeNotSatisfiable(err) {
			return []byte{}, nil
		}
		return nil, readError(err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, readError(err)
	}
	return data, nil
}

func readError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return s3io.ErrNotFound
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("gcs: %w: %w", s3io.ErrPreconditionFailed, err)
	}
	return err
}

func isRangeNotSatisfiable(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestedRangeNotSatisfiable
}

// Ensure Object implements s3io.Object
var _ s3io.Object = (*Object)(nil)
