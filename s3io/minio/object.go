// Package minio provides an Object adapter for s3io over the MinIO client.
//
// It works against MinIO and any S3-compatible endpoint. Range fetches can
// be hedged: when HedgeRequestsAt is set, a second request is raced against
// a slow first one.
package minio

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cristalhq/hedgedhttp"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/justapithecus/s3io/internal/instrumentation"
	"github.com/justapithecus/s3io/s3io"
)

// Error codes returned by S3-compatible servers.
const (
	errCodeNoSuchKey          = "NoSuchKey"
	errCodePreconditionFailed = "PreconditionFailed"
	errCodeInvalidRange       = "InvalidRange"
)

// Config configures a MinIO core client.
type Config struct {
	Bucket             string        `yaml:"bucket"`
	Endpoint           string        `yaml:"endpoint"`
	Region             string        `yaml:"region"`
	AccessKey          string        `yaml:"access_key"`
	SecretKey          string        `yaml:"secret_key"`
	SessionToken       string        `yaml:"session_token"`
	Insecure           bool          `yaml:"insecure"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	ForcePathStyle     bool          `yaml:"forcepathstyle"`
	HedgeRequestsAt    time.Duration `yaml:"hedge_requests_at"`
	HedgeRequestsUpTo  int           `yaml:"hedge_requests_up_to"`
}

// API is the subset of *minio.Core used by Object.
type API interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// NewCore creates a MinIO core client from cfg. Credentials are resolved
// from the static keys first, then the environment and local credential
// files.
func NewCore(cfg *Config) (*minio.Core, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio: endpoint is required")
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
				SessionToken:    cfg.SessionToken,
			},
		},
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.FileMinioClient{},
	})

	customTransport, err := minio.DefaultTransport(!cfg.Insecure)
	if err != nil {
		return nil, errors.Wrap(err, "create minio.DefaultTransport")
	}
	if cfg.InsecureSkipVerify && customTransport.TLSClientConfig != nil {
		customTransport.TLSClientConfig.InsecureSkipVerify = true
	}

	var transport http.RoundTripper = customTransport
	if cfg.HedgeRequestsAt != 0 {
		var stats *hedgedhttp.Stats
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, errors.Wrap(err, "create hedged transport")
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	opts := &minio.Options{
		Region:    cfg.Region,
		Secure:    !cfg.Insecure,
		Creds:     creds,
		Transport: transport,
	}
	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	return minio.NewCore(cfg.Endpoint, opts)
}

// -----------------------------------------------------------------------------
// Object
// -----------------------------------------------------------------------------

// Object implements s3io.Object over a MinIO client.
type Object struct {
	api    API
	bucket string
	key    string
}

// NewObject creates an Object for bucket/key. No request is made.
func NewObject(api API, bucket, key string) (*Object, error) {
	if api == nil {
		return nil, errors.New("minio: client is required")
	}
	if bucket == "" {
		return nil, errors.New("minio: bucket is required")
	}
	if key == "" {
		return nil, errors.New("minio: key is required")
	}
	return &Object{api: api, bucket: bucket, key: key}, nil
}

func (o *Object) Key() string {
	return o.key
}

func (o *Object) ContentLength(ctx context.Context) (int64, error) {
	info, err := o.stat(ctx)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (o *Object) LastModified(ctx context.Context) (time.Time, error) {
	info, err := o.stat(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return info.LastModified, nil
}

// FetchRange reads bytes [start, end] guarded by If-Unmodified-Since.
// A zero ifUnmodifiedSince disables the guard.
func (o *Object) FetchRange(ctx context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, errors.Wrap(err, "error setting headers for range read in minio")
	}
	if !ifUnmodifiedSince.IsZero() {
		if err := opts.SetUnmodified(ifUnmodifiedSince); err != nil {
			return nil, errors.Wrap(err, "error setting precondition for range read in minio")
		}
	}

	body, _, _, err := o.api.GetObject(ctx, o.bucket, o.key, opts)
	if err != nil {
		if minio.ToErrorResponse(err).Code == errCodeInvalidRange {
			return []byte{}, nil
		}
		return nil, readError(err, o.bucket, o.key)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, readError(err, o.bucket, o.key)
	}
	return data, nil
}

func (o *Object) stat(ctx context.Context) (minio.ObjectInfo, error) {
	info, err := o.api.StatObject(ctx, o.bucket, o.key, minio.StatObjectOptions{})
	if err != nil {
		return minio.ObjectInfo{}, readError(err, o.bucket, o.key)
	}
	return info, nil
}

// readError maps MinIO error responses to s3io sentinels.
func readError(err error, bucket, key string) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == errCodeNoSuchKey:
		return s3io.ErrNotFound
	case resp.Code == errCodePreconditionFailed, resp.StatusCode == http.StatusPreconditionFailed:
		return errors.Wrapf(s3io.ErrPreconditionFailed, "minio: range read %s/%s", bucket, key)
	}
	return errors.Wrapf(err, "error in range read from minio backend, bucket: %s, objName: %s", bucket, key)
}

// Ensure implementations satisfy their interfaces
var (
	_ s3io.Object = (*Object)(nil)
	_ API         = (*minio.Core)(nil)
)
