// Package s3 provides an S3-compatible Object adapter for s3io.
//
// This adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2,
// and other S3-compatible object stores reachable through aws-sdk-go-v2.
//
// # Conditional Reads
//
// Every FetchRange issues a GetObject with an inclusive Range header
// ("bytes=start-end") and an If-Unmodified-Since header carrying the
// Reader's captured modification time. S3 answers 412 PreconditionFailed
// when the object changed; that is mapped to s3io.ErrPreconditionFailed.
//
// If-Unmodified-Since has one-second resolution. Two writes within the same
// second as the captured timestamp are indistinguishable to the guard.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justapithecus/s3io/s3io"
)

// ErrInvalidKey indicates an empty or escaping object key.
var ErrInvalidKey = errors.New("s3: invalid key")

// API defines the subset of the S3 client interface used by the adapter.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for a Bucket.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all objects.
	// If set, all keys are prefixed with this value (with a trailing slash added if missing).
	Prefix string
}

// Bucket hands out Objects in one S3 bucket.
type Bucket struct {
	client API
	bucket string
	prefix string
}

// NewBucket creates a Bucket with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	bucket, err := s3obj.NewBucket(client, s3obj.Config{Bucket: "my-bucket"})
//	obj, err := bucket.Object("logs/app.log")
//	r, err := s3io.NewReader(ctx, obj)
func NewBucket(client API, cfg Config) (*Bucket, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Bucket{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Object returns the Object stored under key. No request is made.
// Returns ErrInvalidKey for empty or escaping keys.
func (b *Bucket) Object(key string) (*Object, error) {
	fullKey, err := b.validateKey(key)
	if err != nil {
		return nil, err
	}
	return &Object{client: b.client, bucket: b.bucket, key: fullKey}, nil
}

// validateKey validates and returns the full key.
func (b *Bucket) validateKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}

	return b.prefix + cleaned, nil
}

// -----------------------------------------------------------------------------
// Object
// -----------------------------------------------------------------------------

// Object implements s3io.Object for a single S3 key.
// It is safe for concurrent use.
type Object struct {
	client API
	bucket string
	key    string
}

// NewObject creates an Object for bucket/key without prefix handling.
func NewObject(client API, bucket, key string) (*Object, error) {
	b, err := NewBucket(client, Config{Bucket: bucket})
	if err != nil {
		return nil, err
	}
	return b.Object(key)
}

// Key returns the full object key, including any bucket prefix.
func (o *Object) Key() string {
	return o.key
}

// ContentLength returns the object size from HeadObject.
// Returns s3io.ErrNotFound if the object does not exist.
func (o *Object) ContentLength(ctx context.Context) (int64, error) {
	out, err := o.head(ctx)
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

// LastModified returns the object's Last-Modified time from HeadObject.
// Returns s3io.ErrNotFound if the object does not exist.
func (o *Object) LastModified(ctx context.Context) (time.Time, error) {
	out, err := o.head(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return aws.ToTime(out.LastModified), nil
}

// FetchRange reads bytes [start, end] with an If-Unmodified-Since guard.
// Returns s3io.ErrPreconditionFailed if the object changed after
// ifUnmodifiedSince, s3io.ErrNotFound if it no longer exists, and an empty
// slice if start is beyond the end of the object.
func (o *Object) FetchRange(ctx context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("s3: invalid range %d-%d", start, end)
	}

	// S3 Range header format: "bytes=start-end" (inclusive)
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, end)

	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:            aws.String(o.bucket),
		Key:               aws.String(o.key),
		Range:             aws.String(rangeHeader),
		IfUnmodifiedSince: aws.Time(ifUnmodifiedSince),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("s3: range read %s: %w", o.key, s3io.ErrPreconditionFailed)
		}
		if isNotFound(err) {
			return nil, s3io.ErrNotFound
		}
		// Check for InvalidRange (start beyond EOF)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: reading range body: %w", err)
	}

	return data, nil
}

func (o *Object) head(ctx context.Context) (*s3.HeadObjectOutput, error) {
	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, s3io.ErrNotFound
		}
		return nil, fmt.Errorf("s3: head object: %w", err)
	}
	return out, nil
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// isPreconditionFailed checks if an error is a rejected conditional request.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "412"
	}
	return false
}

// Ensure Object implements s3io.Object
var _ s3io.Object = (*Object)(nil)
