package s3io

import (
	"fmt"

	"github.com/go-kit/log"
)

const (
	// DefaultChunkSize is the number of bytes fetched per range request
	// during line iteration.
	DefaultChunkSize = 5 * 1024 * 1024 // 5MiB

	// DefaultSeparator is the line separator used when none is configured.
	DefaultSeparator = "\n"
)

// readerConfig holds the resolved configuration for a reader.
type readerConfig struct {
	chunkSize int64
	separator []byte
	logger    log.Logger
}

func defaultReaderConfig() *readerConfig {
	return &readerConfig{
		chunkSize: DefaultChunkSize,
		separator: []byte(DefaultSeparator),
		logger:    log.NewNopLogger(),
	}
}

// Option configures reader construction.
type Option interface {
	apply(*readerConfig) error
}

// chunkSizeOption implements Option for WithChunkSize.
type chunkSizeOption struct {
	size int64
}

// WithChunkSize sets the number of bytes fetched per range request when
// iterating lines.
// Default: DefaultChunkSize (5MiB).
func WithChunkSize(size int64) Option {
	return &chunkSizeOption{size: size}
}

func (o *chunkSizeOption) apply(cfg *readerConfig) error {
	if o.size <= 0 {
		return fmt.Errorf("WithChunkSize(%d): %w", o.size, ErrInvalidChunkSize)
	}
	cfg.chunkSize = o.size
	return nil
}

// separatorOption implements Option for WithSeparator.
type separatorOption struct {
	sep []byte
}

// WithSeparator sets the line separator used by Lines and NextLine.
// Multi-byte separators are supported.
// Default: DefaultSeparator ("\n").
func WithSeparator(sep []byte) Option {
	return &separatorOption{sep: sep}
}

func (o *separatorOption) apply(cfg *readerConfig) error {
	if len(o.sep) == 0 {
		return fmt.Errorf("WithSeparator: %w", ErrInvalidSeparator)
	}
	cfg.separator = append([]byte(nil), o.sep...)
	return nil
}

// loggerOption implements Option for WithLogger.
type loggerOption struct {
	logger log.Logger
}

// WithLogger sets the logger used for fetch diagnostics.
// Default: a no-op logger.
func WithLogger(l log.Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) apply(cfg *readerConfig) error {
	if o.logger == nil {
		cfg.logger = log.NewNopLogger()
		return nil
	}
	cfg.logger = o.logger
	return nil
}
