// Package config loads the s3cat configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v2"

	"github.com/justapithecus/s3io/s3io"
	"github.com/justapithecus/s3io/s3io/gcs"
	"github.com/justapithecus/s3io/s3io/minio"
)

// Backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendGCS   = "gcs"
	BackendFile  = "file"
)

// Config is the root configuration.
type Config struct {
	Backend string       `yaml:"backend"`
	S3      S3Config     `yaml:"s3"`
	Minio   minio.Config `yaml:"minio"`
	GCS     gcs.Config   `yaml:"gcs"`
	File    FileConfig   `yaml:"file"`
	Reader  ReaderConfig `yaml:"reader"`
	Log     LogConfig    `yaml:"log"`
}

// S3Config configures the aws-sdk-go-v2 backend.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
}

// FileConfig configures the local filesystem backend.
type FileConfig struct {
	Root string `yaml:"root"`
}

// ReaderConfig configures Readers.
type ReaderConfig struct {
	ChunkSize int64  `yaml:"chunk_size"`
	Separator string `yaml:"separator"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with defaults applied.
func Default() *Config {
	return &Config{
		Backend: BackendS3,
		S3: S3Config{
			Region: "us-east-1",
		},
		Minio: minio.Config{
			Region:            "us-east-1",
			HedgeRequestsUpTo: 2,
		},
		GCS: gcs.Config{
			HedgeRequestsUpTo: 2,
		},
		File: FileConfig{
			Root: ".",
		},
		Reader: ReaderConfig{
			ChunkSize: s3io.DefaultChunkSize,
			Separator: s3io.DefaultSeparator,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "logfmt",
		},
	}
}

// Load reads the YAML file at path over the defaults. When expandEnv is
// set, ${VAR} references are substituted from the environment first.
// An empty path returns the defaults.
func Load(path string, expandEnv bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configFile %s: %w", path, err)
	}

	if expandEnv {
		s, err := envsubst.EvalEnv(string(buff))
		if err != nil {
			return nil, fmt.Errorf("failed to expand env vars from configFile %s: %w", path, err)
		}
		buff = []byte(s)
	}

	if err := yaml.UnmarshalStrict(buff, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configFile %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configFile %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendS3, BackendMinio, BackendGCS, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Reader.ChunkSize <= 0 {
		return fmt.Errorf("reader.chunk_size: %w", s3io.ErrInvalidChunkSize)
	}
	if c.Reader.Separator == "" {
		return fmt.Errorf("reader.separator: %w", s3io.ErrInvalidSeparator)
	}
	return nil
}

// ReaderOptions returns the s3io options for the reader section.
func (c *Config) ReaderOptions() []s3io.Option {
	return []s3io.Option{
		s3io.WithChunkSize(c.Reader.ChunkSize),
		s3io.WithSeparator([]byte(c.Reader.Separator)),
	}
}
