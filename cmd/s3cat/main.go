// Command s3cat reads objects from S3, MinIO, GCS, or the local filesystem
// through guarded range requests. Every read fails if the object is
// rewritten while it is being read.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justapithecus/s3io/internal/config"
	"github.com/justapithecus/s3io/internal/instrumentation"
	"github.com/justapithecus/s3io/internal/log"
	s3client "github.com/justapithecus/s3io/internal/s3"
	"github.com/justapithecus/s3io/s3io"
	"github.com/justapithecus/s3io/s3io/gcs"
	minioobj "github.com/justapithecus/s3io/s3io/minio"
	s3obj "github.com/justapithecus/s3io/s3io/s3"
)

// exitModified is the exit code when an object changed during a read.
const exitModified = 3

type globalOptions struct {
	ConfigFile        string `name:"config.file" help:"YAML configuration file." type:"path"`
	ConfigExpandEnv   bool   `name:"config.expand-env" help:"Expand environment variable references in the configuration file."`
	Backend           string `help:"Backend to read from (s3, minio, gcs, file). Overrides the configuration file."`
	Bucket            string `help:"Bucket to read from, or the root directory for the file backend."`
	LogLevel          string `name:"log.level" help:"Log level (debug, info, warn, error)."`
	LogFormat         string `name:"log.format" help:"Log format (logfmt, json)."`
	MetricsListenAddr string `name:"metrics.listen-addr" help:"Serve Prometheus metrics on this address while running."`
}

type cli struct {
	Globals globalOptions `embed:""`

	Cat           catCmd           `cmd:"" help:"Write an object to stdout."`
	Lines         linesCmd         `cmd:"" help:"Write the lines of an object to stdout."`
	JSONL         jsonlCmd         `cmd:"" name:"jsonl" help:"Decode each line of an object as JSON and write it compactly."`
	ParquetSchema parquetSchemaCmd `cmd:"" name:"parquet-schema" help:"Print the row count and schema of a parquet object."`
}

// env is the resolved runtime shared by all commands.
type env struct {
	cfg     *config.Config
	logger  kitlog.Logger
	metrics *instrumentation.Metrics
	stdout  io.Writer
}

func main() {
	// bootstrap logger until the configuration is loaded
	if _, err := log.InitLogger(log.FormatLogfmt, log.LevelInfo); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, prometheus.DefaultRegisterer))
}

func run(args []string, stdout, stderr io.Writer, reg prometheus.Registerer) int {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("s3cat"),
		kong.Description("Read objects through guarded range requests."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	e, err := newEnv(&c.Globals, stdout, stderr, reg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if addr := c.Globals.MetricsListenAddr; addr != "" {
		go func() {
			err := http.ListenAndServe(addr, promhttp.Handler())
			level.Error(e.logger).Log("msg", "metrics server stopped", "err", err)
		}()
	}

	if err := kctx.Run(e); err != nil {
		level.Error(e.logger).Log("msg", "command failed", "command", kctx.Command(), "err", err)
		if errors.Is(err, s3io.ErrObjectModified) {
			return exitModified
		}
		return 1
	}
	return 0
}

// newEnv loads the configuration file and overlays the command line flags.
func newEnv(g *globalOptions, stdout, stderr io.Writer, reg prometheus.Registerer) (*env, error) {
	cfg, err := config.Load(g.ConfigFile, g.ConfigExpandEnv)
	if err != nil {
		return nil, err
	}

	// overlay with cli
	if g.Backend != "" {
		cfg.Backend = g.Backend
	}
	if g.Bucket != "" {
		switch cfg.Backend {
		case config.BackendS3:
			cfg.S3.Bucket = g.Bucket
		case config.BackendMinio:
			cfg.Minio.Bucket = g.Bucket
		case config.BackendGCS:
			cfg.GCS.BucketName = g.Bucket
		case config.BackendFile:
			cfg.File.Root = g.Bucket
		}
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := log.NewLogger(stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log.Logger = logger

	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: instrumentation.NewMetrics(reg),
		stdout:  stdout,
	}, nil
}

// open resolves key on the configured backend and returns a Reader over it.
func (e *env) open(ctx context.Context, key string, opts ...s3io.Option) (*s3io.Reader, error) {
	obj, err := e.object(ctx, key)
	if err != nil {
		return nil, err
	}

	all := append(e.cfg.ReaderOptions(), s3io.WithLogger(e.logger))
	all = append(all, opts...)
	return s3io.NewReader(ctx, instrumentation.NewObject(obj, e.metrics), all...)
}

func (e *env) object(ctx context.Context, key string) (s3io.Object, error) {
	cfg := e.cfg
	switch cfg.Backend {
	case config.BackendS3:
		client, err := s3client.NewClient(ctx, s3client.ClientConfig{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			SessionToken: cfg.S3.SessionToken,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 client: %w", err)
		}
		bucket, err := s3obj.NewBucket(client, s3obj.Config{Bucket: cfg.S3.Bucket, Prefix: cfg.S3.Prefix})
		if err != nil {
			return nil, err
		}
		obj, err := bucket.Object(key)
		if err != nil {
			return nil, err
		}
		return obj, nil

	case config.BackendMinio:
		core, err := minioobj.NewCore(&cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("creating minio client: %w", err)
		}
		obj, err := minioobj.NewObject(core, cfg.Minio.Bucket, key)
		if err != nil {
			return nil, err
		}
		return obj, nil

	case config.BackendGCS:
		bucket, err := gcs.NewBucket(ctx, &cfg.GCS)
		if err != nil {
			return nil, err
		}
		obj, err := gcs.NewObject(bucket, key)
		if err != nil {
			return nil, err
		}
		return obj, nil

	case config.BackendFile:
		return s3io.OpenFileInRoot(cfg.File.Root, key)

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
