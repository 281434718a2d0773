package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go"

	"github.com/justapithecus/s3io/s3io"
)

type catCmd struct {
	Key string `arg:"" help:"Object key."`
}

func (cmd *catCmd) Run(e *env) error {
	ctx := context.Background()
	r, err := e.open(ctx, cmd.Key)
	if err != nil {
		return err
	}

	chunkSize := e.cfg.Reader.ChunkSize
	for {
		chunk, err := r.ReadN(ctx, chunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		if _, err := e.stdout.Write(chunk); err != nil {
			return err
		}
	}
	level.Debug(e.logger).Log("msg", "cat finished", "key", r.Key(), "bytes", r.Pos())
	return nil
}

type linesCmd struct {
	Key        string `arg:"" help:"Object key."`
	Separator  string `help:"Line separator. Go escape sequences such as \\n and \\r\\n are interpreted."`
	ChunkSize  int64  `name:"chunk-size" help:"Bytes fetched per range request."`
	Decompress string `default:"auto" enum:"auto,gzip,zstd,none" help:"Decompress the object before splitting (auto picks by key extension)."`
	Max        int    `help:"Stop after this many lines. Zero reads every line."`
}

func (cmd *linesCmd) Run(e *env) error {
	ctx := context.Background()

	var opts []s3io.Option
	if cmd.Separator != "" {
		sep, err := unescape(cmd.Separator)
		if err != nil {
			return err
		}
		opts = append(opts, s3io.WithSeparator([]byte(sep)))
	}
	if cmd.ChunkSize != 0 {
		opts = append(opts, s3io.WithChunkSize(cmd.ChunkSize))
	}

	r, err := e.open(ctx, cmd.Key, opts...)
	if err != nil {
		return err
	}

	next, closeFn, err := lineSource(ctx, r, cmd.Decompress)
	if err != nil {
		return err
	}
	defer closeFn()

	n := 0
	for cmd.Max == 0 || n < cmd.Max {
		line, ok, err := next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, err := e.stdout.Write(line); err != nil {
			return err
		}
		n++
	}
	level.Debug(e.logger).Log("msg", "lines finished", "key", r.Key(), "lines", n)
	return nil
}

type jsonlCmd struct {
	Key        string `arg:"" help:"Object key."`
	Decompress string `default:"auto" enum:"auto,gzip,zstd,none" help:"Decompress the object before splitting (auto picks by key extension)."`
}

func (cmd *jsonlCmd) Run(e *env) error {
	ctx := context.Background()
	r, err := e.open(ctx, cmd.Key)
	if err != nil {
		return err
	}

	next, closeFn, err := lineSource(ctx, r, cmd.Decompress)
	if err != nil {
		return err
	}
	defer closeFn()

	return s3io.DecodeJSONLines(ctx, next, r.Separator(), func(record any) error {
		b, err := s3io.MarshalJSON(record)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(e.stdout, "%s\n", b)
		return err
	})
}

type parquetSchemaCmd struct {
	Key string `arg:"" help:"Object key."`
}

func (cmd *parquetSchemaCmd) Run(e *env) error {
	ctx := context.Background()
	r, err := e.open(ctx, cmd.Key)
	if err != nil {
		return err
	}

	ra, err := r.ReaderAt(ctx)
	if err != nil {
		return err
	}
	file, err := parquet.OpenFile(ra, ra.Size())
	if err != nil {
		return fmt.Errorf("opening parquet %s: %w", r.Key(), err)
	}

	fmt.Fprintf(e.stdout, "rows: %d\n", file.NumRows())
	fmt.Fprintln(e.stdout, file.Schema().String())
	return nil
}

// lineSource returns the line source for r, decompressing according to mode.
func lineSource(ctx context.Context, r *s3io.Reader, mode string) (s3io.LineSource, func(), error) {
	var c s3io.Compressor
	switch mode {
	case "auto":
		c = s3io.CompressorForKey(r.Key())
	default:
		c = s3io.CompressorByName(mode)
	}

	if c == nil || c.Name() == "noop" {
		return r.NextLine, func() {}, nil
	}

	s, closer, err := r.DecompressedLines(ctx, c)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s stream: %w", c.Name(), err)
	}
	return s.Next, func() { _ = closer.Close() }, nil
}

func unescape(s string) (string, error) {
	u, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return "", fmt.Errorf("invalid separator %q: %w", s, err)
	}
	return u, nil
}
