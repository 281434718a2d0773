// Package log builds the go-kit logger used by the s3cat command.
package log

import (
	"fmt"
	"io"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is a shared go-kit logger.
// Prefer accepting a non-global logger as an argument.
var Logger = kitlog.NewNopLogger()

// Supported formats and levels.
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// InitLogger initialises the global gokit logger on stderr and returns it.
func InitLogger(logFormat, logLevel string) (kitlog.Logger, error) {
	logger, err := NewLogger(os.Stderr, logFormat, logLevel)
	if err != nil {
		return nil, err
	}
	Logger = logger
	return logger, nil
}

// NewLogger returns a leveled logger writing to w.
func NewLogger(w io.Writer, logFormat, logLevel string) (kitlog.Logger, error) {
	lvl, err := levelOption(logLevel)
	if err != nil {
		return nil, err
	}

	writer := kitlog.NewSyncWriter(w)
	var logger kitlog.Logger
	switch logFormat {
	case FormatLogfmt, "":
		logger = kitlog.NewLogfmtLogger(writer)
	case FormatJSON:
		logger = kitlog.NewJSONLogger(writer)
	default:
		return nil, fmt.Errorf("invalid log format %q", logFormat)
	}

	// use UTC timestamps and skip 3 stack frames.
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.Caller(3))

	// Must put the level filter last for efficiency.
	return level.NewFilter(logger, lvl), nil
}

func levelOption(logLevel string) (level.Option, error) {
	switch logLevel {
	case LevelDebug:
		return level.AllowDebug(), nil
	case LevelInfo, "":
		return level.AllowInfo(), nil
	case LevelWarn:
		return level.AllowWarn(), nil
	case LevelError:
		return level.AllowError(), nil
	default:
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
}
