package s3io

import (
	"bytes"
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// LineSource yields lines one at a time. The method values Reader.NextLine
// and LineScanner.Next are both LineSources.
type LineSource func(ctx context.Context) (line []byte, ok bool, err error)

// DecodeJSONLines decodes each non-blank line from next as a JSON value and
// passes it to fn. Decoding stops at the first error from next, from the
// decoder, or from fn. A trailing sep and surrounding whitespace are trimmed
// before decoding; a nil sep trims whitespace only.
//
// Decode errors carry the 1-based line number.
func DecodeJSONLines(ctx context.Context, next LineSource, sep []byte, fn func(record any) error) error {
	for lineNo := 1; ; lineNo++ {
		line, ok, err := next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if len(sep) > 0 {
			line = bytes.TrimSuffix(line, sep)
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var record any
		if err := jsonCodec.Unmarshal(trimmed, &record); err != nil {
			return fmt.Errorf("s3io: line %d: %w", lineNo, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// MarshalJSON encodes a decoded record as compact JSON.
func MarshalJSON(record any) ([]byte, error) {
	return jsonCodec.Marshal(record)
}
