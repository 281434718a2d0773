package s3io_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/s3io/s3io"
	s3obj "github.com/justapithecus/s3io/s3io/s3"
)

// -----------------------------------------------------------------------------
// Cross-adapter test harness
//
// These tests verify that a Reader behaves identically over every local
// Object implementation: memory, file, and the S3 adapter over the mock
// client.
// -----------------------------------------------------------------------------

// adapterTestCase opens an object holding data and can rewrite it.
type adapterTestCase struct {
	name    string
	open    func(t *testing.T, data []byte) s3io.Object
	rewrite func(t *testing.T, obj s3io.Object, data []byte)
	missing func(t *testing.T) (s3io.Object, error)
}

func crossAdapters() []adapterTestCase {
	return []adapterTestCase{
		{
			name: "Memory",
			open: func(_ *testing.T, data []byte) s3io.Object {
				return s3io.NewMemoryObject("data.txt", data)
			},
			rewrite: func(_ *testing.T, obj s3io.Object, data []byte) {
				obj.(*s3io.MemoryObject).Replace(data)
			},
		},
		{
			name: "File",
			open: func(t *testing.T, data []byte) s3io.Object {
				path := filepath.Join(t.TempDir(), "data.txt")
				if err := os.WriteFile(path, data, 0o644); err != nil {
					t.Fatal(err)
				}
				obj, err := s3io.OpenFile(path)
				if err != nil {
					t.Fatalf("OpenFile failed: %v", err)
				}
				return obj
			},
			rewrite: func(t *testing.T, obj s3io.Object, data []byte) {
				if err := os.WriteFile(obj.Key(), data, 0o644); err != nil {
					t.Fatal(err)
				}
				future := time.Now().Add(2 * time.Second)
				if err := os.Chtimes(obj.Key(), future, future); err != nil {
					t.Fatal(err)
				}
			},
			missing: func(t *testing.T) (s3io.Object, error) {
				return s3io.OpenFile(filepath.Join(t.TempDir(), "missing.txt"))
			},
		},
		{
			name: "S3",
			open: func(t *testing.T, data []byte) s3io.Object {
				client := s3obj.NewMockS3Client()
				client.Put("data.txt", data)
				obj, err := s3obj.NewObject(client, "bucket", "data.txt")
				if err != nil {
					t.Fatalf("NewObject failed: %v", err)
				}
				return &mockBacked{Object: obj, client: client}
			},
			rewrite: func(_ *testing.T, obj s3io.Object, data []byte) {
				obj.(*mockBacked).client.Put("data.txt", data)
			},
			missing: func(t *testing.T) (s3io.Object, error) {
				return s3obj.NewObject(s3obj.NewMockS3Client(), "bucket", "missing.txt")
			},
		},
	}
}

// mockBacked keeps the mock client next to the object so tests can rewrite it.
type mockBacked struct {
	*s3obj.Object
	client *s3obj.MockS3Client
}

const crossData = "alpha\nbeta\r\ngamma\n\ndelta"

func TestCrossAdapter_Lines(t *testing.T) {
	ctx := context.Background()
	want := []string{"alpha\n", "beta\r\n", "gamma\n", "\n", "delta"}

	for _, tc := range crossAdapters() {
		t.Run(tc.name, func(t *testing.T) {
			for _, chunk := range []int64{1, 3, 7, 1024} {
				r, err := s3io.NewReader(ctx, tc.open(t, []byte(crossData)), s3io.WithChunkSize(chunk))
				if err != nil {
					t.Fatalf("NewReader failed: %v", err)
				}
				var got []string
				for line, err := range r.Lines(ctx, nil) {
					if err != nil {
						t.Fatalf("chunk %d: Lines failed: %v", chunk, err)
					}
					got = append(got, string(line))
				}
				if len(got) != len(want) {
					t.Fatalf("chunk %d: got %q, want %q", chunk, got, want)
				}
				for i := range want {
					if got[i] != want[i] {
						t.Errorf("chunk %d: line %d = %q, want %q", chunk, i, got[i], want[i])
					}
				}
			}
		})
	}
}

func TestCrossAdapter_ReadN(t *testing.T) {
	ctx := context.Background()

	for _, tc := range crossAdapters() {
		t.Run(tc.name, func(t *testing.T) {
			r, err := s3io.NewReader(ctx, tc.open(t, []byte(crossData)))
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}

			first, err := r.ReadN(ctx, 5)
			if err != nil {
				t.Fatalf("ReadN failed: %v", err)
			}
			if string(first) != "alpha" {
				t.Errorf("ReadN = %q, want %q", first, "alpha")
			}

			rest, err := r.ReadAll(ctx)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if string(rest) != crossData[5:] {
				t.Errorf("ReadAll = %q, want %q", rest, crossData[5:])
			}

			eof, err := r.EOF(ctx)
			if err != nil {
				t.Fatalf("EOF failed: %v", err)
			}
			if !eof {
				t.Error("expected EOF")
			}

			tail, err := r.ReadN(ctx, 10)
			if err != nil {
				t.Fatalf("ReadN at EOF failed: %v", err)
			}
			if len(tail) != 0 {
				t.Errorf("ReadN at EOF = %q, want empty", tail)
			}
		})
	}
}

func TestCrossAdapter_ReaderAt(t *testing.T) {
	ctx := context.Background()

	for _, tc := range crossAdapters() {
		t.Run(tc.name, func(t *testing.T) {
			r, err := s3io.NewReader(ctx, tc.open(t, []byte(crossData)))
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			ra, err := r.ReaderAt(ctx)
			if err != nil {
				t.Fatalf("ReaderAt failed: %v", err)
			}
			if ra.Size() != int64(len(crossData)) {
				t.Errorf("Size = %d, want %d", ra.Size(), len(crossData))
			}

			buf := make([]byte, 4)
			n, err := ra.ReadAt(buf, 6)
			if err != nil {
				t.Fatalf("ReadAt failed: %v", err)
			}
			if string(buf[:n]) != "beta" {
				t.Errorf("ReadAt = %q, want %q", buf[:n], "beta")
			}

			n, err = ra.ReadAt(buf, int64(len(crossData))-2)
			if !errors.Is(err, io.EOF) {
				t.Errorf("expected io.EOF on short read, got: %v", err)
			}
			if string(buf[:n]) != "ta" {
				t.Errorf("short ReadAt = %q, want %q", buf[:n], "ta")
			}

			got, err := io.ReadAll(io.NewSectionReader(ra, 0, ra.Size()))
			if err != nil {
				t.Fatalf("SectionReader failed: %v", err)
			}
			if !bytes.Equal(got, []byte(crossData)) {
				t.Errorf("SectionReader = %q", got)
			}
		})
	}
}

func TestCrossAdapter_Modified_Parity(t *testing.T) {
	ctx := context.Background()

	for _, tc := range crossAdapters() {
		t.Run(tc.name, func(t *testing.T) {
			obj := tc.open(t, []byte(crossData))
			r, err := s3io.NewReader(ctx, obj, s3io.WithChunkSize(4))
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			if _, err := r.ReadN(ctx, 4); err != nil {
				t.Fatalf("ReadN failed: %v", err)
			}

			tc.rewrite(t, obj, []byte("rewritten"))

			_, err = r.ReadN(ctx, 4)
			var modErr *s3io.ReadModifiedError
			if !errors.As(err, &modErr) {
				t.Fatalf("expected ReadModifiedError, got: %v", err)
			}
			if modErr.Key != obj.Key() {
				t.Errorf("Key = %q, want %q", modErr.Key, obj.Key())
			}
			if r.Pos() != 4 {
				t.Errorf("Pos = %d, want 4", r.Pos())
			}
		})
	}
}

func TestCrossAdapter_NotFound_Parity(t *testing.T) {
	ctx := context.Background()

	for _, tc := range crossAdapters() {
		if tc.missing == nil {
			continue
		}
		t.Run(tc.name, func(t *testing.T) {
			obj, err := tc.missing(t)
			if err == nil {
				_, err = s3io.NewReader(ctx, obj)
			}
			if !errors.Is(err, s3io.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got: %v", err)
			}
		})
	}
}
