package s3io

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrInvalidPath indicates a path that would escape the storage root.
var ErrInvalidPath = errors.New("invalid path: escapes storage root")

// -----------------------------------------------------------------------------
// Filesystem Object
// -----------------------------------------------------------------------------

// fileObject implements Object over a local file.
type fileObject struct {
	path string
}

// OpenFile returns an Object backed by the file at path.
// Returns ErrNotFound if the file does not exist.
//
// The file's modification time stands in for the object's last-modified
// timestamp; a fetch fails with ErrPreconditionFailed once it moves past the
// guard.
func OpenFile(path string) (Object, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("s3io: %s is a directory", path)
	}
	return &fileObject{path: path}, nil
}

// OpenFileInRoot is OpenFile for a path relative to root.
// Returns ErrInvalidPath for empty, absolute, or escaping paths.
func OpenFileInRoot(root, path string) (Object, error) {
	fullPath, err := safePathForFile(root, path)
	if err != nil {
		return nil, err
	}
	return OpenFile(fullPath)
}

func (f *fileObject) Key() string {
	return f.path
}

func (f *fileObject) ContentLength(_ context.Context) (int64, error) {
	info, err := f.stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *fileObject) LastModified(_ context.Context) (time.Time, error) {
	info, err := f.stat()
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (f *fileObject) FetchRange(_ context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("s3io: invalid range %d-%d", start, end)
	}

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.ModTime().After(ifUnmodifiedSince) {
		return nil, ErrPreconditionFailed
	}

	buf := make([]byte, end-start+1)
	n, err := file.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (f *fileObject) stat() (os.FileInfo, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return info, nil
}

func safePathForFile(root, path string) (string, error) {
	cleaned := filepath.Clean(path)
	if cleaned == "." || path == "" {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	fullPath := filepath.Join(root, cleaned)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	return fullPath, nil
}

// -----------------------------------------------------------------------------
// Memory Object
// -----------------------------------------------------------------------------

// MemoryObject implements Object over an in-memory byte slice.
//
// Replace swaps the content and advances the modification time, which makes
// it useful for exercising the modification guard.
// MemoryObject is safe for concurrent use.
type MemoryObject struct {
	key string

	mu           sync.RWMutex
	data         []byte
	lastModified time.Time

	// Call counters for test assertions
	fetchCalls  int
	lengthCalls int
}

// NewMemoryObject creates a MemoryObject holding a copy of data.
func NewMemoryObject(key string, data []byte) *MemoryObject {
	return &MemoryObject{
		key:          key,
		data:         append([]byte(nil), data...),
		lastModified: time.Now().UTC().Truncate(time.Second),
	}
}

// Replace swaps the object's content and moves its modification time forward
// by at least one second.
func (m *MemoryObject) Replace(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	now := time.Now().UTC().Truncate(time.Second)
	if !now.After(m.lastModified) {
		now = m.lastModified.Add(time.Second)
	}
	m.lastModified = now
}

// Append adds data to the end of the object without touching its
// modification time. It models a store whose size can be observed changing
// while the guard still passes.
func (m *MemoryObject) Append(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, data...)
}

// FetchCalls returns the number of FetchRange calls made so far.
func (m *MemoryObject) FetchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchCalls
}

// LengthCalls returns the number of ContentLength calls made so far.
func (m *MemoryObject) LengthCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lengthCalls
}

func (m *MemoryObject) Key() string {
	return m.key
}

func (m *MemoryObject) ContentLength(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lengthCalls++
	return int64(len(m.data)), nil
}

func (m *MemoryObject) LastModified(_ context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastModified, nil
}

func (m *MemoryObject) FetchRange(_ context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++

	if m.lastModified.After(ifUnmodifiedSince) {
		return nil, ErrPreconditionFailed
	}
	if start < 0 || end < start {
		return nil, fmt.Errorf("s3io: invalid range %d-%d", start, end)
	}
	if start >= int64(len(m.data)) {
		return []byte{}, nil
	}
	if end >= int64(len(m.data)) {
		end = int64(len(m.data)) - 1
	}

	out := make([]byte, end-start+1)
	copy(out, m.data[start:end+1])
	return out, nil
}

// Ensure implementations satisfy Object
var (
	_ Object = (*fileObject)(nil)
	_ Object = (*MemoryObject)(nil)
)
