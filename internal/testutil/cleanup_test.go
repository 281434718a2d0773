package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile_Nested(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteFile(dir, "a/b/c.txt", []byte("data"))
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if path != filepath.Join(dir, "a", "b", "c.txt") {
		t.Errorf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q, want %q", got, "data")
	}
}

func TestRemoveAll_Missing(t *testing.T) {
	// must not panic on a missing path
	RemoveAll(filepath.Join(t.TempDir(), "missing"))
}
