package mmapfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.memdb")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenAndBytes(t *testing.T) {
	path := writeTempFile(t, []byte("hello memdb"))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Release()

	if string(f.Bytes()) != "hello memdb" {
		t.Errorf("Bytes() = %q, want %q", f.Bytes(), "hello memdb")
	}
	if f.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1", f.RefCount())
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeTempFile(t, nil)

	if _, err := Open(path); err == nil {
		t.Error("expected Open to reject an empty file")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open("/nonexistent/path/does/not/exist.memdb"); err == nil {
		t.Error("expected Open to fail for a missing file")
	}
}

func TestRetainReleaseRefcounting(t *testing.T) {
	path := writeTempFile(t, []byte("payload"))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	f.Retain()
	if f.RefCount() != 2 {
		t.Fatalf("RefCount() after Retain = %d, want 2", f.RefCount())
	}

	if err := f.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if f.RefCount() != 1 {
		t.Fatalf("RefCount() after first Release = %d, want 1", f.RefCount())
	}
	// Bytes should still be valid: one reference remains.
	if string(f.Bytes()) != "payload" {
		t.Errorf("Bytes() after partial release = %q, want %q", f.Bytes(), "payload")
	}

	if err := f.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if f.RefCount() != 0 {
		t.Fatalf("RefCount() after final Release = %d, want 0", f.RefCount())
	}
}

func TestReleaseWithoutReferenceErrors(t *testing.T) {
	path := writeTempFile(t, []byte("x"))
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := f.Release(); err == nil {
		t.Error("expected Release past zero references to return an error")
	}
}
