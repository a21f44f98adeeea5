package dbm

import (
	"os"
	"path/filepath"
	"testing"
)

// WithHash runs f with a hash in a fresh temporary directory.
func WithHash(t testing.TB, f func(*Hash)) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	h, err := OpenHash(filepath.Join(tmpDir, "test"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	f(h)
}
