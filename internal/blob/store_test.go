package blob

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	n, err := store.Store("bkt0000001", "Docs/Notes.txt", strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected 11 bytes written, got %d", n)
	}

	size, err := store.Size("bkt0000001", "docs/notes.txt")
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	if size != 11 {
		t.Fatalf("expected size 11, got %d", size)
	}

	f, err := store.Open("bkt0000001", "DOCS/NOTES.TXT")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", string(data))
	}
}

func TestStoreKeyIsCaseFoldedAndEncoded(t *testing.T) {
	store := newTestStore(t)

	p := store.Path("bkt0000001", "A B/c.txt")
	base := filepath.Base(p)
	if base != "a%20b%2Fc.txt" {
		t.Fatalf("unexpected encoded key: %s", base)
	}
}

func TestStoreOverwriteReplacesContent(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Store("b", "f", strings.NewReader("first version")); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if _, err := store.Store("b", "f", strings.NewReader("second")); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	f, err := store.Open("b", "f")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "second" {
		t.Fatalf("expected overwritten content, got %q", string(data))
	}
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	if _, err := store.Store("b", "f", strings.NewReader("data")); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("read bucket dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPatchAtOffset(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Store("b", "f", strings.NewReader("hello world")); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	size, err := store.Patch("b", "f", strings.NewReader("WORLD"), 6, false)
	if err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if size != 11 {
		t.Fatalf("expected size 11 after patch, got %d", size)
	}

	f, _ := store.Open("b", "f")
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "hello WORLD" {
		t.Fatalf("expected %q, got %q", "hello WORLD", string(data))
	}
}

func TestPatchAppend(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Store("b", "f", bytes.NewReader([]byte("abc"))); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	size, err := store.Patch("b", "f", strings.NewReader("def"), 0, true)
	if err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if size != 6 {
		t.Fatalf("expected size 6 after append, got %d", size)
	}
}

func TestPatchMissingBlob(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Patch("b", "missing", strings.NewReader("x"), 0, false); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Store("b", "f", strings.NewReader("data")); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if err := store.DeleteFile("b", "f"); err != nil {
		t.Fatalf("DeleteFile returned error: %v", err)
	}
	if err := store.DeleteFile("b", "f"); err != nil {
		t.Fatalf("second DeleteFile returned error: %v", err)
	}

	if err := store.DeleteBucket("b"); err != nil {
		t.Fatalf("DeleteBucket returned error: %v", err)
	}
	if err := store.DeleteBucket("b"); err != nil {
		t.Fatalf("second DeleteBucket returned error: %v", err)
	}

	if _, err := store.Open("b", "f"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
