// Package blob persists file content on the local filesystem, keyed by
// bucket id and normalized path.
package blob

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound signals that no blob exists for the requested key.
var ErrNotFound = errors.New("blob not found")

// Store maps (bucketID, path) keys onto a directory tree rooted at dataDir.
// Layout: {dataDir}/{bucketID}/{percent-encoded lowercased path}.
type Store struct {
	dataDir string
}

// NewStore creates a Store rooted at dataDir, creating the root if needed.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Path returns the on-disk location for a blob key. The path component is
// case-folded to lowercase and percent-encoded so arbitrary client paths
// stay within the bucket directory.
func (s *Store) Path(bucketID, path string) string {
	encoded := url.PathEscape(strings.ToLower(path))
	return filepath.Join(s.dataDir, bucketID, encoded)
}

// Store writes content atomically: the bytes land in a temporary file beside
// the target, which is then renamed over it. Readers observe either the
// complete previous content or the complete new content, never a torn write.
func (s *Store) Store(bucketID, path string, content io.Reader) (int64, error) {
	target := s.Path(bucketID, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create bucket dir: %w", err)
	}

	// os.CreateTemp avoids collisions between concurrent writes of the same
	// key; a fixed ".tmp" suffix would not.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".blob-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, content)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}

// Open returns a readable, seekable handle for the blob. The caller owns the
// handle and must close it.
func (s *Store) Open(bucketID, path string) (*os.File, error) {
	f, err := os.Open(s.Path(bucketID, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Size reports the stored length of the blob.
func (s *Store) Size(bucketID, path string) (int64, error) {
	info, err := os.Stat(s.Path(bucketID, path))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}

// Patch writes content into the existing blob without truncating it. With
// append set the write starts at end-of-file, otherwise at offset. Returns
// the resulting total length. Patch is not atomic against a concurrent Store
// or Patch of the same key.
func (s *Store) Patch(bucketID, path string, content io.Reader, offset int64, appendMode bool) (int64, error) {
	target := s.Path(bucketID, path)

	f, err := os.OpenFile(target, os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("open blob for patch: %w", err)
	}
	defer f.Close()

	if appendMode {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return 0, fmt.Errorf("seek to end: %w", err)
		}
	} else {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seek to offset: %w", err)
		}
	}

	if _, err := io.Copy(f, content); err != nil {
		return 0, fmt.Errorf("patch blob: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat patched blob: %w", err)
	}
	return info.Size(), nil
}

// DeleteFile removes the blob. Absence is not an error.
func (s *Store) DeleteFile(bucketID, path string) error {
	if err := os.Remove(s.Path(bucketID, path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// DeleteBucket removes the whole bucket directory. Absence is not an error.
func (s *Store) DeleteBucket(bucketID string) error {
	if err := os.RemoveAll(filepath.Join(s.dataDir, bucketID)); err != nil {
		return fmt.Errorf("delete bucket dir: %w", err)
	}
	return nil
}
