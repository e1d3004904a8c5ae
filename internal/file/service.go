package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dkezh/casket/internal/blob"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/cache"
	"github.com/dkezh/casket/internal/ident"
	"github.com/dkezh/casket/internal/notify"
	"github.com/rs/zerolog/log"
)

// repository abstracts file persistence.
type repository interface {
	Get(ctx context.Context, bucketID, path string) (File, error)
	List(ctx context.Context, bucketID string) ([]File, error)
	Upsert(ctx context.Context, f File, newCode func() string) (File, bool, error)
	UpdateSize(ctx context.Context, bucketID, path string, size int64) (File, error)
	Delete(ctx context.Context, bucketID, path string) (File, error)
}

// blobStore is the slice of the blob layer the file service needs.
type blobStore interface {
	Store(bucketID, path string, content io.Reader) (int64, error)
	Open(bucketID, path string) (*os.File, error)
	Patch(bucketID, path string, content io.Reader, offset int64, appendMode bool) (int64, error)
	DeleteFile(bucketID, path string) error
}

// buckets is the slice of the bucket service the file service needs. Get
// enforces expiry, so every file operation routed through it treats an
// expired bucket as absent.
type buckets interface {
	Get(ctx context.Context, id string) (bucket.Bucket, error)
}

// Service orchestrates file operations across the blob store, the metadata
// store, and the cache.
type Service struct {
	repo     repository
	blobs    blobStore
	buckets  buckets
	cache    *cache.Cache
	notifier notify.Notifier
}

// NewService constructs a file service.
func NewService(repo repository, blobs blobStore, buckets buckets, c *cache.Cache, notifier notify.Notifier) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		buckets:  buckets,
		cache:    c,
		notifier: notifier,
	}
}

// normalizePath case-folds the client path and strips the leading slash so
// one canonical key covers every spelling.
func normalizePath(path string) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return "", fmt.Errorf("file path required")
	}
	return strings.ToLower(path), nil
}

// Upload stores content under (bucketID, path). The blob lands first, then
// the metadata row and bucket aggregates commit together, then the touched
// cache keys are dropped. The second return value reports whether the file
// was created rather than replaced.
func (s *Service) Upload(ctx context.Context, bucketID, path, name, mimeType string, content io.Reader) (File, bool, error) {
	path, err := normalizePath(path)
	if err != nil {
		return File{}, false, err
	}
	if _, err := s.buckets.Get(ctx, bucketID); err != nil {
		return File{}, false, err
	}

	if name == "" {
		name = path[strings.LastIndex(path, "/")+1:]
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	size, err := s.blobs.Store(bucketID, path, content)
	if err != nil {
		return File{}, false, err
	}

	stored, created, err := s.repo.Upsert(ctx, File{
		BucketID: bucketID,
		Path:     path,
		Name:     name,
		Size:     size,
		MimeType: mimeType,
	}, func() string { return ident.New(ident.ShortCodeLength) })
	if err != nil {
		return File{}, false, err
	}

	if err := s.invalidate(ctx, bucketID, path, stored.ShortCode); err != nil {
		return File{}, false, err
	}

	kind := notify.EventFileUpdated
	if created {
		kind = notify.EventFileCreated
	}
	notify.Dispatch(ctx, s.notifier, kind, bucketID, stored)
	return stored, created, nil
}

// Patch writes into the existing blob without truncating it, then records
// the new length. Patching an absent file is an error, never an implicit
// create.
func (s *Service) Patch(ctx context.Context, bucketID, path string, content io.Reader, offset int64, appendMode bool) (File, error) {
	path, err := normalizePath(path)
	if err != nil {
		return File{}, err
	}
	if _, err := s.buckets.Get(ctx, bucketID); err != nil {
		return File{}, err
	}

	size, err := s.blobs.Patch(bucketID, path, content, offset, appendMode)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return File{}, ErrFileNotFound
		}
		return File{}, err
	}

	stored, err := s.repo.UpdateSize(ctx, bucketID, path, size)
	if err != nil {
		return File{}, err
	}

	if err := s.invalidate(ctx, bucketID, path, stored.ShortCode); err != nil {
		return File{}, err
	}

	notify.Dispatch(ctx, s.notifier, notify.EventFileUpdated, bucketID, stored)
	return stored, nil
}

// Get returns the file metadata through the cache.
func (s *Service) Get(ctx context.Context, bucketID, path string) (File, error) {
	path, err := normalizePath(path)
	if err != nil {
		return File{}, err
	}

	var f File
	if err := s.cache.Fetch(ctx, cache.FileKey(bucketID, path), &f); err == nil {
		return f, nil
	}

	f, err = s.repo.Get(ctx, bucketID, path)
	if err != nil {
		return File{}, err
	}
	if err := s.cache.Put(ctx, bucketID, cache.FileKey(bucketID, path), f, cache.TTLFile); err != nil {
		log.Warn().Err(err).Str("bucket", bucketID).Str("path", path).Msg("populate file cache")
	}
	return f, nil
}

// List returns the bucket's files. The bucket lookup enforces expiry.
func (s *Service) List(ctx context.Context, bucketID string) ([]File, error) {
	if _, err := s.buckets.Get(ctx, bucketID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, bucketID)
}

// Open returns the file's metadata and a readable, seekable handle on its
// content. The caller owns the handle. The bucket lookup enforces expiry, so
// files in an expired bucket are unreachable even while still on disk.
func (s *Service) Open(ctx context.Context, bucketID, path string) (File, *os.File, error) {
	if _, err := s.buckets.Get(ctx, bucketID); err != nil {
		return File{}, nil, err
	}

	f, err := s.Get(ctx, bucketID, path)
	if err != nil {
		return File{}, nil, err
	}

	handle, err := s.blobs.Open(f.BucketID, f.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return File{}, nil, ErrFileNotFound
		}
		return File{}, nil, err
	}
	return f, handle, nil
}

// Delete removes the file's metadata, short URL, blob, and cache entries.
// canManage is resolved by the caller against the owning bucket; a false
// value is reported as ErrDenied, distinct from an absent file.
func (s *Service) Delete(ctx context.Context, bucketID, path string, canManage bool) error {
	path, err := normalizePath(path)
	if err != nil {
		return err
	}
	if !canManage {
		return ErrDenied
	}

	deleted, err := s.repo.Delete(ctx, bucketID, path)
	if err != nil {
		return err
	}
	if err := s.blobs.DeleteFile(bucketID, path); err != nil {
		return err
	}
	if err := s.invalidate(ctx, bucketID, path, deleted.ShortCode); err != nil {
		return err
	}

	notify.Dispatch(ctx, s.notifier, notify.EventFileDeleted, bucketID, deleted)
	return nil
}

// invalidate drops the cache keys a file mutation can make stale: the file
// row, the bucket detail and stats (aggregates changed), and the short URL.
func (s *Service) invalidate(ctx context.Context, bucketID, path string, shortCode *string) error {
	keys := []string{
		cache.FileKey(bucketID, path),
		cache.BucketKey(bucketID),
		cache.StatsKey(bucketID),
	}
	if shortCode != nil {
		keys = append(keys, cache.ShortURLKey(*shortCode))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate file cache: %w", err)
	}
	return nil
}
