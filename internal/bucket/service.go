package bucket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/cache"
	"github.com/dkezh/casket/internal/expiry"
	"github.com/dkezh/casket/internal/ident"
	"github.com/dkezh/casket/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// repository abstracts bucket persistence.
type repository interface {
	Create(ctx context.Context, b Bucket) (Bucket, error)
	GetByID(ctx context.Context, id string) (Bucket, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Bucket, error)
	ListAll(ctx context.Context, includeExpired bool) ([]Bucket, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error
	RecordDownload(ctx context.Context, id string, now time.Time) error
	Purge(ctx context.Context, id string) error
}

// blobStore is the slice of the blob layer the bucket service needs.
type blobStore interface {
	DeleteBucket(bucketID string) error
}

// Service orchestrates bucket operations.
type Service struct {
	repo     repository
	blobs    blobStore
	cache    *cache.Cache
	notifier notify.Notifier
	nowFunc  func() time.Time
}

// NewService constructs a bucket service.
func NewService(repo repository, blobs blobStore, c *cache.Cache, notifier notify.Notifier) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		cache:    c,
		notifier: notifier,
		nowFunc:  time.Now,
	}
}

// Create makes a new bucket owned by the caller. The expiry expression is
// parsed up front; expiry.ErrInvalid propagates to the handler.
func (s *Service) Create(ctx context.Context, identity auth.Identity, name string, description *string, expiresIn string) (Bucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Bucket{}, fmt.Errorf("bucket name required")
	}

	expiresAt, err := expiry.Parse(expiresIn, s.nowFunc())
	if err != nil {
		return Bucket{}, err
	}

	b := Bucket{
		ID:          ident.New(ident.BucketIDLength),
		Name:        name,
		OwnerID:     identity.ID,
		KeyPrefix:   identity.KeyPrefix,
		Description: description,
		ExpiresAt:   expiresAt,
	}

	stored, err := s.repo.Create(ctx, b)
	if err != nil {
		return Bucket{}, err
	}

	notify.Dispatch(ctx, s.notifier, notify.EventBucketCreated, stored.ID, stored)
	return stored, nil
}

// Get returns the bucket detail through the cache. An expired bucket is
// indistinguishable from an absent one.
func (s *Service) Get(ctx context.Context, id string) (Bucket, error) {
	var b Bucket
	if err := s.cache.Fetch(ctx, cache.BucketKey(id), &b); err != nil {
		b, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return Bucket{}, err
		}
		if err := s.cache.Put(ctx, id, cache.BucketKey(id), b, cache.TTLBucket); err != nil {
			log.Warn().Err(err).Str("bucket", id).Msg("populate bucket cache")
		}
	}

	if b.Expired(s.nowFunc()) {
		return Bucket{}, ErrBucketNotFound
	}
	return b, nil
}

// List returns buckets visible to the caller. Only admin list views may opt
// into expired buckets; every other read path hides them unconditionally.
func (s *Service) List(ctx context.Context, identity auth.Identity, includeExpired bool) ([]Bucket, error) {
	if identity.IsAdmin {
		return s.repo.ListAll(ctx, includeExpired)
	}
	return s.repo.ListByOwner(ctx, identity.ID)
}

// UpdateExpiry changes the bucket's expiry and bulk-invalidates its cache
// index before reporting success.
func (s *Service) UpdateExpiry(ctx context.Context, identity auth.Identity, id, expiresIn string) (Bucket, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return Bucket{}, err
	}
	if !identity.CanManage(b.OwnerID) {
		return Bucket{}, ErrDenied
	}

	expiresAt, err := expiry.Parse(expiresIn, s.nowFunc())
	if err != nil {
		return Bucket{}, err
	}

	if err := s.repo.UpdateExpiry(ctx, id, expiresAt); err != nil {
		return Bucket{}, err
	}
	if err := s.cache.InvalidateBucket(ctx, id); err != nil {
		return Bucket{}, fmt.Errorf("invalidate bucket cache: %w", err)
	}

	b.ExpiresAt = expiresAt
	notify.Dispatch(ctx, s.notifier, notify.EventBucketUpdated, id, b)
	return b, nil
}

// Delete removes the bucket, its rows, its cache entries, and its on-disk
// directory.
func (s *Service) Delete(ctx context.Context, identity auth.Identity, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !identity.CanManage(b.OwnerID) {
		return ErrDenied
	}

	if err := s.blobs.DeleteBucket(id); err != nil {
		return err
	}
	if err := s.cache.InvalidateBucket(ctx, id); err != nil {
		return fmt.Errorf("invalidate bucket cache: %w", err)
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		return err
	}

	notify.Dispatch(ctx, s.notifier, notify.EventBucketDeleted, id, nil)
	return nil
}

// Stats returns the cached aggregate view of the bucket.
func (s *Service) Stats(ctx context.Context, id string) (Stats, error) {
	var stats Stats
	if err := s.cache.Fetch(ctx, cache.StatsKey(id), &stats); err == nil {
		// Cached stats can outlive the bucket's expiry inside the TTL window,
		// so the expiry check still goes through Get.
		if _, err := s.Get(ctx, id); err != nil {
			return Stats{}, err
		}
		return stats, nil
	}

	b, err := s.Get(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	stats = Stats{FileCount: b.FileCount, TotalSize: b.TotalSize, DownloadCount: b.DownloadCount}
	if err := s.cache.Put(ctx, id, cache.StatsKey(id), stats, cache.TTLStats); err != nil {
		log.Warn().Err(err).Str("bucket", id).Msg("populate stats cache")
	}
	return stats, nil
}

// RecordDownload updates the bucket's download counter and last-used
// timestamp off the response path. Failures are logged, never surfaced.
func (s *Service) RecordDownload(ctx context.Context, id string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		s.recordDownload(ctx, id)
	}()
}

// recordDownload bumps the counters and drops the cached bucket and stats
// views, so the next read sees the new count instead of waiting out a TTL.
func (s *Service) recordDownload(ctx context.Context, id string) {
	if err := s.repo.RecordDownload(ctx, id, s.nowFunc()); err != nil {
		log.Warn().Err(err).Str("bucket", id).Msg("record download")
		return
	}
	if err := s.cache.Invalidate(ctx, cache.BucketKey(id), cache.StatsKey(id)); err != nil {
		log.Warn().Err(err).Str("bucket", id).Msg("invalidate after download")
	}
}
