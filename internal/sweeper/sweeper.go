// Package sweeper reclaims expired buckets in the background. Expiry is
// already enforced at read time; the sweeper only frees disk and rows.
package sweeper

import (
	"context"
	"time"

	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/metrics"
	"github.com/dkezh/casket/internal/notify"
	"github.com/rs/zerolog/log"
)

// repository is the slice of bucket persistence the sweeper needs.
type repository interface {
	ListExpired(ctx context.Context, now time.Time) ([]bucket.Bucket, error)
	Purge(ctx context.Context, id string) error
}

// blobStore removes a bucket's on-disk content.
type blobStore interface {
	DeleteBucket(bucketID string) error
}

// invalidator drops a bucket's cache entries.
type invalidator interface {
	InvalidateBucket(ctx context.Context, bucketID string) error
}

// Sweeper periodically purges expired buckets.
type Sweeper struct {
	repo         repository
	blobs        blobStore
	cache        invalidator
	notifier     notify.Notifier
	interval     time.Duration
	initialDelay time.Duration
	nowFunc      func() time.Time
}

// New constructs a sweeper.
func New(repo repository, blobs blobStore, cache invalidator, notifier notify.Notifier, interval, initialDelay time.Duration) *Sweeper {
	return &Sweeper{
		repo:         repo,
		blobs:        blobs,
		cache:        cache,
		notifier:     notifier,
		interval:     interval,
		initialDelay: initialDelay,
		nowFunc:      time.Now,
	}
}

// Run sweeps after an initial delay and then on every interval tick until
// the context is cancelled. Cycle errors are logged, never fatal; the next
// tick retries whatever was left behind.
func (s *Sweeper) Run(ctx context.Context) {
	delay := time.NewTimer(s.initialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reclamation cycle. A failed bucket is skipped, not
// retried within the cycle; purging is idempotent so the next cycle picks
// it up again.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.nowFunc()
	expired, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("list expired buckets")
		return
	}

	purged := 0
	for _, b := range expired {
		if ctx.Err() != nil {
			return
		}
		if err := s.purge(ctx, b.ID); err != nil {
			log.Warn().Err(err).Str("bucket", b.ID).Msg("purge expired bucket")
			continue
		}
		purged++
		metrics.PurgedBuckets.Inc()
		notify.Dispatch(ctx, s.notifier, notify.EventBucketExpired, b.ID, nil)
	}

	if purged > 0 {
		log.Info().Int("purged", purged).Msg("sweeper cycle complete")
	}
}

// purge mirrors the order of an explicit bucket delete: content first, then
// cache, then rows. A crash mid-purge leaves rows behind, which keeps the
// bucket listed as expired for the next cycle.
func (s *Sweeper) purge(ctx context.Context, id string) error {
	if err := s.blobs.DeleteBucket(id); err != nil {
		return err
	}
	if err := s.cache.InvalidateBucket(ctx, id); err != nil {
		return err
	}
	return s.repo.Purge(ctx, id)
}
