package shorturl

import (
	"context"
	"fmt"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/cache"
	"github.com/rs/zerolog/log"
)

// repository abstracts short URL persistence.
type repository interface {
	Get(ctx context.Context, code string) (ShortURL, error)
	Delete(ctx context.Context, code string) error
}

// buckets is the slice of the bucket service the short URL service needs.
type buckets interface {
	Get(ctx context.Context, id string) (bucket.Bucket, error)
}

// Service resolves and manages short URLs.
type Service struct {
	repo    repository
	buckets buckets
	cache   *cache.Cache
}

// NewService constructs a short URL service.
func NewService(repo repository, buckets buckets, c *cache.Cache) *Service {
	return &Service{repo: repo, buckets: buckets, cache: c}
}

// Resolve returns the mapping for a code through the cache. A code whose
// bucket has expired resolves the same as an unknown code.
func (s *Service) Resolve(ctx context.Context, code string) (ShortURL, error) {
	var su ShortURL
	if err := s.cache.Fetch(ctx, cache.ShortURLKey(code), &su); err != nil {
		su, err = s.repo.Get(ctx, code)
		if err != nil {
			return ShortURL{}, err
		}
		if err := s.cache.Put(ctx, su.BucketID, cache.ShortURLKey(code), su, cache.TTLShortURL); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("populate short url cache")
		}
	}

	if _, err := s.buckets.Get(ctx, su.BucketID); err != nil {
		return ShortURL{}, ErrShortURLNotFound
	}
	return su, nil
}

// Delete removes a short URL on behalf of someone who can manage its bucket.
// The file itself stays.
func (s *Service) Delete(ctx context.Context, identity auth.Identity, code string) error {
	su, err := s.repo.Get(ctx, code)
	if err != nil {
		return err
	}

	b, err := s.buckets.Get(ctx, su.BucketID)
	if err != nil {
		// bucket expired or gone; the code is unreachable either way
		return ErrShortURLNotFound
	}
	if !identity.CanManage(b.OwnerID) {
		return ErrDenied
	}

	if err := s.repo.Delete(ctx, code); err != nil {
		return err
	}
	keys := []string{cache.ShortURLKey(code), cache.FileKey(su.BucketID, su.FilePath)}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate short url cache: %w", err)
	}
	return nil
}
