package token

import (
	"context"
	"time"

	"github.com/dkezh/casket/internal/cache"
	"github.com/dkezh/casket/internal/expiry"
	"github.com/dkezh/casket/internal/ident"
	"github.com/rs/zerolog/log"
)

// repository abstracts token persistence.
type repository interface {
	Create(ctx context.Context, t UploadToken) (UploadToken, error)
	Get(ctx context.Context, token string) (UploadToken, error)
	IncrementUsage(ctx context.Context, token string, n int64) error
	Delete(ctx context.Context, token string) error
}

// Service manages upload-token issuance and admission.
type Service struct {
	repo    repository
	cache   *cache.Cache
	nowFunc func() time.Time
}

// NewService constructs an upload-token service.
func NewService(repo repository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c, nowFunc: time.Now}
}

// Create issues a fresh token for the bucket. Caller authorization happens
// at the handler; this layer only mints and stores the credential.
func (s *Service) Create(ctx context.Context, bucketID, expiresIn string, maxUploads *int64) (UploadToken, error) {
	expiresAt, err := expiry.Parse(expiresIn, s.nowFunc())
	if err != nil {
		return UploadToken{}, err
	}
	if expiresAt == nil {
		// tokens always expire; default to a day
		t := s.nowFunc().Add(24 * time.Hour)
		expiresAt = &t
	}

	t := UploadToken{
		Token:      ident.New(ident.UploadTokenLength),
		BucketID:   bucketID,
		ExpiresAt:  *expiresAt,
		MaxUploads: maxUploads,
	}
	return s.repo.Create(ctx, t)
}

// Validate resolves the token to its bucket and reports whether it still
// admits uploads. Token lookups are cache-served with a short TTL.
func (s *Service) Validate(ctx context.Context, token string) (string, bool) {
	var t UploadToken
	if err := s.cache.Fetch(ctx, cache.TokenKey(token), &t); err != nil {
		var repoErr error
		t, repoErr = s.repo.Get(ctx, token)
		if repoErr != nil {
			return "", false
		}
		if err := s.cache.Put(ctx, t.BucketID, cache.TokenKey(token), t, cache.TTLToken); err != nil {
			log.Warn().Err(err).Msg("populate token cache")
		}
	}
	if !t.Usable(s.nowFunc()) {
		return "", false
	}
	return t.BucketID, true
}

// Consume admits one upload against the token. The usage counter moves with
// a guarded atomic add, and the cached copy is invalidated before success is
// reported so the next validation sees the new count.
func (s *Service) Consume(ctx context.Context, token string) (string, error) {
	bucketID, ok := s.Validate(ctx, token)
	if !ok {
		return "", ErrTokenNotUsable
	}
	if err := s.repo.IncrementUsage(ctx, token, 1); err != nil {
		return "", err
	}
	if err := s.cache.Invalidate(ctx, cache.TokenKey(token)); err != nil {
		return "", err
	}
	return bucketID, nil
}

// Delete revokes a token.
func (s *Service) Delete(ctx context.Context, token string) error {
	if err := s.repo.Delete(ctx, token); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, cache.TokenKey(token))
}
