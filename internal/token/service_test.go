package token

import (
	"context"
	"testing"
	"time"

	"github.com/dkezh/casket/internal/cache"
	"github.com/dkezh/casket/internal/cache/cachetest"
)

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, cache.New(cachetest.NewMemoryBackend()))
}

func TestCreateTokenDefaultsExpiry(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	tok, err := svc.Create(context.Background(), "bkt0000001", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(tok.Token) != 32 {
		t.Fatalf("expected 32-char token, got %q", tok.Token)
	}
	if !tok.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected default expiry in the future, got %v", tok.ExpiresAt)
	}
}

func TestConsumeEnforcesQuota(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	max := int64(2)
	tok, err := svc.Create(context.Background(), "bkt0000001", "1h", &max)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		bucketID, err := svc.Consume(context.Background(), tok.Token)
		if err != nil {
			t.Fatalf("Consume %d returned error: %v", i+1, err)
		}
		if bucketID != "bkt0000001" {
			t.Fatalf("unexpected bucket id %q", bucketID)
		}
	}

	if _, err := svc.Consume(context.Background(), tok.Token); err != ErrTokenNotUsable {
		t.Fatalf("expected third upload to be denied, got %v", err)
	}
}

func TestConsumeDeniesExpiredTokenDespiteQuota(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	max := int64(100)
	repo.tokens["stale"] = UploadToken{
		Token:      "stale",
		BucketID:   "bkt0000001",
		ExpiresAt:  time.Now().Add(-time.Minute),
		MaxUploads: &max,
	}

	if _, err := svc.Consume(context.Background(), "stale"); err != ErrTokenNotUsable {
		t.Fatalf("expected expired token to be denied, got %v", err)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	if _, ok := svc.Validate(context.Background(), "nope"); ok {
		t.Fatalf("expected unknown token to fail validation")
	}
}

func TestConsumeInvalidatesCachedToken(t *testing.T) {
	repo := newFakeRepo()
	backend := cachetest.NewMemoryBackend()
	svc := NewService(repo, cache.New(backend))

	max := int64(1)
	tok, err := svc.Create(context.Background(), "bkt0000001", "1h", &max)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// warm the cache, then consume the only allowed upload
	if _, ok := svc.Validate(context.Background(), tok.Token); !ok {
		t.Fatalf("expected fresh token to validate")
	}
	if _, err := svc.Consume(context.Background(), tok.Token); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}

	if backend.Contains(cache.TokenKey(tok.Token)) {
		t.Fatalf("expected cached token to be invalidated after consume")
	}
	if _, ok := svc.Validate(context.Background(), tok.Token); ok {
		t.Fatalf("expected exhausted token to fail validation")
	}
}

// --- fakes ---

type fakeRepo struct {
	tokens map[string]UploadToken
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tokens: make(map[string]UploadToken)}
}

func (f *fakeRepo) Create(ctx context.Context, t UploadToken) (UploadToken, error) {
	t.CreatedAt = time.Now()
	f.tokens[t.Token] = t
	return t, nil
}

func (f *fakeRepo) Get(ctx context.Context, token string) (UploadToken, error) {
	t, ok := f.tokens[token]
	if !ok {
		return UploadToken{}, ErrTokenNotFound
	}
	return t, nil
}

func (f *fakeRepo) IncrementUsage(ctx context.Context, token string, n int64) error {
	t, ok := f.tokens[token]
	if !ok {
		return ErrTokenNotUsable
	}
	if !t.ExpiresAt.After(time.Now()) {
		return ErrTokenNotUsable
	}
	if t.MaxUploads != nil && t.UploadsUsed+n > *t.MaxUploads {
		return ErrTokenNotUsable
	}
	t.UploadsUsed += n
	f.tokens[token] = t
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}
