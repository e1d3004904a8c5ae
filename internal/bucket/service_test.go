package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/cache"
	"github.com/dkezh/casket/internal/cache/cachetest"
	"github.com/dkezh/casket/internal/expiry"
	"github.com/dkezh/casket/internal/notify"
	"github.com/google/uuid"
)

func newTestService(repo *fakeRepo) (*Service, *fakeBlobs) {
	blobs := &fakeBlobs{}
	svc := NewService(repo, blobs, cache.New(cachetest.NewMemoryBackend()), notify.Nop{})
	return svc, blobs
}

func TestCreateBucketAssignsIDAndOwner(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	identity := auth.Identity{ID: uuid.New()}
	b, err := svc.Create(context.Background(), identity, "documents", nil, "1h")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if len(b.ID) != 10 {
		t.Fatalf("expected 10-char bucket id, got %q", b.ID)
	}
	if b.OwnerID != identity.ID {
		t.Fatalf("expected owner %s, got %s", identity.ID, b.OwnerID)
	}
	if b.ExpiresAt == nil {
		t.Fatalf("expected expiry to be set")
	}
}

func TestCreateBucketRejectsBadExpiry(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), auth.Identity{ID: uuid.New()}, "docs", nil, "whenever")
	if err != expiry.ErrInvalid {
		t.Fatalf("expected expiry.ErrInvalid, got %v", err)
	}
}

func TestGetHidesExpiredBucket(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	past := time.Now().Add(-time.Minute)
	repo.buckets["expired789"] = Bucket{ID: "expired789", OwnerID: uuid.New(), ExpiresAt: &past}

	if _, err := svc.Get(context.Background(), "expired789"); err != ErrBucketNotFound {
		t.Fatalf("expected ErrBucketNotFound for expired bucket, got %v", err)
	}
}

func TestGetServesFromCacheAfterFirstRead(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	repo.buckets["bkt0000001"] = Bucket{ID: "bkt0000001", OwnerID: uuid.New(), Name: "docs"}

	if _, err := svc.Get(context.Background(), "bkt0000001"); err != nil {
		t.Fatalf("first Get returned error: %v", err)
	}
	firstReads := repo.getCalls

	if _, err := svc.Get(context.Background(), "bkt0000001"); err != nil {
		t.Fatalf("second Get returned error: %v", err)
	}
	if repo.getCalls != firstReads {
		t.Fatalf("expected second Get to be cache-served, repo reads went %d -> %d", firstReads, repo.getCalls)
	}
}

func TestUpdateExpiryInvalidatesCache(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	owner := uuid.New()
	repo.buckets["bkt0000001"] = Bucket{ID: "bkt0000001", OwnerID: owner}

	// warm the cache
	if _, err := svc.Get(context.Background(), "bkt0000001"); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if _, err := svc.UpdateExpiry(context.Background(), auth.Identity{ID: owner}, "bkt0000001", "1h"); err != nil {
		t.Fatalf("UpdateExpiry returned error: %v", err)
	}

	// the very next read must observe the new expiry, not the cached row
	b, err := svc.Get(context.Background(), "bkt0000001")
	if err != nil {
		t.Fatalf("Get after update returned error: %v", err)
	}
	if b.ExpiresAt == nil {
		t.Fatalf("expected updated expiry to be visible immediately")
	}
}

func TestUpdateExpiryDeniedForStranger(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	repo.buckets["bkt0000001"] = Bucket{ID: "bkt0000001", OwnerID: uuid.New()}

	_, err := svc.UpdateExpiry(context.Background(), auth.Identity{ID: uuid.New()}, "bkt0000001", "1h")
	if err != ErrDenied {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestDeleteBucketCascades(t *testing.T) {
	repo := newFakeRepo()
	svc, blobs := newTestService(repo)

	owner := uuid.New()
	repo.buckets["bkt0000001"] = Bucket{ID: "bkt0000001", OwnerID: owner}

	if err := svc.Delete(context.Background(), auth.Identity{ID: owner}, "bkt0000001"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if !repo.purged["bkt0000001"] {
		t.Fatalf("expected bucket rows to be purged")
	}
	if blobs.deleted != 1 {
		t.Fatalf("expected blob directory delete, got %d", blobs.deleted)
	}
}

func TestRecordDownloadRefreshesCachedStats(t *testing.T) {
	repo := newFakeRepo()
	backend := cachetest.NewMemoryBackend()
	svc := NewService(repo, &fakeBlobs{}, cache.New(backend), notify.Nop{})

	repo.buckets["bkt0000001"] = Bucket{ID: "bkt0000001", OwnerID: uuid.New()}

	// warm both cached views
	if _, err := svc.Stats(context.Background(), "bkt0000001"); err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if _, err := svc.Get(context.Background(), "bkt0000001"); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	svc.recordDownload(context.Background(), "bkt0000001")

	if backend.Contains(cache.StatsKey("bkt0000001")) || backend.Contains(cache.BucketKey("bkt0000001")) {
		t.Fatalf("expected cached views to be dropped after the counter bump")
	}

	stats, err := svc.Stats(context.Background(), "bkt0000001")
	if err != nil {
		t.Fatalf("Stats after download returned error: %v", err)
	}
	if stats.DownloadCount != 1 {
		t.Fatalf("expected download count 1, got %d", stats.DownloadCount)
	}
}

func TestListIncludeExpiredOnlyForAdmin(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	owner := uuid.New()
	past := time.Now().Add(-time.Hour)
	repo.buckets["live000001"] = Bucket{ID: "live000001", OwnerID: owner}
	repo.buckets["gone000001"] = Bucket{ID: "gone000001", OwnerID: owner, ExpiresAt: &past}

	own, err := svc.List(context.Background(), auth.Identity{ID: owner}, true)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(own) != 1 {
		t.Fatalf("owner list should hide expired buckets, got %d", len(own))
	}

	all, err := svc.List(context.Background(), auth.Identity{ID: uuid.New(), IsAdmin: true}, true)
	if err != nil {
		t.Fatalf("admin List returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin list with include_expired should show both, got %d", len(all))
	}
}

// --- fakes ---

type fakeRepo struct {
	buckets  map[string]Bucket
	purged   map[string]bool
	getCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{buckets: make(map[string]Bucket), purged: make(map[string]bool)}
}

func (f *fakeRepo) Create(ctx context.Context, b Bucket) (Bucket, error) {
	b.CreatedAt = time.Now()
	f.buckets[b.ID] = b
	return b, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (Bucket, error) {
	f.getCalls++
	b, ok := f.buckets[id]
	if !ok {
		return Bucket{}, ErrBucketNotFound
	}
	return b, nil
}

func (f *fakeRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Bucket, error) {
	var out []Bucket
	for _, b := range f.buckets {
		if b.OwnerID == ownerID && !b.Expired(time.Now()) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAll(ctx context.Context, includeExpired bool) ([]Bucket, error) {
	var out []Bucket
	for _, b := range f.buckets {
		if includeExpired || !b.Expired(time.Now()) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	b, ok := f.buckets[id]
	if !ok {
		return ErrBucketNotFound
	}
	b.ExpiresAt = expiresAt
	f.buckets[id] = b
	return nil
}

func (f *fakeRepo) RecordDownload(ctx context.Context, id string, now time.Time) error {
	b, ok := f.buckets[id]
	if !ok {
		return ErrBucketNotFound
	}
	b.DownloadCount++
	b.LastUsedAt = &now
	f.buckets[id] = b
	return nil
}

func (f *fakeRepo) Purge(ctx context.Context, id string) error {
	delete(f.buckets, id)
	f.purged[id] = true
	return nil
}

type fakeBlobs struct {
	deleted int
}

func (f *fakeBlobs) DeleteBucket(bucketID string) error {
	f.deleted++
	return nil
}
