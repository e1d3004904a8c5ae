package file

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func uniqueViolation() error {
	return fmt.Errorf("insert file: %w", &pgconn.PgError{Code: "23505"})
}

func TestUpsertRetriesShortCodeCollision(t *testing.T) {
	inserts := 0
	var codes []string

	stored, created, err := upsertWithRetry(context.Background(), upsertSteps{
		update: func(ctx context.Context) (File, bool, error) {
			return File{}, false, nil
		},
		insert: func(ctx context.Context, code string) (File, error) {
			inserts++
			if inserts == 1 {
				return File{}, uniqueViolation()
			}
			return File{BucketID: "bkt0000001", Path: "a.txt", ShortCode: &code}, nil
		},
	}, func() string {
		code := fmt.Sprintf("code%02d", len(codes))
		codes = append(codes, code)
		return code
	})

	if err != nil {
		t.Fatalf("upsert returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected a create after the collision retry")
	}
	if inserts != 2 {
		t.Fatalf("expected 2 insert attempts, got %d", inserts)
	}
	if len(codes) != 2 || codes[0] == codes[1] {
		t.Fatalf("each attempt must draw a fresh code, got %v", codes)
	}
	if stored.ShortCode == nil || *stored.ShortCode != codes[1] {
		t.Fatalf("expected the second code to stick, got %v", stored.ShortCode)
	}
}

func TestUpsertGivesUpAfterMaxAttempts(t *testing.T) {
	inserts := 0

	_, _, err := upsertWithRetry(context.Background(), upsertSteps{
		update: func(ctx context.Context) (File, bool, error) {
			return File{}, false, nil
		},
		insert: func(ctx context.Context, code string) (File, error) {
			inserts++
			return File{}, uniqueViolation()
		},
	}, func() string { return "sameold" })

	if err != ErrShortCodesExhausted {
		t.Fatalf("expected ErrShortCodesExhausted, got %v", err)
	}
	if inserts != maxShortCodeAttempts {
		t.Fatalf("expected %d attempts, got %d", maxShortCodeAttempts, inserts)
	}
}

func TestUpsertAbsorbsConcurrentInsertOfSameKey(t *testing.T) {
	// the row appears between our failed insert and the next update attempt,
	// as it would when another writer wins the race on the primary key
	updates := 0

	stored, created, err := upsertWithRetry(context.Background(), upsertSteps{
		update: func(ctx context.Context) (File, bool, error) {
			updates++
			if updates == 1 {
				return File{}, false, nil
			}
			return File{BucketID: "bkt0000001", Path: "a.txt", Size: 5}, true, nil
		},
		insert: func(ctx context.Context, code string) (File, error) {
			return File{}, uniqueViolation()
		},
	}, func() string { return "abc123" })

	if err != nil {
		t.Fatalf("upsert returned error: %v", err)
	}
	if created {
		t.Fatalf("expected the concurrent row to be updated, not created")
	}
	if stored.Size != 5 {
		t.Fatalf("expected the winning row back, got %+v", stored)
	}
}

func TestUpsertStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("connection lost")

	_, _, err := upsertWithRetry(context.Background(), upsertSteps{
		update: func(ctx context.Context) (File, bool, error) {
			return File{}, false, nil
		},
		insert: func(ctx context.Context, code string) (File, error) {
			return File{}, boom
		},
	}, func() string { return "abc123" })

	if !errors.Is(err, boom) {
		t.Fatalf("non-collision errors must not be retried, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(uniqueViolation()) {
		t.Fatalf("wrapped 23505 must be recognized")
	}
	if isUniqueViolation(errors.New("23505")) {
		t.Fatalf("plain errors must not match")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("other pg error codes must not match")
	}
}
