package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository provides access to upload-token persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an upload-token repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new token row.
func (r *Repository) Create(ctx context.Context, t UploadToken) (UploadToken, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO upload_tokens (token, bucket_id, expires_at, max_uploads)
VALUES ($1, $2, $3, $4)
RETURNING token, bucket_id, expires_at, max_uploads, uploads_used, created_at;`

	row := r.pool.QueryRow(ctx, query, t.Token, t.BucketID, t.ExpiresAt, t.MaxUploads)
	var stored UploadToken
	if err := row.Scan(&stored.Token, &stored.BucketID, &stored.ExpiresAt, &stored.MaxUploads, &stored.UploadsUsed, &stored.CreatedAt); err != nil {
		return UploadToken{}, fmt.Errorf("create upload token: %w", err)
	}
	return stored, nil
}

// Get fetches a token row.
func (r *Repository) Get(ctx context.Context, token string) (UploadToken, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT token, bucket_id, expires_at, max_uploads, uploads_used, created_at FROM upload_tokens WHERE token = $1;`

	var t UploadToken
	err := r.pool.QueryRow(ctx, query, token).Scan(&t.Token, &t.BucketID, &t.ExpiresAt, &t.MaxUploads, &t.UploadsUsed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UploadToken{}, ErrTokenNotFound
		}
		return UploadToken{}, fmt.Errorf("get upload token: %w", err)
	}
	return t, nil
}

// IncrementUsage applies a single atomic add of n to uploads_used, guarded so
// the counter can never pass max_uploads. A read-then-write would race under
// concurrent uploads of the same token; this is one statement on purpose.
func (r *Repository) IncrementUsage(ctx context.Context, token string, n int64) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
UPDATE upload_tokens
SET uploads_used = uploads_used + $2
WHERE token = $1
  AND expires_at > NOW()
  AND (max_uploads IS NULL OR uploads_used + $2 <= max_uploads);`

	tag, err := r.pool.Exec(ctx, query, token, n)
	if err != nil {
		return fmt.Errorf("increment token usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotUsable
	}
	return nil
}

// Delete removes a token. Absence is not an error.
func (r *Repository) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM upload_tokens WHERE token = $1;`, token); err != nil {
		return fmt.Errorf("delete upload token: %w", err)
	}
	return nil
}
