package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

const bucketColumns = `id, name, owner_id, key_prefix, description, created_at,
       expires_at, last_used_at, file_count, total_size, download_count`

// Repository provides access to bucket persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a bucket repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new bucket row.
func (r *Repository) Create(ctx context.Context, b Bucket) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO buckets (id, name, owner_id, key_prefix, description, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + bucketColumns + `;`

	row := r.pool.QueryRow(ctx, query, b.ID, b.Name, b.OwnerID, b.KeyPrefix, b.Description, b.ExpiresAt)
	stored, err := scanBucket(row)
	if err != nil {
		return Bucket{}, fmt.Errorf("create bucket: %w", err)
	}
	return stored, nil
}

// GetByID fetches a bucket row without expiry filtering; callers enforce
// expiry at read time.
func (r *Repository) GetByID(ctx context.Context, id string) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+bucketColumns+` FROM buckets WHERE id = $1;`, id)
	b, err := scanBucket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bucket{}, ErrBucketNotFound
		}
		return Bucket{}, fmt.Errorf("get bucket: %w", err)
	}
	return b, nil
}

// ListByOwner returns the owner's buckets, excluding expired ones.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT ` + bucketColumns + `
FROM buckets
WHERE owner_id = $1 AND (expires_at IS NULL OR expires_at > NOW())
ORDER BY created_at DESC;`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// ListAll returns every bucket; expired rows are included only when asked.
// Used by admin list views.
func (r *Repository) ListAll(ctx context.Context, includeExpired bool) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + bucketColumns + ` FROM buckets`
	if !includeExpired {
		query += ` WHERE expires_at IS NULL OR expires_at > NOW()`
	}
	query += ` ORDER BY created_at DESC;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all buckets: %w", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// ListExpired returns buckets whose expiry has passed, for the sweeper.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE expires_at IS NOT NULL AND expires_at <= $1;`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired buckets: %w", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// UpdateExpiry sets or clears the bucket's expiry.
func (r *Repository) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE buckets SET expires_at = $2 WHERE id = $1;`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("update bucket expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBucketNotFound
	}
	return nil
}

// TouchLastUsed records bucket activity. Best-effort; callers ignore errors.
func (r *Repository) TouchLastUsed(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `UPDATE buckets SET last_used_at = $2 WHERE id = $1;`, id, now); err != nil {
		return fmt.Errorf("touch bucket: %w", err)
	}
	return nil
}

// RecordDownload bumps the download counter and last-used timestamp.
func (r *Repository) RecordDownload(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `UPDATE buckets SET download_count = download_count + 1, last_used_at = $2 WHERE id = $1;`
	if _, err := r.pool.Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// Purge removes the bucket row and every dependent row in one transaction.
// Each delete is idempotent against absence, so a crashed purge can be
// retried safely.
func (r *Repository) Purge(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM short_urls WHERE bucket_id = $1;`,
		`DELETE FROM upload_tokens WHERE bucket_id = $1;`,
		`DELETE FROM files WHERE bucket_id = $1;`,
		`DELETE FROM buckets WHERE id = $1;`,
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("purge bucket: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}

func scanBucket(row pgx.Row) (Bucket, error) {
	var b Bucket
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.OwnerID,
		&b.KeyPrefix,
		&b.Description,
		&b.CreatedAt,
		&b.ExpiresAt,
		&b.LastUsedAt,
		&b.FileCount,
		&b.TotalSize,
		&b.DownloadCount,
	)
	return b, err
}

func collectBuckets(rows pgx.Rows) ([]Bucket, error) {
	var buckets []Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return buckets, nil
}
