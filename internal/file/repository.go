package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// maxShortCodeAttempts bounds short-code regeneration on collision.
const maxShortCodeAttempts = 5

const fileColumns = `bucket_id, path, name, size, mime_type, short_code, created_at, updated_at`

// Repository provides access to file persistence. Every mutation keeps the
// file rows and the owning bucket's aggregates in one transaction, so the
// counters can never drift from the rows they summarize.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a file repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches one file row.
func (r *Repository) Get(ctx context.Context, bucketID, path string) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + fileColumns + ` FROM files WHERE bucket_id = $1 AND path = $2;`
	f, err := scanFile(r.pool.QueryRow(ctx, query, bucketID, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// List returns every file in the bucket.
func (r *Repository) List(ctx context.Context, bucketID string) ([]File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + fileColumns + ` FROM files WHERE bucket_id = $1 ORDER BY path;`
	rows, err := r.pool.Query(ctx, query, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// Upsert stores file metadata, updating the existing row when the key is
// already present and inserting a fresh row with a new short code otherwise.
// The second return value reports whether a row was created.
func (r *Repository) Upsert(ctx context.Context, f File, newCode func() string) (File, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	return upsertWithRetry(ctx, upsertSteps{
		update: func(ctx context.Context) (File, bool, error) { return r.updateExisting(ctx, f) },
		insert: func(ctx context.Context, code string) (File, error) { return r.insertNew(ctx, f, code) },
	}, newCode)
}

// upsertSteps separates the two storage attempts from the retry policy.
type upsertSteps struct {
	update func(ctx context.Context) (File, bool, error)
	insert func(ctx context.Context, code string) (File, error)
}

// upsertWithRetry drives the update-or-insert loop. Short-code collisions
// retry with a new code from newCode; a concurrent insert of the same key
// also surfaces as a unique violation and is absorbed by the next
// iteration's update attempt.
func upsertWithRetry(ctx context.Context, steps upsertSteps, newCode func() string) (File, bool, error) {
	for attempt := 0; attempt < maxShortCodeAttempts; attempt++ {
		stored, found, err := steps.update(ctx)
		if err != nil {
			return File{}, false, err
		}
		if found {
			return stored, false, nil
		}

		stored, err = steps.insert(ctx, newCode())
		if err == nil {
			return stored, true, nil
		}
		if !isUniqueViolation(err) {
			return File{}, false, err
		}
	}
	return File{}, false, ErrShortCodesExhausted
}

// updateExisting replaces the metadata of an existing row and shifts the
// bucket's total_size by the size delta. Returns found=false when no row
// matches the key.
func (r *Repository) updateExisting(ctx context.Context, f File) (File, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return File{}, false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevSize int64
	err = tx.QueryRow(ctx,
		`SELECT size FROM files WHERE bucket_id = $1 AND path = $2 FOR UPDATE;`,
		f.BucketID, f.Path,
	).Scan(&prevSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, fmt.Errorf("lock file row: %w", err)
	}

	query := `
UPDATE files SET name = $3, size = $4, mime_type = $5, updated_at = NOW()
WHERE bucket_id = $1 AND path = $2
RETURNING ` + fileColumns + `;`

	stored, err := scanFile(tx.QueryRow(ctx, query, f.BucketID, f.Path, f.Name, f.Size, f.MimeType))
	if err != nil {
		return File{}, false, fmt.Errorf("update file: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE buckets SET total_size = GREATEST(total_size + $2, 0), last_used_at = NOW() WHERE id = $1;`,
		f.BucketID, f.Size-prevSize,
	)
	if err != nil {
		return File{}, false, fmt.Errorf("update bucket usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return File{}, false, fmt.Errorf("commit upsert: %w", err)
	}
	return stored, true, nil
}

// insertNew creates the file row, its short URL, and the bucket aggregate
// bump in one transaction.
func (r *Repository) insertNew(ctx context.Context, f File, code string) (File, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return File{}, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
INSERT INTO files (bucket_id, path, name, size, mime_type, short_code)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + fileColumns + `;`

	stored, err := scanFile(tx.QueryRow(ctx, query, f.BucketID, f.Path, f.Name, f.Size, f.MimeType, code))
	if err != nil {
		return File{}, fmt.Errorf("insert file: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO short_urls (code, bucket_id, file_path) VALUES ($1, $2, $3);`,
		code, f.BucketID, f.Path,
	)
	if err != nil {
		return File{}, fmt.Errorf("insert short url: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE buckets SET file_count = file_count + 1, total_size = total_size + $2, last_used_at = NOW() WHERE id = $1;`,
		f.BucketID, f.Size,
	)
	if err != nil {
		return File{}, fmt.Errorf("update bucket usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return File{}, fmt.Errorf("commit insert: %w", err)
	}
	return stored, nil
}

// UpdateSize records the file's new length after an in-place patch and shifts
// the bucket's total_size by the delta.
func (r *Repository) UpdateSize(ctx context.Context, bucketID, path string, size int64) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return File{}, fmt.Errorf("begin size update: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevSize int64
	err = tx.QueryRow(ctx,
		`SELECT size FROM files WHERE bucket_id = $1 AND path = $2 FOR UPDATE;`,
		bucketID, path,
	).Scan(&prevSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return File{}, ErrFileNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("lock file row: %w", err)
	}

	query := `
UPDATE files SET size = $3, updated_at = NOW()
WHERE bucket_id = $1 AND path = $2
RETURNING ` + fileColumns + `;`

	stored, err := scanFile(tx.QueryRow(ctx, query, bucketID, path, size))
	if err != nil {
		return File{}, fmt.Errorf("update file size: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE buckets SET total_size = GREATEST(total_size + $2, 0), last_used_at = NOW() WHERE id = $1;`,
		bucketID, size-prevSize,
	)
	if err != nil {
		return File{}, fmt.Errorf("update bucket usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return File{}, fmt.Errorf("commit size update: %w", err)
	}
	return stored, nil
}

// Delete removes the file row, its short URL, and decrements the bucket
// aggregates, floored at zero. Returns the deleted row so the caller can
// invalidate its cache entries.
func (r *Repository) Delete(ctx context.Context, bucketID, path string) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return File{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `DELETE FROM files WHERE bucket_id = $1 AND path = $2 RETURNING ` + fileColumns + `;`
	deleted, err := scanFile(tx.QueryRow(ctx, query, bucketID, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("delete file: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM short_urls WHERE bucket_id = $1 AND file_path = $2;`, bucketID, path)
	if err != nil {
		return File{}, fmt.Errorf("delete short url: %w", err)
	}

	// Floors guard against double-decrement if a past crash left the
	// aggregates behind the rows.
	_, err = tx.Exec(ctx,
		`UPDATE buckets SET file_count = GREATEST(file_count - 1, 0), total_size = GREATEST(total_size - $2, 0) WHERE id = $1;`,
		bucketID, deleted.Size,
	)
	if err != nil {
		return File{}, fmt.Errorf("update bucket usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return File{}, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanFile(row pgx.Row) (File, error) {
	var f File
	err := row.Scan(
		&f.BucketID,
		&f.Path,
		&f.Name,
		&f.Size,
		&f.MimeType,
		&f.ShortCode,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	return f, err
}
