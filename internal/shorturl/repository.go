package shorturl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository provides access to short URL persistence. Rows are created by
// the file repository as part of the upload transaction; this repository
// only reads and deletes them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a short URL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches the mapping for a code.
func (r *Repository) Get(ctx context.Context, code string) (ShortURL, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT code, bucket_id, file_path, created_at FROM short_urls WHERE code = $1;`

	var su ShortURL
	err := r.pool.QueryRow(ctx, query, code).Scan(&su.Code, &su.BucketID, &su.FilePath, &su.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShortURL{}, ErrShortURLNotFound
		}
		return ShortURL{}, fmt.Errorf("get short url: %w", err)
	}
	return su, nil
}

// Delete removes the mapping and clears the file's short_code so the next
// upload of that file can mint a fresh one. Absence is not an error.
func (r *Repository) Delete(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin short url delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE files SET short_code = NULL WHERE short_code = $1;`, code); err != nil {
		return fmt.Errorf("clear file short code: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM short_urls WHERE code = $1;`, code); err != nil {
		return fmt.Errorf("delete short url: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit short url delete: %w", err)
	}
	return nil
}
