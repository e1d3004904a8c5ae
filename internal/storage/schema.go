package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the authoritative table definitions. Statements are idempotent
// so EnsureSchema is safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS buckets (
    id             VARCHAR(10) PRIMARY KEY,
    name           TEXT        NOT NULL,
    owner_id       UUID        NOT NULL,
    key_prefix     TEXT,
    description    TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at     TIMESTAMPTZ,
    last_used_at   TIMESTAMPTZ,
    file_count     BIGINT      NOT NULL DEFAULT 0,
    total_size     BIGINT      NOT NULL DEFAULT 0,
    download_count BIGINT      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_buckets_owner ON buckets (owner_id);
CREATE INDEX IF NOT EXISTS idx_buckets_expires ON buckets (expires_at) WHERE expires_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS files (
    bucket_id  VARCHAR(10) NOT NULL REFERENCES buckets (id) ON DELETE CASCADE,
    path       TEXT        NOT NULL,
    name       TEXT        NOT NULL,
    size       BIGINT      NOT NULL,
    mime_type  TEXT        NOT NULL,
    short_code VARCHAR(6),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (bucket_id, path)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_files_short_code ON files (short_code) WHERE short_code IS NOT NULL;

CREATE TABLE IF NOT EXISTS short_urls (
    code       VARCHAR(6)  PRIMARY KEY,
    bucket_id  VARCHAR(10) NOT NULL REFERENCES buckets (id) ON DELETE CASCADE,
    file_path  TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_short_urls_bucket ON short_urls (bucket_id);

CREATE TABLE IF NOT EXISTS upload_tokens (
    token        TEXT        PRIMARY KEY,
    bucket_id    VARCHAR(10) NOT NULL REFERENCES buckets (id) ON DELETE CASCADE,
    expires_at   TIMESTAMPTZ NOT NULL,
    max_uploads  BIGINT,
    uploads_used BIGINT      NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_upload_tokens_bucket ON upload_tokens (bucket_id);
`

// EnsureSchema creates the metadata tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
