package bucket

import (
	"time"

	"github.com/google/uuid"
)

// Bucket is a named, expiring collection of files owned by one identity.
type Bucket struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	KeyPrefix     *string    `json:"key_prefix,omitempty"`
	Description   *string    `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	FileCount     int64      `json:"file_count"`
	TotalSize     int64      `json:"total_size"`
	DownloadCount int64      `json:"download_count"`
}

// Expired reports whether the bucket's expiry has passed. Reads treat an
// expired bucket identically to a purged one, regardless of whether the
// sweeper has run yet.
func (b Bucket) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// Stats is the cached aggregate view of a bucket.
type Stats struct {
	FileCount     int64 `json:"file_count"`
	TotalSize     int64 `json:"total_size"`
	DownloadCount int64 `json:"download_count"`
}
