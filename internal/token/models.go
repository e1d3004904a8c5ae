package token

import "time"

// UploadToken is a bearer credential scoped to one bucket, optionally capped
// by expiry and upload count.
type UploadToken struct {
	Token       string    `json:"token"`
	BucketID    string    `json:"bucket_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxUploads  *int64    `json:"max_uploads,omitempty"`
	UploadsUsed int64     `json:"uploads_used"`
	CreatedAt   time.Time `json:"created_at"`
}

// Usable reports whether the token still admits uploads at the given instant.
func (t UploadToken) Usable(now time.Time) bool {
	if !t.ExpiresAt.After(now) {
		return false
	}
	if t.MaxUploads != nil && t.UploadsUsed >= *t.MaxUploads {
		return false
	}
	return true
}
