package file

import "time"

// File is the metadata record for one stored blob. The composite key is
// (BucketID, Path); Path is case-folded to lowercase and doubles as the
// on-disk storage key.
type File struct {
	BucketID  string    `json:"bucket_id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	ShortCode *string   `json:"short_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
