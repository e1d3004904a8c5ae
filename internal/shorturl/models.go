package shorturl

import "time"

// ShortURL maps a 6-character code onto a file. Codes are minted during
// upload and removed with the file or bucket they point at.
type ShortURL struct {
	Code      string    `json:"code"`
	BucketID  string    `json:"bucket_id"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}
