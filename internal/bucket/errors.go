package bucket

import "errors"

var (
	// ErrBucketNotFound indicates the bucket is absent or already expired.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrDenied indicates the caller may not manage this bucket.
	ErrDenied = errors.New("bucket access denied")
)
