// Package ident generates random alphanumeric identifiers for buckets,
// short codes, and upload tokens.
package ident

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// BucketIDLength is the length of a bucket identifier.
	BucketIDLength = 10
	// ShortCodeLength is the length of a short-url code.
	ShortCodeLength = 6
	// UploadTokenLength is the length of an upload token.
	UploadTokenLength = 32
)

// rejectAbove is the largest multiple of len(alphabet) that fits in a byte.
// Bytes at or above it are discarded so every character stays equally
// likely; taking the remainder directly would skew toward the low letters.
const rejectAbove = byte(256 / len(alphabet) * len(alphabet))

// New returns a uniformly random alphanumeric string of length n.
func New(n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand never fails on supported platforms
			panic(fmt.Sprintf("read random bytes: %v", err))
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
