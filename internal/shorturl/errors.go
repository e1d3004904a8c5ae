package shorturl

import "errors"

var (
	// ErrShortURLNotFound covers unknown codes and codes whose bucket has
	// expired; callers cannot tell the two apart.
	ErrShortURLNotFound = errors.New("short url not found")
	// ErrDenied indicates the caller may not manage this short URL.
	ErrDenied = errors.New("short url access denied")
)
