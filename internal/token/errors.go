package token

import "errors"

var (
	// ErrTokenNotFound indicates the token does not exist.
	ErrTokenNotFound = errors.New("upload token not found")
	// ErrTokenNotUsable indicates the token is expired or out of quota.
	ErrTokenNotUsable = errors.New("upload token not usable")
)
