package file

import "errors"

var (
	// ErrFileNotFound signals that the file could not be located.
	ErrFileNotFound = errors.New("file not found")
	// ErrDenied indicates the caller may not manage this file.
	ErrDenied = errors.New("file access denied")
	// ErrShortCodesExhausted means short-code generation collided on every
	// attempt. This is fatal and should page; it is not retried further.
	ErrShortCodesExhausted = errors.New("short code generation exhausted")
)
