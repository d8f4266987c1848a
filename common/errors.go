// Package common contains shared constants and sentinel errors used across
// the sync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrCacheEmpty signals that an offline read had no cached data to fall
	// back on (the cache was never populated). Callers can degrade gracefully
	// instead of treating it as a hard failure.
	ErrCacheEmpty = errors.New("local data unavailable")

	// Remote/transport errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors (local precondition checks, never sent to the wire).
	ErrValidation = errors.New("validation error")
)
