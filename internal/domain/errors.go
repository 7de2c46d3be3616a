package domain

import "errors"

var (
	// ErrUnauthenticated covers a missing or mismatched signature and malformed payloads.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound means the identity has no profile record (or the row is missing).
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable covers connectivity failures and timeouts talking to the store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput is returned when a write request fails validation.
	ErrInvalidInput = errors.New("invalid input")
)
