package domain

import "errors"

// Lookup and input errors. The HTTP layer maps these to 404 and 400.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidPeriod = errors.New("invalid period")
)

// Auth errors. ErrInvalidAPIKey is the ingress shared secret mismatch;
// the token errors come from bearer authentication.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
)

// Pipeline errors.
var (
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrLockStoreUnavailable means the dedupe claim store could not be
	// reached. The receipt is retried, never routed on a guess.
	ErrLockStoreUnavailable = errors.New("lock store unavailable")

	// ErrLockNotHeld is returned when extending a lease this process does
	// not own.
	ErrLockNotHeld = errors.New("lock not held")

	ErrUnsupportedMimeType = errors.New("unsupported mime type")
	ErrUnknownTaskType     = errors.New("unknown task type")
)
