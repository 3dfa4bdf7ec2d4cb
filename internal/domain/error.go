package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound              = errors.New("entity not found")
	ErrAlreadyExists         = errors.New("entity already exists")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrInvalidExecContext    = errors.New("invalid execution context")
	ErrSessionClosed         = errors.New("session is closed")
	ErrInvalidTransition     = errors.New("invalid session state transition")
	ErrSessionBusy           = errors.New("session has an exchange in progress")
	ErrLocked                = errors.New("resource is locked")
	ErrDecryption            = errors.New("decryption failed")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrUnauthorized          = errors.New("invalid credentials")
	ErrRateLimited           = errors.New("rate limit exceeded")
)

// ErrValidation is the caller-fault error kind. Kept as an alias so repositories
// and use cases can keep returning ErrInvalidArgument.
var ErrValidation = ErrInvalidArgument
