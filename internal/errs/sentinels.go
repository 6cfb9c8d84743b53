// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates a request that failed validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage indicates the persistence layer could not serve the call.
	ErrStorage = errors.New("storage unavailable")
)

// Credential failures. All of them match ErrUnauthorized with errors.Is.
var (
	ErrTokenMissing   = fmt.Errorf("%w: missing token", ErrUnauthorized)
	ErrTokenMalformed = fmt.Errorf("%w: malformed token", ErrUnauthorized)
	ErrTokenInvalid   = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrUnauthorized)
)

// Connection and session lifecycle.
var (
	// ErrSessionClosed is returned for operations on a session that is not authenticated.
	ErrSessionClosed = errors.New("session closed")

	// ErrConnClosed is returned when pushing to a connection that already went away.
	ErrConnClosed = errors.New("connection closed")

	// ErrSlowConsumer is returned when a connection's outbound queue is full.
	ErrSlowConsumer = errors.New("outbound queue full")
)

// Phone verification.
var (
	ErrCodeInvalid = errors.New("invalid code")
	ErrCodeExpired = errors.New("code expired")
)

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + ErrStorage.Error() + ": " + e.Err.Error() }

// Unwrap exposes the driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it is nil or already a domain sentinel
// the caller should see as is.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
