// Package limiter defines interfaces and implementations for attempt rate limiting
// (login and phone code checks).
package limiter

import (
	"context"
	"time"
)

// Scopes keep counters for different flows apart.
const (
	ScopeLogin       = "login"
	ScopeVerifyPhone = "verify_phone"
)

// Limiter controls attempts and temporary lockouts per (scope, subject, ip).
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, scope, subject string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, scope, subject string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, scope, subject string, ipHash []byte) (bool, time.Duration, error)
}
