package repository

import (
	"context"
	"time"

	"github.com/and161185/goph-talk/internal/model"
)

// VerificationRepository stores issued phone confirmation codes.
type VerificationRepository interface {
	// Create records a code for phone valid until expiresAt.
	Create(ctx context.Context, phone, code string, expiresAt time.Time) error
	// Latest returns the most recently issued matching (phone, code) record.
	Latest(ctx context.Context, phone, code string) (*model.PhoneVerification, error)
}
