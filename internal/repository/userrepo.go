// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/goph-talk/internal/model"
)

// UserRepository provides access to the user directory.
type UserRepository interface {
	// Create inserts a new user and fills in its ID and CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// ListExcept returns every user but the given one, ordered by ID.
	ListExcept(ctx context.Context, id int64) ([]model.User, error)
	// MarkPhoneVerified flags the user's phone as confirmed.
	MarkPhoneVerified(ctx context.Context, id int64) error
}
