package service

import (
	"context"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/repository"
)

// UserService exposes the user directory to signed-in users.
type UserService interface {
	// Me returns the caller's own profile.
	Me(ctx context.Context, userID int64) (model.User, error)
	// Contacts lists every other user, ordered by ID.
	Contacts(ctx context.Context, userID int64) ([]model.User, error)
}

type UserServiceImpl struct {
	users repository.UserRepository
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository) *UserServiceImpl {
	return &UserServiceImpl{users: users}
}

func (s *UserServiceImpl) Me(ctx context.Context, userID int64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, errs.Storage("get user", err)
	}
	return *u, nil
}

func (s *UserServiceImpl) Contacts(ctx context.Context, userID int64) ([]model.User, error) {
	out, err := s.users.ListExcept(ctx, userID)
	if err != nil {
		return nil, errs.Storage("list users", err)
	}
	return out, nil
}
