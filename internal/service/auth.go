// Package service contains the application services: accounts, the user directory,
// phone verification and the chat core.
package service

import (
	"context"
	"strings"

	pkgcrypto "github.com/and161185/goph-talk/internal/crypto"
	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/limiter"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/repository"
)

// TokenIssuer signs access tokens for an identity.
type TokenIssuer interface {
	Issue(id model.Identity) (model.Tokens, error)
}

// RegisterInput is the account creation request.
type RegisterInput struct {
	Username    string `validate:"required,alphanum,min=3,max=30"`
	Password    string `validate:"required,min=6,max=128"`
	DisplayName string `validate:"max=50"`
	Phone       string `validate:"required,phone"`
}

// AuthService defines account creation and login.
type AuthService interface {
	// Register creates a new user with secure password hashing and signs it in.
	Register(ctx context.Context, in RegisterInput) (model.User, model.Tokens, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, username, password string, ip string) (model.Tokens, model.User, error)
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	issuer TokenIssuer
	lim    limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, issuer TokenIssuer, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, issuer: issuer, lim: lim}
}

// Register validates the input, stores the user with an Argon2id hash and issues a token.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.User, model.Tokens, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validateStruct(in); err != nil {
		return model.User{}, model.Tokens{}, err
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}

	pwdHash, err := pkgcrypto.HashPassword(in.Password)
	if err != nil {
		return model.User{}, model.Tokens{}, err
	}
	u := &model.User{
		Username:    in.Username,
		PwdHash:     pwdHash,
		DisplayName: in.DisplayName,
		Phone:       in.Phone,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.User{}, model.Tokens{}, errs.Storage("create user", err)
	}

	tok, err := s.issuer.Issue(u.Identity())
	if err != nil {
		return model.User{}, model.Tokens{}, err
	}
	return *u, tok, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	username = strings.TrimSpace(username)
	ipHash := limiter.HashIP(ip)

	// Check if requests are currently allowed for this (user, ip).
	allowed, _, err := s.lim.Allow(ctx, limiter.ScopeLogin, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	ok := false
	if err == nil {
		ok, _ = pkgcrypto.VerifyPassword(password, u.PwdHash)
	}
	if !ok {
		// Record failure; if threshold reached, report rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, limiter.ScopeLogin, username, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, limiter.ScopeLogin, username, ipHash)

	tok, err := s.issuer.Issue(u.Identity())
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}
