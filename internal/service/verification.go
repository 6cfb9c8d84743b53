package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/limiter"
	"github.com/and161185/goph-talk/internal/repository"
)

// DefaultCodeTTL is how long an issued phone code stays valid.
const DefaultCodeTTL = 5 * time.Minute

// CodeSender delivers a confirmation code to a phone number.
type CodeSender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of sending an SMS.
type LogSender struct{ Log *zap.Logger }

func (s LogSender) Send(_ context.Context, phone, code string) error {
	s.Log.Info("verification code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

// VerificationService issues and checks phone confirmation codes.
type VerificationService interface {
	SendCode(ctx context.Context, phone string) error
	VerifyPhone(ctx context.Context, userID int64, phone, code string) error
}

type VerificationServiceImpl struct {
	codes  repository.VerificationRepository
	users  repository.UserRepository
	sender CodeSender
	lim    limiter.Limiter
	ttl    time.Duration
	now    func() time.Time
}

// NewVerificationService constructs VerificationService. lim may be nil to disable attempt limiting.
func NewVerificationService(codes repository.VerificationRepository, users repository.UserRepository, sender CodeSender, lim limiter.Limiter, ttl time.Duration) *VerificationServiceImpl {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &VerificationServiceImpl{codes: codes, users: users, sender: sender, lim: lim, ttl: ttl, now: time.Now}
}

type phoneInput struct {
	Phone string `validate:"required,phone"`
}

// SendCode stores a fresh 6-digit code for phone and hands it to the sender.
func (s *VerificationServiceImpl) SendCode(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	if err := validateStruct(phoneInput{Phone: phone}); err != nil {
		return err
	}
	code, err := newCode()
	if err != nil {
		return err
	}
	if err := s.codes.Create(ctx, phone, code, s.now().Add(s.ttl)); err != nil {
		return errs.Storage("create code", err)
	}
	return s.sender.Send(ctx, phone, code)
}

// VerifyPhone checks code against the latest matching record and marks the user's phone verified.
// Attempts are counted per (user, phone) when a limiter is configured.
func (s *VerificationServiceImpl) VerifyPhone(ctx context.Context, userID int64, phone, code string) error {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return fmt.Errorf("%w: phone and code are required", errs.ErrInvalidArgument)
	}

	subject := strconv.FormatInt(userID, 10)
	key := limiter.HashIP(phone)
	if s.lim != nil {
		allowed, _, err := s.lim.Allow(ctx, limiter.ScopeVerifyPhone, subject, key)
		if err != nil {
			return err
		}
		if !allowed {
			return errs.ErrRateLimited
		}
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return errs.Storage("get user", err)
	}
	if u.Phone != phone {
		return fmt.Errorf("%w: phone does not belong to user", errs.ErrInvalidArgument)
	}

	v, err := s.codes.Latest(ctx, phone, code)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		s.failure(ctx, subject, key)
		return errs.ErrCodeInvalid
	case err != nil:
		return errs.Storage("latest code", err)
	}
	if !s.now().Before(v.ExpiresAt) {
		return errs.ErrCodeExpired
	}

	if err := s.users.MarkPhoneVerified(ctx, userID); err != nil {
		return errs.Storage("mark verified", err)
	}
	if s.lim != nil {
		_ = s.lim.Success(ctx, limiter.ScopeVerifyPhone, subject, key)
	}
	return nil
}

func (s *VerificationServiceImpl) failure(ctx context.Context, subject string, key []byte) {
	if s.lim != nil {
		_, _, _ = s.lim.Failure(ctx, limiter.ScopeVerifyPhone, subject, key)
	}
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
