package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
)

// VerificationRepo implements VerificationRepository using PostgreSQL.
type VerificationRepo struct{ db *DB }

// NewVerificationRepo constructs a phone verification repository.
func NewVerificationRepo(db *DB) *VerificationRepo { return &VerificationRepo{db: db} }

// Create stores an issued code.
func (r *VerificationRepo) Create(ctx context.Context, phone, code string, expiresAt time.Time) error {
	const q = `INSERT INTO phone_verifications (phone, code, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, phone, code, expiresAt)
	return err
}

// Latest returns the newest record matching phone and code.
func (r *VerificationRepo) Latest(ctx context.Context, phone, code string) (*model.PhoneVerification, error) {
	const q = `
SELECT id, phone, code, expires_at
FROM phone_verifications
WHERE phone=$1 AND code=$2
ORDER BY id DESC
LIMIT 1`
	var v model.PhoneVerification
	if err := r.db.Pool.QueryRow(ctx, q, phone, code).Scan(&v.ID, &v.Phone, &v.Code, &v.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
