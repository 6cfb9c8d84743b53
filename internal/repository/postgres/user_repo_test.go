package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
)

var userCols = []string{"id", "username", "pwd_hash", "display_name", "phone", "phone_verified", "created_at"}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()
	u := &model.User{Username: "alice", PwdHash: "h", DisplayName: "Alice", Phone: "+33 600000"}

	mock.ExpectQuery(`INSERT INTO users \(username, pwd_hash, display_name, phone\) VALUES \(\$1, \$2, \$3, \$4\) RETURNING id, created_at`).
		WithArgs(u.Username, u.PwdHash, u.DisplayName, u.Phone).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
	require.NoError(t, r.Create(ctx, u))
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, now, u.CreatedAt)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(u.Username, u.PwdHash, u.DisplayName, u.Phone).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, username, pwd_hash, display_name, phone, phone_verified, created_at FROM users WHERE id=\$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(int64(3), "bob", "h", "Bob", "123456", true, time.Now()))
	u, err := r.GetByID(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "bob", u.Username)
	require.True(t, u.PhoneVerified)

	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs(int64(4)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, 4)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("carol").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(int64(9), "carol", "h", "carol", "999999", false, time.Now()))
	u, err := r.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, int64(9), u.ID)

	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_ListExcept(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	now := time.Now()
	mock.ExpectQuery(`FROM users WHERE id<>\$1 ORDER BY id ASC`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(int64(2), "bob", "h", "Bob", "1", false, now).
			AddRow(int64(3), "carol", "h", "Carol", "2", true, now))
	out, err := r.ListExcept(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "carol", out[1].Username)

	mock.ExpectQuery(`FROM users WHERE id<>\$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(userCols))
	out, err = r.ListExcept(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestUserRepo_MarkPhoneVerified(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET phone_verified = true WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkPhoneVerified(ctx, 5))

	mock.ExpectExec(`UPDATE users SET phone_verified = true WHERE id = \$1`).
		WithArgs(int64(6)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.MarkPhoneVerified(ctx, 6), errs.ErrNotFound)
}
