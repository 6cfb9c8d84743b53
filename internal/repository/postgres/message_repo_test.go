package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/goph-talk/internal/errs"
)

func TestMessageRepo_Append_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO messages \(from_id, to_id, content\) VALUES \(\$1, \$2, \$3\) RETURNING id, created_at`).
		WithArgs(int64(1), int64(2), "hi").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), at))

	m, err := r.Append(context.Background(), 1, 2, "hi")
	require.NoError(t, err)
	require.Equal(t, int64(10), m.ID)
	require.Equal(t, int64(1), m.FromID)
	require.Equal(t, int64(2), m.ToID)
	require.Equal(t, "hi", m.Content)
	require.Equal(t, at, m.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Append_UnknownRecipient(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(int64(1), int64(99), "hi").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := r.Append(context.Background(), 1, 99, "hi")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMessageRepo_Append_DriverError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	boom := errors.New("connection reset")
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(int64(1), int64(2), "hi").
		WillReturnError(boom)

	m, err := r.Append(context.Background(), 1, 2, "hi")
	require.ErrorIs(t, err, boom)
	require.Zero(t, m.ID)
}

func TestMessageRepo_History(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, from_id, to_id, content, created_at FROM messages WHERE LEAST\(from_id, to_id\)=\$1 AND GREATEST\(from_id, to_id\)=\$2 ORDER BY created_at ASC, id ASC`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_id", "to_id", "content", "created_at"}).
			AddRow(int64(1), int64(1), int64(2), "hi", t0).
			AddRow(int64(2), int64(2), int64(1), "hey", t0.Add(time.Second)))

	out, err := r.History(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "hi", out[0].Content)
	require.Equal(t, int64(2), out[1].FromID)
}

func TestMessageRepo_History_PairIsOrderless(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	// (5, 3) and (3, 5) hit the same index key
	for _, pair := range [][2]int64{{5, 3}, {3, 5}} {
		mock.ExpectQuery(`WHERE LEAST\(from_id, to_id\)=\$1 AND GREATEST\(from_id, to_id\)=\$2`).
			WithArgs(int64(3), int64(5)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "from_id", "to_id", "content", "created_at"}))
		_, err := r.History(context.Background(), pair[0], pair[1])
		require.NoError(t, err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_History_Empty_And_Error(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	mock.ExpectQuery(`FROM messages`).
		WithArgs(int64(1), int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_id", "to_id", "content", "created_at"}))
	out, err := r.History(context.Background(), 1, 3)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)

	mock.ExpectQuery(`FROM messages`).
		WithArgs(int64(1), int64(3)).
		WillReturnError(errors.New("down"))
	_, err = r.History(context.Background(), 1, 3)
	require.Error(t, err)
}
