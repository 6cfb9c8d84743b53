package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

// Append inserts a message. id comes from a sequence and created_at from clock_timestamp(),
// so both grow with insertion order.
func (r *MessageRepo) Append(ctx context.Context, fromID, toID int64, content string) (model.Message, error) {
	const q = `
INSERT INTO messages (from_id, to_id, content)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	m := model.Message{FromID: fromID, ToID: toID, Content: content}
	if err := r.db.Pool.QueryRow(ctx, q, fromID, toID, content).Scan(&m.ID, &m.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return model.Message{}, fmt.Errorf("recipient %d: %w", toID, errs.ErrNotFound)
		}
		return model.Message{}, err
	}
	return m, nil
}

// History returns the conversation between a and b, oldest first. The pair is
// matched on (LEAST, GREATEST) so messages_pair_idx serves both lookup and order.
func (r *MessageRepo) History(ctx context.Context, a, b int64) ([]model.Message, error) {
	const q = `
SELECT id, from_id, to_id, content, created_at
FROM messages
WHERE LEAST(from_id, to_id)=$1 AND GREATEST(from_id, to_id)=$2
ORDER BY created_at ASC, id ASC`
	lo, hi := min(a, b), max(a, b)
	rows, err := r.db.Pool.Query(ctx, q, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.FromID, &m.ToID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
