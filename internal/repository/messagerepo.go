package repository

import (
	"context"

	"github.com/and161185/goph-talk/internal/model"
)

// MessageRepository is the durable, append-only record of direct messages.
type MessageRepository interface {
	// Append persists a message and returns it with the store-assigned ID and timestamp.
	Append(ctx context.Context, fromID, toID int64, content string) (model.Message, error)

	// History returns every message exchanged between a and b in either direction,
	// ordered by creation time, ties broken by ID.
	History(ctx context.Context, a, b int64) ([]model.Message, error)
}
