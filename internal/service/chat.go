package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/and161185/goph-talk/internal/delivery"
	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/presence"
	"github.com/and161185/goph-talk/internal/repository"
)

// DefaultMaxContent caps message length in runes.
const DefaultMaxContent = 4000

// ChatService is the messaging core: it persists messages and pushes them to live connections.
type ChatService interface {
	// SendMessage stores a message from the sender and dispatches it to the recipient's
	// live connections and back to origin. Nothing is dispatched if storing fails.
	SendMessage(ctx context.Context, origin presence.Conn, from model.Identity, to int64, content string) (model.Message, error)
	// OnConnect registers an authenticated connection as live.
	OnConnect(conn presence.Conn, id model.Identity)
	// OnDisconnect removes a connection from the live set.
	OnDisconnect(conn presence.Conn, id model.Identity)
	// History returns the conversation between a and b, oldest first.
	History(ctx context.Context, a, b int64) ([]model.Message, error)
}

type ChatServiceImpl struct {
	msgs       repository.MessageRepository
	presence   *presence.Registry
	dispatch   *delivery.Dispatcher
	log        *zap.Logger
	maxContent int
}

// NewChatService wires the message store to the presence registry and dispatcher.
func NewChatService(msgs repository.MessageRepository, reg *presence.Registry, d *delivery.Dispatcher, log *zap.Logger, maxContent int) *ChatServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if maxContent <= 0 {
		maxContent = DefaultMaxContent
	}
	return &ChatServiceImpl{msgs: msgs, presence: reg, dispatch: d, log: log, maxContent: maxContent}
}

func (s *ChatServiceImpl) SendMessage(ctx context.Context, origin presence.Conn, from model.Identity, to int64, content string) (model.Message, error) {
	if to <= 0 {
		return model.Message{}, fmt.Errorf("%w: recipient is required", errs.ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return model.Message{}, fmt.Errorf("%w: empty message", errs.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > s.maxContent {
		return model.Message{}, fmt.Errorf("%w: message longer than %d characters", errs.ErrInvalidArgument, s.maxContent)
	}

	msg, err := s.msgs.Append(ctx, from.UserID, to, content)
	if err != nil {
		s.log.Warn("append failed", zap.Int64("from", from.UserID), zap.Int64("to", to), zap.Error(err))
		return model.Message{}, errs.Storage("append", err)
	}

	rep := s.dispatch.Dispatch(msg, origin)
	s.log.Debug("message dispatched",
		zap.Int64("msg_id", msg.ID),
		zap.Int("recipients", rep.Recipients),
		zap.Int("delivered", rep.Delivered),
		zap.Int("failed", rep.Failed),
		zap.Bool("echoed", rep.Echoed),
	)
	return msg, nil
}

func (s *ChatServiceImpl) OnConnect(conn presence.Conn, id model.Identity) {
	s.presence.Register(id.UserID, conn)
}

func (s *ChatServiceImpl) OnDisconnect(conn presence.Conn, id model.Identity) {
	s.presence.Deregister(id.UserID, conn)
}

func (s *ChatServiceImpl) History(ctx context.Context, a, b int64) ([]model.Message, error) {
	if a <= 0 || b <= 0 {
		return nil, fmt.Errorf("%w: user ids are required", errs.ErrInvalidArgument)
	}
	out, err := s.msgs.History(ctx, a, b)
	if err != nil {
		return nil, errs.Storage("history", err)
	}
	return out, nil
}

// Presence exposes registry counters for health output.
func (s *ChatServiceImpl) Presence() presence.Stats { return s.presence.Stats() }
