// Package session drives one live connection through its lifecycle:
// Connecting, then Authenticated, then Closed.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/presence"
)

// State is the lifecycle stage of a Session.
type State int

// Session states. Transitions only move forward.
const (
	Connecting State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Verifier turns a credential into an identity.
type Verifier interface {
	Verify(credential string) (model.Identity, error)
}

// Hub is the chat core as seen by a connection.
type Hub interface {
	OnConnect(conn presence.Conn, id model.Identity)
	OnDisconnect(conn presence.Conn, id model.Identity)
	SendMessage(ctx context.Context, origin presence.Conn, from model.Identity, to int64, content string) (model.Message, error)
}

// Session binds one connection to the identity it authenticated as.
type Session struct {
	conn presence.Conn
	hub  Hub
	log  *zap.Logger

	mu    sync.Mutex
	state State
	id    model.Identity

	// sendMu serializes Send so one connection's messages are stored and pushed in call order.
	sendMu sync.Mutex
}

// New creates a session in the Connecting state.
func New(conn presence.Conn, hub Hub, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{conn: conn, hub: hub, log: log.With(zap.Stringer("conn_id", conn.ID()))}
}

// Authenticate verifies credential and, on success, registers the connection as live.
// A failed verification closes the session. If Close ran while the credential was being
// verified, the connection is not registered and errs.ErrSessionClosed is returned.
func (s *Session) Authenticate(v Verifier, credential string) (model.Identity, error) {
	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		return model.Identity{}, errs.ErrSessionClosed
	}
	s.mu.Unlock()

	id, err := v.Verify(credential)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Closed
		s.log.Info("authentication failed", zap.Error(err))
		return model.Identity{}, err
	}
	if s.state != Connecting {
		return model.Identity{}, errs.ErrSessionClosed
	}
	s.state = Authenticated
	s.id = id
	s.hub.OnConnect(s.conn, id)
	s.log.Info("connection authenticated", zap.Int64("user_id", id.UserID))
	return id, nil
}

// Send stores a message from the session's identity and pushes it to live connections.
func (s *Session) Send(ctx context.Context, to int64, content string) (model.Message, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	st, id := s.state, s.id
	s.mu.Unlock()
	if st != Authenticated {
		return model.Message{}, errs.ErrSessionClosed
	}
	return s.hub.SendMessage(ctx, s.conn, id, to, content)
}

// Close ends the session. Only the first call has an effect; it deregisters the
// connection if it had been registered.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.state
	s.state = Closed
	id := s.id
	s.mu.Unlock()

	if prev == Authenticated {
		s.hub.OnDisconnect(s.conn, id)
		s.log.Info("connection closed", zap.Int64("user_id", id.UserID))
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound identity; ok is false until authentication succeeds.
func (s *Session) Identity() (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.state == Authenticated
}
