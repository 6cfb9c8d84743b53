// Package convert maps domain values to and from the JSON wire types.
package convert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/and161185/goph-talk/internal/api"
	"github.com/and161185/goph-talk/internal/errs"
	model "github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/service"
)

// --- helpers ---

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// --- Messages (server -> client) ---

// ToAPIMessage converts a stored message to its wire form.
func ToAPIMessage(m model.Message) api.Message {
	return api.Message{
		ID:        m.ID,
		FromID:    m.FromID,
		ToID:      m.ToID,
		Content:   m.Content,
		Timestamp: ms(m.CreatedAt),
	}
}

// ToAPIMessages converts a history slice; the result is never nil.
func ToAPIMessages(msgs []model.Message) []api.Message {
	return lo.Map(msgs, func(m model.Message, _ int) api.Message { return ToAPIMessage(m) })
}

// MessageFrame wraps a message for push on a live connection.
func MessageFrame(m model.Message) *api.Frame {
	am := ToAPIMessage(m)
	return &api.Frame{Type: api.FramePrivateMessage, Message: &am}
}

// ErrorFrame reports a failure to the connection that caused it.
func ErrorFrame(msg string) *api.Frame {
	return &api.Frame{Type: api.FrameError, Error: msg}
}

// SendErrorFrame reports a rejected send to its origin without leaking storage details.
func SendErrorFrame(err error) *api.Frame {
	var msg string
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		msg = err.Error()
	case errors.Is(err, errs.ErrNotFound):
		msg = "recipient not found"
	case errors.Is(err, errs.ErrStorage):
		msg = "message could not be saved"
	case errors.Is(err, errs.ErrSessionClosed):
		msg = "session closed"
	default:
		msg = "internal error"
	}
	return ErrorFrame(msg)
}

// ReadyFrame acknowledges an authenticated connection.
func ReadyFrame(u api.User) *api.Frame {
	return &api.Frame{Type: api.FrameReady, User: &u}
}

// --- Users ---

// ToAPIUser converts a stored user to its public profile.
func ToAPIUser(u model.User) api.User {
	return api.User{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
	}
}

// ToAPIContacts converts the directory listing. Phones of other users are not exposed.
func ToAPIContacts(us []model.User) []api.User {
	return lo.Map(us, func(u model.User, _ int) api.User {
		out := ToAPIUser(u)
		out.Phone = ""
		return out
	})
}

// IdentityUser is the minimal profile known from a token alone.
func IdentityUser(id model.Identity) api.User {
	return api.User{ID: id.UserID, Username: id.Username, DisplayName: id.Username}
}

// ToAPIAuth builds the register/login answer.
func ToAPIAuth(u model.User, t model.Tokens) api.AuthResponse {
	return api.AuthResponse{User: ToAPIUser(u), Token: t.AccessToken, ExpiresAt: ms(t.ExpiresAt)}
}

// --- Frames (client -> server) ---

// FromAPISend extracts the send request from an inbound frame.
func FromAPISend(f *api.Frame) (to int64, content string, err error) {
	if f == nil {
		return 0, "", fmt.Errorf("%w: nil frame", errs.ErrInvalidArgument)
	}
	if !strings.EqualFold(f.Type, api.FramePrivateMessage) {
		return 0, "", fmt.Errorf("%w: unsupported frame type %q", errs.ErrInvalidArgument, f.Type)
	}
	return f.To, f.Content, nil
}

// FromAPIRegister converts a register request into service input.
func FromAPIRegister(r api.RegisterRequest) service.RegisterInput {
	return service.RegisterInput{
		Username:    r.Username,
		Password:    r.Password,
		DisplayName: r.DisplayName,
		Phone:       r.Phone,
	}
}
