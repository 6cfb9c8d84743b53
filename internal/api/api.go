// Package api defines the JSON wire types shared by the gRPC and HTTP transports
// and the CLI client.
package api

// Frame types carried on live connections.
const (
	FramePrivateMessage = "private_message"
	FrameError          = "error"
	FrameReady          = "ready"
)

// Frame is one event on a live connection, in either direction.
//
// Inbound:  {"type":"private_message","to":2,"content":"hi"}
// Outbound: {"type":"private_message","message":{...}}, {"type":"error","error":"..."},
// {"type":"ready","user":{...}}
type Frame struct {
	Type    string   `json:"type"`
	To      int64    `json:"to,omitempty"`
	Content string   `json:"content,omitempty"`
	Message *Message `json:"message,omitempty"`
	User    *User    `json:"user,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Message is a stored direct message. Timestamp is Unix milliseconds.
type Message struct {
	ID        int64  `json:"id"`
	FromID    int64  `json:"from_id"`
	ToID      int64  `json:"to_id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// User is the public profile of an account.
type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	DisplayName   string `json:"displayName"`
	Phone         string `json:"phone,omitempty"`
	PhoneVerified bool   `json:"phoneVerified"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
	Phone       string `json:"phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse answers both register and login.
type AuthResponse struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type SendVerificationRequest struct {
	Phone string `json:"phone"`
}

type VerifyPhoneRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// OKResponse acknowledges an operation with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

type Empty struct{}

type MeResponse struct {
	User User `json:"user"`
}

type ContactsResponse struct {
	Contacts []User `json:"contacts"`
}

type HistoryRequest struct {
	With int64 `json:"with"`
}

type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// ErrorResponse is the HTTP error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
