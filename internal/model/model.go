// Package model defines domain entities used by services and repositories.
package model

import "time"

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID            int64  // PK
	Username      string // unique
	PwdHash       string // Argon2id PHC string
	DisplayName   string
	Phone         string // unique
	PhoneVerified bool
	CreatedAt     time.Time
}

// Identity is the verified (user id, username) pair bound to a connection or request.
type Identity struct {
	UserID   int64
	Username string
}

// Identity returns the identity a token for u would carry.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

// Message is one persisted direct message. Immutable once stored.
type Message struct {
	ID        int64 // assigned by the store, strictly increasing
	FromID    int64
	ToID      int64
	Content   string
	CreatedAt time.Time // assigned by the store at insert
}

// PhoneVerification is an issued phone confirmation code.
type PhoneVerification struct {
	ID        int64
	Phone     string
	Code      string
	ExpiresAt time.Time
}
