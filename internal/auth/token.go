// Package auth issues and verifies the bearer tokens that bind requests and
// live connections to a user identity.
package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
)

// leeway tolerated on exp/nbf/iat checks.
const leeway = 30 * time.Second

// Claims is the JWT payload: the user id and username plus registered claims.
type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 access tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer constructs an Issuer with the given signing key and token TTL.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// Issue creates a signed token for id.
func (i *Issuer) Issue(id model.Identity) (model.Tokens, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verifier validates tokens produced by Issuer.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier constructs a Verifier for the given signing key.
func NewVerifier(key []byte) *Verifier {
	return &Verifier{key: key, now: time.Now}
}

// Verify checks signature, algorithm and expiry and returns the identity the token carries.
// Every failure is one of errs.ErrTokenMissing, ErrTokenMalformed, ErrTokenInvalid or ErrTokenExpired.
func (v *Verifier) Verify(token string) (model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Identity{}, errs.ErrTokenMissing
	}

	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	var claims Claims
	parsed, err := p.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case err == nil && parsed.Valid:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.Identity{}, errs.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.Identity{}, errs.ErrTokenExpired
	default:
		return model.Identity{}, errs.ErrTokenInvalid
	}

	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return model.Identity{}, errs.ErrTokenInvalid
	}
	return model.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}
