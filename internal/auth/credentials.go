package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token is available.
	ErrMissingToken = errors.New("missing token")
	// ErrTokenExpired is returned when the token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized is returned when a server rejected the credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims are the token claims the client cares about.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Credentials are what a session needs to talk to the chat service.
type Credentials struct {
	Token     string
	Identity  string    // sender identity, usually the account email
	ExpiresAt time.Time // zero when unknown
}

// Resolve builds credentials from a raw token. The token is inspected, not verified:
// verification is the server's job. Opaque tokens are accepted as-is.
func Resolve(token, identity string) Credentials {
	creds := Credentials{
		Token:    strings.TrimSpace(token),
		Identity: strings.TrimSpace(identity),
	}
	if creds.Token == "" {
		return creds
	}

	claims, err := Inspect(creds.Token)
	if err != nil {
		return creds
	}
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	if creds.Identity == "" {
		creds.Identity = claims.Email
	}
	if creds.Identity == "" {
		creds.Identity = claims.Subject
	}
	return creds
}

// Inspect decodes a JWT without checking its signature.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Check reports whether the credentials can be used at the given time.
func Check(creds Credentials, now time.Time) error {
	if creds.Token == "" {
		return ErrMissingToken
	}
	if !creds.ExpiresAt.IsZero() && creds.ExpiresAt.Before(now) {
		return ErrTokenExpired
	}
	return nil
}

// Bearer returns the Authorization header value.
func (c Credentials) Bearer() string {
	return "Bearer " + c.Token
}

// IsAuthError reports whether err means the user has to log in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrUnauthorized)
}
