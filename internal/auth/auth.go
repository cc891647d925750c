// Package auth keeps browser sessions on top of an Authenticator (the hosted
// auth service or the local user table) and exposes the resolved auth state
// to HTTP handlers.
package auth

import (
	"context"
	"errors"
	"time"
)

// Event names mirror the hosted auth service's state change events.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

var (
	// ErrNoProvider is returned by FromContext when the Provider middleware
	// did not run for the request.
	ErrNoProvider = errors.New("auth state requested outside of the auth provider")

	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailTaken         = errors.New("User already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or expired token")

	// ErrUnavailable wraps transport failures talking to the auth provider.
	// The session is then unknown rather than absent.
	ErrUnavailable = errors.New("auth provider unavailable")
)

// publicError is implemented by provider errors whose text is meant for
// end users.
type publicError interface {
	PublicMessage() string
}

// PublicMessage returns the text of err that may be shown on a form. Store
// and transport failures report false.
func PublicMessage(err error) (string, bool) {
	for _, known := range []error{ErrInvalidCredentials, ErrEmailTaken, ErrWeakPassword, ErrInvalidEmail} {
		if errors.Is(err, known) {
			return known.Error(), true
		}
	}
	var pe publicError
	if errors.As(err, &pe) {
		return pe.PublicMessage(), true
	}
	return "", false
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// expirySkew refreshes tokens slightly before they actually expire.
const expirySkew = 30 * time.Second

// Expired reports whether the access token should be refreshed at now.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(expirySkew).Before(s.ExpiresAt)
}

// State is what handlers see for the current request.
type State struct {
	User    *User
	Session *Session
	// Loading is set when the auth provider could not be reached, so whether
	// a user is signed in is not yet known.
	Loading bool
}

// Authenticator talks to whatever actually owns the user accounts.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp creates the account. The session is nil when the provider
	// requires email confirmation first.
	SignUp(ctx context.Context, email, password, fullName string) (*User, *Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
}
