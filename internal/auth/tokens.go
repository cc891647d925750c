package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenAudience = "authenticated"
	useAccess     = "access"
	useRefresh    = "refresh"
)

// Claims follow the hosted auth service's access token layout so tokens from
// either authenticator verify the same way.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	TokenUse     string         `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) user() *User {
	u := &User{ID: c.Subject, Email: c.Email}
	if name, ok := c.UserMetadata["full_name"].(string); ok {
		u.FullName = name
	}
	return u
}

// TokenVerifier checks HS256 tokens signed with the project secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses an access token and returns the user it was issued to.
func (v *TokenVerifier) Verify(token string) (*User, error) {
	c, err := v.parse(token)
	if err != nil {
		return nil, err
	}
	if c.TokenUse == useRefresh {
		return nil, fmt.Errorf("%w: refresh token used as access token", ErrInvalidToken)
	}
	return c.user(), nil
}

func (v *TokenVerifier) parse(token string) (*Claims, error) {
	c := &Claims{}
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return c, nil
}

// tokenIssuer mints access/refresh pairs for the local authenticator.
type tokenIssuer struct {
	*TokenVerifier
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func (t *tokenIssuer) issue(u User, sessionID string) (*Session, error) {
	now := t.now()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	access, err := t.sign(u, sessionID, useAccess, now, t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(u, sessionID, useRefresh, now, t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    now.Add(t.accessTTL),
		User:         u,
	}, nil
}

func (t *tokenIssuer) sign(u User, sessionID, use string, now time.Time, ttl time.Duration) (string, error) {
	c := Claims{
		Email:     u.Email,
		Role:      "authenticated",
		SessionID: sessionID,
		TokenUse:  use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if u.FullName != "" {
		c.UserMetadata = map[string]any{"full_name": u.FullName}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
