package supabase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dompet/internal/auth"
)

const (
	signupPath       = "/auth/v1/signup"
	loginPath        = "/auth/v1/token?grant_type=password"
	refreshTokenPath = "/auth/v1/token?grant_type=refresh_token"
	userPath         = "/auth/v1/user"
	logoutPath       = "/auth/v1/logout"
)

// Auth implements auth.Authenticator against GoTrue.
type Auth struct {
	c        *Client
	verifier *auth.TokenVerifier
	now      func() time.Time
}

var _ auth.Authenticator = (*Auth)(nil)

// NewAuth builds the GoTrue authenticator. A non-empty jwtSecret enables
// local access token verification.
func NewAuth(c *Client, jwtSecret string) *Auth {
	a := &Auth{c: c, now: time.Now}
	if jwtSecret != "" {
		a.verifier = auth.NewTokenVerifier(jwtSecret)
	}
	return a
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u gotrueUser) toUser() auth.User {
	out := auth.User{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		out.FullName = name
	}
	return out
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

func (t tokenResponse) session(now time.Time) *auth.Session {
	s := &auth.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		User:         t.User.toUser(),
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return s
}

// authErr marks transport failures and server errors as unavailability so
// callers can tell "unknown" from "rejected".
func authErr(err error) error {
	var se *Error
	if errors.As(err, &se) && se.Status < http.StatusInternalServerError {
		return err
	}
	return auth.Unavailable(err)
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	var resp tokenResponse
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   loginPath,
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return nil, authErr(err)
	}
	return resp.session(a.now()), nil
}

// SignUp sends fullName as user metadata. Without auto-confirm GoTrue answers
// with the bare user and no session.
func (a *Auth) SignUp(ctx context.Context, email, password, fullName string) (*auth.User, *auth.Session, error) {
	var resp struct {
		tokenResponse
		gotrueUser
	}
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   signupPath,
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     map[string]string{"full_name": fullName},
		},
	}, &resp)
	if err != nil {
		return nil, nil, authErr(err)
	}
	if resp.AccessToken == "" {
		u := resp.gotrueUser.toUser()
		return &u, nil, nil
	}
	s := resp.tokenResponse.session(a.now())
	u := s.User
	return &u, s, nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   logoutPath,
		token:  accessToken,
	}, nil)
	if err != nil {
		return authErr(err)
	}
	return nil
}

func (a *Auth) GetUser(ctx context.Context, accessToken string) (*auth.User, error) {
	if a.verifier != nil {
		return a.verifier.Verify(accessToken)
	}
	var u gotrueUser
	err := a.c.do(ctx, request{
		method: http.MethodGet,
		path:   userPath,
		token:  accessToken,
	}, &u)
	if err != nil {
		return nil, authErr(err)
	}
	out := u.toUser()
	return &out, nil
}

func (a *Auth) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	var resp tokenResponse
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   refreshTokenPath,
		body:   map[string]string{"refresh_token": refreshToken},
	}, &resp)
	if err != nil {
		return nil, authErr(err)
	}
	return resp.session(a.now()), nil
}
