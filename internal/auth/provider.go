package auth

import (
	"context"
	"net/http"
	"time"

	"dompet/internal/log"
	"dompet/internal/store"
)

// SessionCookieName holds the opaque session id.
const SessionCookieName = "dompet_session"

type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

func WriteSessionCookie(w http.ResponseWriter, id string, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ReadSessionCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type stateKey struct{}

// WithState stores s in ctx. The Provider middleware does this for every
// request; tests use it directly.
func WithState(ctx context.Context, s State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// FromContext returns the auth state resolved by the Provider middleware.
func FromContext(ctx context.Context) (State, error) {
	s, ok := ctx.Value(stateKey{}).(State)
	if !ok {
		return State{}, ErrNoProvider
	}
	return s, nil
}

// Provider resolves the session cookie into a State once per request. A
// signed-in request also carries its access token and owner for the data
// layer.
func (m *Manager) Provider(cookie CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var state State

			if id, ok := ReadSessionCookie(r); ok {
				s, err := m.GetSession(ctx, id)
				switch {
				case err != nil:
					m.logger.WarnContext(ctx, "Auth provider unreachable", log.FieldError, err)
					state.Loading = true
				case s == nil:
					ClearSessionCookie(w, cookie)
				default:
					u := s.User
					state.User = &u
					state.Session = s
					ctx = store.WithAccessToken(ctx, s.AccessToken)
					ctx = store.WithOwner(ctx, u.ID)
					ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
				}
			}

			next.ServeHTTP(w, r.WithContext(WithState(ctx, state)))
		})
	}
}
