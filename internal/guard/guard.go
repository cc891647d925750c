// Package guard decides whether a page may render for the current auth state.
package guard

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"dompet/internal/auth"
)

type Action int

const (
	Render Action = iota
	Loading
	RedirectLogin
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "render"
	}
}

const (
	LoginPath = "/login"
	HomePath  = "/"
)

var publicRoutes = map[string]bool{
	"/login":  true,
	"/signup": true,
}

// IsPublic reports whether path is reachable without a session. Matching is
// exact: "/login/extra" is not public.
func IsPublic(path string) bool {
	return publicRoutes[path]
}

// Decide maps the request path and auth state onto what the response should be.
func Decide(path string, s auth.State) Action {
	if s.Loading {
		return Loading
	}
	public := IsPublic(path)
	switch {
	case s.User == nil && !public:
		return RedirectLogin
	case s.User != nil && public:
		return RedirectHome
	}
	return Render
}

type Options struct {
	// Loading renders the page shown while auth state is unknown.
	Loading http.Handler
	// Exempt lists path prefixes the guard lets through untouched.
	Exempt []string
}

// Middleware applies Decide to every non-exempt request. Redirect outcomes
// never reach next.
func Middleware(opts Options) func(http.Handler) http.Handler {
	loading := opts.Loading
	if loading == nil {
		loading = http.HandlerFunc(defaultLoading)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range opts.Exempt {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			state, err := auth.FromContext(r.Context())
			if err != nil {
				slog.ErrorContext(r.Context(), "Guard used without auth provider", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			switch Decide(r.URL.Path, state) {
			case Loading:
				w.Header().Set("Refresh", "2")
				w.Header().Set("Cache-Control", "no-store")
				loading.ServeHTTP(w, r)
			case RedirectLogin:
				Redirect(w, r, LoginPath)
			case RedirectHome:
				Redirect(w, r, HomePath)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Redirect sends a 303, or an HX-Redirect header for htmx requests so the
// browser performs a full navigation.
func Redirect(w http.ResponseWriter, r *http.Request, to string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func defaultLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Memuat..."))
}

// RequireUser guards JSON endpoints: no redirect, just 401 (or 503 while the
// auth provider is unreachable).
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := auth.FromContext(r.Context())
		switch {
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
		case state.Loading:
			w.Header().Set("Retry-After", "2")
			writeJSONError(w, http.StatusServiceUnavailable, "auth provider unavailable")
		case state.User == nil:
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
