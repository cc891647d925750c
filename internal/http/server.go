package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"dompet/internal/auth"
	"dompet/internal/cache"
	"dompet/internal/guard"
	"dompet/internal/log"
	"dompet/internal/middleware/ratelimit"
	"dompet/internal/middleware/security"
	"dompet/internal/middleware/trace"
	"dompet/internal/services"
	appweb "dompet/web"
)

// Deps are the collaborators the server needs.
type Deps struct {
	Service  *services.DatabaseService
	Sessions *auth.Manager
	Cookie   auth.CookieConfig
	Logger   *log.Logger

	// AuthRateLimitPerMinute bounds POST /login and POST /signup per client.
	AuthRateLimitPerMinute int
	// Caches, when set, gets the rate limiter registered for cleanup.
	Caches *cache.Manager
}

type Server struct {
	http.Server
	templates *template.Template
	svc       *services.DatabaseService
	sessions  *auth.Manager
	cookie    auth.CookieConfig
	logger    *log.Logger

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	startedAt    time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// exemptPrefixes bypass the page guard; /api/ is guarded by RequireUser.
var exemptPrefixes = []string{"/static/", "/healthz", "/readyz", "/metrics", "/api/"}

// NewServer parses the templates, mounts every route and returns a
// ready-to-run server.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Service == nil || d.Sessions == nil {
		return nil, errors.New("http server needs a database service and a session manager")
	}
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	t, err := template.New("pages").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates: t,
		svc:       d.Service,
		sessions:  d.Sessions,
		cookie:    d.Cookie,
		logger:    logger.WithComponent(log.ComponentHTTP),
		detector:  security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: d.AuthRateLimitPerMinute,
			Logger:            logger,
		}),
		startedAt: time.Now(),
		now:       time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	if d.Caches != nil {
		d.Caches.Register(s.limiter)
	}

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		return nil, err
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static files: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Auth pages; form posts are rate limited per client.
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", limit(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.Handle("POST /signup", limit(http.HandlerFunc(s.handleSignup)))
	mux.HandleFunc("POST /logout", s.handleLogout)

	// Dashboard
	mux.Handle("GET /{$}", security.NoStore(http.HandlerFunc(s.handleIndex)))
	mux.HandleFunc("POST /transactions", s.handleQuickAdd)
	mux.HandleFunc("POST /transactions/{id}/delete", s.handleQuickDelete)

	s.apiRoutes(mux)
	return nil
}

// middleware wraps the mux, outermost first: tracing, suspicious request
// detection, security headers, auth state, page guard.
func (s *Server) middleware(mux http.Handler) http.Handler {
	loading := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "loading", pageData{Title: "Memuat"})
	})

	var h http.Handler = mux
	h = guard.Middleware(guard.Options{Loading: loading, Exempt: exemptPrefixes})(h)
	h = s.sessions.Provider(s.cookie)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

// pageData is what every page template receives.
type pageData struct {
	Title     string
	User      *auth.User
	Error     string
	Notice    string
	Email     string
	FullName  string
	Dashboard *dashboardData
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if data.User == nil {
		if st, err := auth.FromContext(r.Context()); err == nil {
			data.User = st.User
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template render failed",
			"template", name,
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
	}
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	data := pageData{Error: "Terlalu banyak percobaan. Coba lagi dalam satu menit.", Email: sanitizeInput(r.FormValue("email"))}
	name := "login"
	if r.URL.Path == "/signup" {
		name = "signup"
	}
	s.render(w, r, http.StatusTooManyRequests, name, data)
}

// Shutdown gracefully stops the HTTP server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}
