package http

import (
	"errors"
	"net/http"

	"dompet/internal/auth"
	"dompet/internal/guard"
	"dompet/internal/log"
)

const (
	msgAuthUnavailable = "Layanan autentikasi sedang tidak tersedia. Coba lagi nanti."
	msgAuthFailed      = "Terjadi kesalahan. Coba lagi nanti."
)

// authError picks the form message for a failed sign-in or sign-up. Only
// provider messages meant for users are shown verbatim.
func authError(err error) string {
	if msg, ok := auth.PublicMessage(err); ok {
		return msg
	}
	return msgAuthFailed
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Masuk"}
	if r.URL.Query().Get("confirm") == "1" {
		data.Notice = "Pendaftaran berhasil. Periksa email Anda untuk konfirmasi."
	}
	s.render(w, r, http.StatusOK, "login", data)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup", pageData{Title: "Daftar"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login", pageData{Title: "Masuk", Error: "Format permintaan tidak valid"})
		return
	}

	email := p.Get("email")
	password := p.GetRaw("password")
	data := pageData{Title: "Masuk", Email: email}
	if email == "" || password == "" {
		data.Error = "Email dan kata sandi wajib diisi"
		s.render(w, r, http.StatusUnprocessableEntity, "login", data)
		return
	}

	id, err := s.sessions.SignIn(ctx, email, password)
	switch {
	case errors.Is(err, auth.ErrUnavailable):
		data.Error = msgAuthUnavailable
		s.render(w, r, http.StatusServiceUnavailable, "login", data)
		return
	case err != nil:
		data.Error = authError(err)
		s.render(w, r, http.StatusUnauthorized, "login", data)
		return
	}

	auth.WriteSessionCookie(w, id, s.cookie)
	guard.Redirect(w, r, guard.HomePath)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.render(w, r, http.StatusBadRequest, "signup", pageData{Title: "Daftar", Error: "Format permintaan tidak valid"})
		return
	}

	data := pageData{Title: "Daftar", Email: p.Get("email"), FullName: p.Get("full_name")}
	password := p.GetRaw("password")
	if data.Email == "" || password == "" || data.FullName == "" {
		data.Error = "Nama, email dan kata sandi wajib diisi"
		s.render(w, r, http.StatusUnprocessableEntity, "signup", data)
		return
	}

	id, err := s.sessions.SignUp(ctx, data.Email, password, data.FullName)
	switch {
	case errors.Is(err, auth.ErrUnavailable):
		data.Error = msgAuthUnavailable
		s.render(w, r, http.StatusServiceUnavailable, "signup", data)
		return
	case err != nil:
		data.Error = authError(err)
		s.render(w, r, http.StatusUnprocessableEntity, "signup", data)
		return
	}

	if id == "" {
		// Email confirmation pending; there is no session yet.
		guard.Redirect(w, r, guard.LoginPath+"?confirm=1")
		return
	}
	auth.WriteSessionCookie(w, id, s.cookie)
	guard.Redirect(w, r, guard.HomePath)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.ReadSessionCookie(r); ok {
		s.sessions.SignOut(r.Context(), id)
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Logout without session cookie")
	}
	auth.ClearSessionCookie(w, s.cookie)
	guard.Redirect(w, r, guard.LoginPath)
}
