package supabase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"dompet/internal/auth"
	"dompet/internal/store"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	apikey string
	prefer string
	accept string
	body   map[string]any
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, rec *recorded)) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		rec.apikey = r.Header.Get("apikey")
		rec.prefer = r.Header.Get("Prefer")
		rec.accept = r.Header.Get("Accept")
		rec.body = nil
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		handler(w, r, rec)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL + "/", AnonKey: "anon"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, rec
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{AnonKey: "x"}); err == nil {
		t.Error("expected error without url")
	}
	if _, err := New(Config{URL: "https://x.supabase.co"}); err == nil {
		t.Error("expected error without anon key")
	}
}

func TestRESTSelect(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		_, _ = w.Write([]byte(`[{"id": 3, "name": "Kopi", "amount": 12500.5, "is_active": true}]`))
	})
	s := NewRESTStore(c)
	ctx := store.WithAccessToken(context.Background(), "user-token")

	rows, err := s.Select(ctx, store.Query{
		Table:   "categories",
		Filters: []store.Filter{store.Eq("type", "expense"), store.NotNull("parent_id"), store.Eq("is_active", true)},
		Order:   []store.Order{{Column: "name"}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if rec.method != http.MethodGet || rec.path != "/rest/v1/categories" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}
	want := "is_active=eq.true&order=name.asc&parent_id=not.is.null&select=%2A&type=eq.expense"
	if rec.query != want {
		t.Errorf("query = %s\nwant  %s", rec.query, want)
	}
	if rec.auth != "Bearer user-token" || rec.apikey != "anon" {
		t.Errorf("auth headers = %q / %q", rec.auth, rec.apikey)
	}

	wantRows := []store.Row{{"id": int64(3), "name": "Kopi", "amount": json.Number("12500.5"), "is_active": true}}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
}

func TestRESTSelectUsesAnonKeyWithoutSession(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		_, _ = w.Write([]byte(`[]`))
	})
	rows, err := NewRESTStore(c).Select(context.Background(), store.Query{
		Table: "debts",
		Order: []store.Order{{Column: "due-date"}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v", rows)
	}
	if rec.auth != "Bearer anon" {
		t.Errorf("Authorization = %q", rec.auth)
	}
	if rec.query != "order=due-date.asc&select=%2A" {
		t.Errorf("query = %q", rec.query)
	}
}

func TestRESTInsertUpdateDelete(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, rec *recorded) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 10, "name": "Laptop", "user_id": "u-1"}`))
		case http.MethodPatch:
			if r.URL.Query().Get("id") == "eq.404" {
				w.WriteHeader(http.StatusNotAcceptable)
				_, _ = w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned","details":"The result contains 0 rows","hint":null}`))
				return
			}
			_, _ = w.Write([]byte(`{"id": 10, "name": "Laptop baru"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	s := NewRESTStore(c)
	ctx := store.WithOwner(store.WithAccessToken(context.Background(), "tok"), "u-1")

	row, err := s.Insert(ctx, "goals", store.Row{"name": "Laptop"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if row["id"] != int64(10) {
		t.Errorf("inserted id = %#v", row["id"])
	}
	if rec.prefer != "return=representation" || rec.accept != "application/vnd.pgrst.object+json" {
		t.Errorf("insert headers prefer=%q accept=%q", rec.prefer, rec.accept)
	}
	if _, ok := rec.body["user_id"]; ok || rec.body["name"] != "Laptop" {
		t.Errorf("insert body = %v", rec.body)
	}

	row, err = s.Update(ctx, "goals", store.Row{"name": "Laptop baru"}, []store.Filter{store.Eq("id", int64(10))})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if row["name"] != "Laptop baru" || rec.query != "id=eq.10" {
		t.Errorf("update row=%v query=%q", row, rec.query)
	}

	if _, err := s.Update(ctx, "goals", store.Row{"name": "x"}, []store.Filter{store.Eq("id", int64(404))}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, "goals", []store.Filter{store.Eq("id", int64(10))}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rec.method != http.MethodDelete || rec.query != "id=eq.10" {
		t.Errorf("delete = %s %s", rec.method, rec.query)
	}
}

func TestRESTErrorBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"42703","message":"column goals.nope does not exist","details":null,"hint":"Perhaps you meant goals.name"}`))
	})
	_, err := NewRESTStore(c).Select(context.Background(), store.Query{Table: "goals", Order: []store.Order{{Column: "nope"}}})
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if se.Code != "42703" || se.Hint != "Perhaps you meant goals.name" || se.Status != http.StatusBadRequest {
		t.Errorf("error = %+v", se)
	}
}

const tokenBody = `{
	"access_token": "acc",
	"token_type": "bearer",
	"expires_in": 3600,
	"expires_at": 1893456000,
	"refresh_token": "ref",
	"user": {"id": "u-1", "email": "siti@example.com", "created_at": "2025-01-01T00:00:00Z", "user_metadata": {"full_name": "Siti"}}
}`

func TestGoTrueSignIn(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		if r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
		}
		_, _ = w.Write([]byte(tokenBody))
	})
	s, err := NewAuth(c, "").SignInWithPassword(context.Background(), "siti@example.com", "rahasia")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if rec.path != "/auth/v1/token" || rec.body["email"] != "siti@example.com" || rec.body["password"] != "rahasia" {
		t.Errorf("request = %s %v", rec.path, rec.body)
	}
	want := &auth.Session{
		AccessToken:  "acc",
		RefreshToken: "ref",
		TokenType:    "bearer",
		ExpiresAt:    time.Unix(1893456000, 0),
		User: auth.User{
			ID:        "u-1",
			Email:     "siti@example.com",
			FullName:  "Siti",
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("session (-want +got):\n%s", diff)
	}
}

func TestGoTrueSignInInvalidCredentials(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
	})
	_, err := NewAuth(c, "").SignInWithPassword(context.Background(), "a@b.c", "x")
	if err == nil || err.Error() != "Invalid login credentials" {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, auth.ErrUnavailable) {
		t.Error("a rejection must not count as unavailable")
	}
	if msg, ok := auth.PublicMessage(err); !ok || msg != "Invalid login credentials" {
		t.Errorf("PublicMessage = %q, %v", msg, ok)
	}
}

func TestGoTrueUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := NewAuth(c, "").RefreshSession(context.Background(), "ref")
	if !errors.Is(err, auth.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	down, err := New(Config{URL: "http://127.0.0.1:1", AnonKey: "anon", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewAuth(down, "").GetUser(context.Background(), "tok"); !errors.Is(err, auth.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for refused connection, got %v", err)
	}
}

func TestGoTrueSignUp(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSession bool
	}{
		{name: "auto confirm", body: tokenBody, wantSession: true},
		{name: "confirmation required", body: `{"id":"u-2","email":"siti@example.com","user_metadata":{"full_name":"Siti"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
				_, _ = w.Write([]byte(tt.body))
			})
			u, s, err := NewAuth(c, "").SignUp(context.Background(), "siti@example.com", "rahasia", "Siti")
			if err != nil {
				t.Fatalf("SignUp: %v", err)
			}
			if rec.path != "/auth/v1/signup" {
				t.Errorf("path = %s", rec.path)
			}
			data, _ := rec.body["data"].(map[string]any)
			if data["full_name"] != "Siti" {
				t.Errorf("metadata = %v", rec.body["data"])
			}
			if (s != nil) != tt.wantSession {
				t.Errorf("session = %+v", s)
			}
			if u == nil || u.FullName != "Siti" || u.Email != "siti@example.com" {
				t.Errorf("user = %+v", u)
			}
		})
	}
}

func TestGoTrueSignOutAndGetUser(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		switch r.URL.Path {
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		case "/auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"u-1","email":"a@b.c","user_metadata":{}}`))
		}
	})
	a := NewAuth(c, "")
	if err := a.SignOut(context.Background(), "acc"); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if rec.method != http.MethodPost || rec.auth != "Bearer acc" {
		t.Errorf("logout = %s auth=%q", rec.method, rec.auth)
	}
	u, err := a.GetUser(context.Background(), "acc")
	if err != nil || u.ID != "u-1" {
		t.Fatalf("GetUser = %+v, %v", u, err)
	}
}

func TestGoTrueGetUserRejectedToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"error_code":"bad_jwt","msg":"invalid JWT: token is expired"}`))
	})
	_, err := NewAuth(c, "").GetUser(context.Background(), "stale")
	var se *Error
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, auth.ErrUnavailable) {
		t.Error("a rejected token must not count as unavailable")
	}
}

func TestGoTrueGetUserLocalVerification(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ *recorded) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := NewAuth(c, "project-jwt-secret").GetUser(context.Background(), "not-a-jwt")
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("err = %v", err)
	}
	if rec.method != "" {
		t.Errorf("local verification called the provider: %s", rec.method)
	}
}
