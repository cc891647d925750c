package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dompet/internal/store"
)

type fakeAuth struct {
	session     *Session
	signInErr   error
	signUpNoSes bool
	signOutErr  error
	refreshErr  error
	getUserErr  error
	getUsers    atomic.Int32
	refreshes   atomic.Int32
	refreshWait chan struct{}
	signedOut   []string
	mu          sync.Mutex
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := *f.session
	s.User.Email = email
	return &s, nil
}

func (f *fakeAuth) SignUp(_ context.Context, email, _, name string) (*User, *Session, error) {
	u := &User{ID: "new-user", Email: email, FullName: name}
	if f.signUpNoSes {
		return u, nil, nil
	}
	s := *f.session
	s.User = *u
	return u, &s, nil
}

func (f *fakeAuth) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	f.signedOut = append(f.signedOut, token)
	f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeAuth) GetUser(context.Context, string) (*User, error) {
	f.getUsers.Add(1)
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	return &f.session.User, nil
}

func (f *fakeAuth) RefreshSession(context.Context, string) (*Session, error) {
	f.refreshes.Add(1)
	if f.refreshWait != nil {
		<-f.refreshWait
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	s := *f.session
	s.AccessToken = "refreshed"
	s.ExpiresAt = time.Now().Add(24 * time.Hour)
	return &s, nil
}

func newFake() *fakeAuth {
	return &fakeAuth{session: &Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         User{ID: "u-1", Email: "a@b.c"},
	}}
}

func TestSignInStoresSessionAndEmits(t *testing.T) {
	fa := newFake()
	m := NewManager(fa, ManagerConfig{})

	var events []Event
	sub := m.OnAuthStateChange(func(_ context.Context, e Event, _ *Session) {
		events = append(events, e)
	})
	defer sub.Unsubscribe()

	id, err := m.SignIn(context.Background(), "budi@example.com", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	s, err := m.GetSession(context.Background(), id)
	if err != nil || s == nil {
		t.Fatalf("GetSession = %v, %v", s, err)
	}
	if s.User.Email != "budi@example.com" {
		t.Errorf("unexpected user %+v", s.User)
	}

	m.SignOut(context.Background(), id)
	if s, _ := m.GetSession(context.Background(), id); s != nil {
		t.Error("session should be gone after sign out")
	}
	if len(events) != 2 || events[0] != EventSignedIn || events[1] != EventSignedOut {
		t.Errorf("events = %v", events)
	}
	if len(fa.signedOut) != 1 || fa.signedOut[0] != "access" {
		t.Errorf("provider sign out not called: %v", fa.signedOut)
	}
}

func TestSignInErrorKeepsProviderMessage(t *testing.T) {
	fa := newFake()
	fa.signInErr = ErrInvalidCredentials
	m := NewManager(fa, ManagerConfig{})

	id, err := m.SignIn(context.Background(), "x@y.z", "bad")
	if id != "" || err == nil {
		t.Fatalf("expected failure, got %q %v", id, err)
	}
	if err.Error() != "Invalid login credentials" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestSignUpWithoutSession(t *testing.T) {
	fa := newFake()
	fa.signUpNoSes = true
	m := NewManager(fa, ManagerConfig{})

	id, err := m.SignUp(context.Background(), "x@y.z", "secret1", "Siti")
	if err != nil || id != "" {
		t.Fatalf("SignUp = %q, %v", id, err)
	}
}

func TestSignOutSwallowsProviderError(t *testing.T) {
	fa := newFake()
	fa.signOutErr = errors.New("boom")
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")

	m.SignOut(context.Background(), id)
	if s, _ := m.GetSession(context.Background(), id); s != nil {
		t.Error("session should be dropped even when provider fails")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager(newFake(), ManagerConfig{})
	var order []string
	first := m.OnAuthStateChange(func(context.Context, Event, *Session) { order = append(order, "first") })
	m.OnAuthStateChange(func(context.Context, Event, *Session) { order = append(order, "second") })

	_, _ = m.SignIn(context.Background(), "a@b.c", "pw")
	first.Unsubscribe()
	first.Unsubscribe()
	_, _ = m.SignIn(context.Background(), "a@b.c", "pw")

	want := []string{"first", "second", "second"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestExpiredSessionRefreshedOnce(t *testing.T) {
	fa := newFake()
	fa.refreshWait = make(chan struct{})
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	var refreshed atomic.Int32
	m.OnAuthStateChange(func(_ context.Context, e Event, _ *Session) {
		if e == EventTokenRefreshed {
			refreshed.Add(1)
		}
	})

	var wg sync.WaitGroup
	results := make([]*Session, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.GetSession(context.Background(), id)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(fa.refreshWait)
	wg.Wait()

	for _, s := range results {
		if s == nil || s.AccessToken != "refreshed" {
			t.Fatalf("expected refreshed session, got %+v", s)
		}
	}
	if n := fa.refreshes.Load(); n > 2 {
		t.Errorf("refresh called %d times", n)
	}
	if refreshed.Load() != fa.refreshes.Load() {
		t.Errorf("TOKEN_REFRESHED emitted %d times for %d refreshes", refreshed.Load(), fa.refreshes.Load())
	}
}

func TestRefreshFailureSignsOut(t *testing.T) {
	fa := newFake()
	fa.refreshErr = ErrInvalidToken
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	s, err := m.GetSession(context.Background(), id)
	if s != nil || err != nil {
		t.Fatalf("GetSession = %v, %v", s, err)
	}
}

func TestRefreshUnavailableKeepsSession(t *testing.T) {
	fa := newFake()
	fa.refreshErr = Unavailable(errors.New("dial tcp: connection refused"))
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := m.GetSession(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, ok := m.sessions.Get(id); !ok {
		t.Error("session must survive a transport failure")
	}
}

func TestRejectedAccessTokenSignsOut(t *testing.T) {
	fa := newFake()
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")

	if s, err := m.GetSession(context.Background(), id); s == nil || err != nil {
		t.Fatalf("fresh session = %v, %v", s, err)
	}
	if n := fa.getUsers.Load(); n != 0 {
		t.Errorf("token checked %d times right after sign in", n)
	}

	var events []Event
	m.OnAuthStateChange(func(_ context.Context, e Event, _ *Session) { events = append(events, e) })
	fa.getUserErr = ErrInvalidToken
	m.verified.Delete(id)

	s, err := m.GetSession(context.Background(), id)
	if s != nil || err != nil {
		t.Fatalf("GetSession = %v, %v", s, err)
	}
	if _, ok := m.sessions.Get(id); ok {
		t.Error("session with a rejected token was kept")
	}
	if len(events) != 1 || events[0] != EventSignedOut {
		t.Errorf("events = %v", events)
	}
}

func TestAccessTokenCheckedOncePerInterval(t *testing.T) {
	fa := newFake()
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")
	m.verified.Delete(id)

	for i := 0; i < 3; i++ {
		if s, _ := m.GetSession(context.Background(), id); s == nil {
			t.Fatalf("call %d lost the session", i)
		}
	}
	if n := fa.getUsers.Load(); n != 1 {
		t.Errorf("GetUser called %d times, want 1", n)
	}
}

func TestAccessTokenCheckUnavailableKeepsSession(t *testing.T) {
	fa := newFake()
	fa.getUserErr = Unavailable(errors.New("i/o timeout"))
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")
	m.verified.Delete(id)

	if _, err := m.GetSession(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	fa.getUserErr = nil
	if s, err := m.GetSession(context.Background(), id); s == nil || err != nil {
		t.Errorf("after recovery = %v, %v", s, err)
	}
}

func TestFromContextWithoutProvider(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestProviderMiddleware(t *testing.T) {
	fa := newFake()
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")

	var got State
	var owner, token string
	h := m.Provider(CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		owner, _ = store.Owner(r.Context())
		token, _ = store.AccessToken(r.Context())
	}))

	tests := []struct {
		name      string
		cookie    string
		wantUser  bool
		wantClear bool
	}{
		{name: "no cookie"},
		{name: "valid session", cookie: id, wantUser: true},
		{name: "stale cookie", cookie: "missing", wantClear: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, owner, token = State{}, "", ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if (got.User != nil) != tt.wantUser {
				t.Fatalf("user = %+v", got.User)
			}
			if got.Loading {
				t.Fatal("unexpected loading state")
			}
			if tt.wantUser && (owner != "u-1" || token != "access") {
				t.Errorf("owner=%q token=%q", owner, token)
			}
			cleared := rec.Header().Get("Set-Cookie") != ""
			if cleared != tt.wantClear {
				t.Errorf("Set-Cookie = %q", rec.Header().Get("Set-Cookie"))
			}
		})
	}
}

func TestProviderLoadingWhenUnavailable(t *testing.T) {
	fa := newFake()
	fa.refreshErr = Unavailable(errors.New("timeout"))
	m := NewManager(fa, ManagerConfig{})
	id, _ := m.SignIn(context.Background(), "a@b.c", "pw")
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	var got State
	h := m.Provider(CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !got.Loading || got.User != nil {
		t.Fatalf("state = %+v", got)
	}
}
