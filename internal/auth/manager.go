package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"dompet/internal/cache"
	"dompet/internal/log"
)

// Listener is called for every session state change.
type Listener func(ctx context.Context, event Event, session *Session)

// Subscription is returned by OnAuthStateChange.
type Subscription struct {
	id       uint64
	listener Listener
	active   atomic.Bool
	m        *Manager
}

// Unsubscribe stops further deliveries. Calling it more than once is fine.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, sub := range s.m.listeners {
		if sub.id == s.id {
			s.m.listeners = append(s.m.listeners[:i:i], s.m.listeners[i+1:]...)
			break
		}
	}
}

type ManagerConfig struct {
	// TTL bounds how long a session is kept after sign-in or its last
	// refresh.
	TTL        time.Duration
	MaxEntries int
	// VerifyInterval is how long a successful access token check is trusted
	// before the provider is asked again.
	VerifyInterval time.Duration
	Logger         *log.Logger
}

// Manager maps opaque session ids to provider sessions.
type Manager struct {
	auth     Authenticator
	sessions *cache.LRUCache[*Session]
	verified *cache.LRUCache[struct{}]
	logger   *log.Logger
	refresh  singleflight.Group
	now      func() time.Time

	mu        sync.Mutex
	listeners []*Subscription
	nextID    uint64
}

func NewManager(a Authenticator, cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.VerifyInterval <= 0 {
		cfg.VerifyInterval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		auth:     a,
		sessions: cache.NewLRUCache[*Session](cfg.MaxEntries, cfg.TTL),
		verified: cache.NewLRUCache[struct{}](cfg.MaxEntries, cfg.VerifyInterval),
		logger:   logger.WithComponent(log.ComponentAuth),
		now:      time.Now,
	}
}

// Caches exposes the session and verification caches so they can be
// registered for periodic cleanup.
func (m *Manager) Caches() []cache.Cleaner {
	return []cache.Cleaner{m.sessions, m.verified}
}

// SessionStats reports the session cache counters for the readiness check.
func (m *Manager) SessionStats() cache.Stats {
	return m.sessions.Stats()
}

// OnAuthStateChange registers l. Listeners run in registration order.
func (m *Manager) OnAuthStateChange(l Listener) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub := &Subscription{id: m.nextID, listener: l, m: m}
	sub.active.Store(true)
	m.listeners = append(m.listeners, sub)
	return sub
}

func (m *Manager) emit(ctx context.Context, event Event, s *Session) {
	m.mu.Lock()
	subs := make([]*Subscription, len(m.listeners))
	copy(subs, m.listeners)
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.listener(ctx, event, s)
		}
	}
}

// GetSession returns the live session for id, refreshing an expired access
// token first and checking a live one with the provider at most once per
// VerifyInterval. Unknown ids, rejected tokens and failed refreshes yield a nil
// session. The error is non-nil only when the provider could not be reached.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, nil
	}
	if !s.Expired(m.now()) {
		return m.verify(ctx, id, s)
	}

	v, err, _ := m.refresh.Do(id, func() (any, error) {
		// Another caller may have refreshed while we waited.
		if cur, ok := m.sessions.Get(id); ok && !cur.Expired(m.now()) {
			return cur, nil
		}
		fresh, err := m.auth.RefreshSession(ctx, s.RefreshToken)
		if err != nil {
			return nil, err
		}
		m.sessions.Set(id, fresh)
		m.verified.Set(id, struct{}{})
		m.logger.InfoContext(ctx, "Session refreshed",
			log.FieldUserID, fresh.User.ID,
			log.FieldOperation, log.OpRefresh)
		m.emit(ctx, EventTokenRefreshed, fresh)
		return fresh, nil
	})
	if err != nil {
		return m.reject(ctx, id, s, "Session refresh failed, signing out", err)
	}
	return v.(*Session), nil
}

func (m *Manager) verify(ctx context.Context, id string, s *Session) (*Session, error) {
	if _, ok := m.verified.Get(id); ok {
		return s, nil
	}
	_, err, _ := m.refresh.Do("verify:"+id, func() (any, error) {
		if _, err := m.auth.GetUser(ctx, s.AccessToken); err != nil {
			return nil, err
		}
		m.verified.Set(id, struct{}{})
		return nil, nil
	})
	if err != nil {
		return m.reject(ctx, id, s, "Access token rejected, signing out", err)
	}
	return s, nil
}

// reject drops the session unless err only means the provider was unreachable.
func (m *Manager) reject(ctx context.Context, id string, s *Session, msg string, err error) (*Session, error) {
	if errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	m.logger.WarnContext(ctx, msg,
		log.FieldUserID, s.User.ID,
		log.FieldError, err)
	m.sessions.Delete(id)
	m.verified.Delete(id)
	m.emit(ctx, EventSignedOut, nil)
	return nil, nil
}

// SignIn authenticates with the provider and stores the session. The
// returned id goes into the session cookie.
func (m *Manager) SignIn(ctx context.Context, email, password string) (string, error) {
	s, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.logger.WarnContext(ctx, "Sign in failed",
			log.FieldEmail, email,
			log.FieldOperation, log.OpSignIn,
			log.FieldError, err)
		return "", err
	}
	id := m.store(s)
	m.logger.InfoContext(ctx, "User signed in",
		log.FieldUserID, s.User.ID,
		log.FieldOperation, log.OpSignIn)
	m.emit(ctx, EventSignedIn, s)
	return id, nil
}

// SignUp registers the user with fullName as metadata. The returned session id
// is empty when the provider wants the email confirmed first.
func (m *Manager) SignUp(ctx context.Context, email, password, fullName string) (string, error) {
	u, s, err := m.auth.SignUp(ctx, email, password, fullName)
	if err != nil {
		m.logger.WarnContext(ctx, "Sign up failed",
			log.FieldEmail, email,
			log.FieldOperation, log.OpSignUp,
			log.FieldError, err)
		return "", err
	}
	if s == nil {
		m.logger.InfoContext(ctx, "User signed up, confirmation pending",
			log.FieldUserID, u.ID,
			log.FieldOperation, log.OpSignUp)
		return "", nil
	}
	id := m.store(s)
	m.logger.InfoContext(ctx, "User signed up",
		log.FieldUserID, s.User.ID,
		log.FieldOperation, log.OpSignUp)
	m.emit(ctx, EventSignedIn, s)
	return id, nil
}

// SignOut ends the session. Provider errors are logged, the local session is
// dropped regardless.
func (m *Manager) SignOut(ctx context.Context, id string) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return
	}
	m.sessions.Delete(id)
	m.verified.Delete(id)
	if err := m.auth.SignOut(ctx, s.AccessToken); err != nil {
		m.logger.ErrorContext(ctx, "Error signing out",
			log.FieldUserID, s.User.ID,
			log.FieldOperation, log.OpSignOut,
			log.FieldError, err)
	} else {
		m.logger.InfoContext(ctx, "User signed out",
			log.FieldUserID, s.User.ID,
			log.FieldOperation, log.OpSignOut)
	}
	m.emit(ctx, EventSignedOut, nil)
}

func (m *Manager) store(s *Session) string {
	id := uuid.NewString()
	m.sessions.Set(id, s)
	m.verified.Set(id, struct{}{})
	return id
}

// Unavailable marks err as a transport failure talking to the provider.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
