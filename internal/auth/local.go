package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dompet/internal/cache"
)

const minPasswordLength = 6

var (
	ErrWeakPassword = errors.New("Password should be at least 6 characters")
	ErrInvalidEmail = errors.New("Unable to validate email address: invalid format")
)

// Credentials is a stored local account.
type Credentials struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

func (c Credentials) User() User {
	return User{ID: c.ID, Email: c.Email, FullName: c.FullName, CreatedAt: c.CreatedAt}
}

// UserStore persists local accounts. CreateUser returns ErrEmailTaken for a
// duplicate email; lookups return ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, c Credentials) error
	UserByEmail(ctx context.Context, email string) (Credentials, error)
	UserByID(ctx context.Context, id string) (Credentials, error)
}

type LocalConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Local authenticates against a UserStore and issues its own tokens. It is
// used when there is no hosted auth service (sqlite and memory backends).
type Local struct {
	users  UserStore
	tokens *tokenIssuer
	cost   int
	// revoked holds signed-out session ids until their refresh tokens expire.
	revoked *cache.LRUCache[struct{}]
}

var _ Authenticator = (*Local)(nil)

func NewLocal(users UserStore, cfg LocalConfig) *Local {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Local{
		users: users,
		tokens: &tokenIssuer{
			TokenVerifier: NewTokenVerifier(cfg.Secret),
			accessTTL:     cfg.AccessTTL,
			refreshTTL:    cfg.RefreshTTL,
			now:           time.Now,
		},
		cost:    cfg.BcryptCost,
		revoked: cache.NewLRUCache[struct{}](100000, cfg.RefreshTTL),
	}
}

// Revoked exposes the revocation list for periodic cleanup.
func (l *Local) Revoked() cache.Cleaner {
	return l.revoked
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *Local) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	c, err := l.users.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, Unavailable(fmt.Errorf("lookup user: %w", err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return l.tokens.issue(c.User(), "")
}

func (l *Local) SignUp(ctx context.Context, email, password, fullName string) (*User, *Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	c := Credentials{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		CreatedAt:    l.tokens.now().UTC(),
	}
	if err := l.users.CreateUser(ctx, c); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, nil, err
		}
		return nil, nil, Unavailable(fmt.Errorf("create user: %w", err))
	}
	u := c.User()
	s, err := l.tokens.issue(u, "")
	if err != nil {
		return nil, nil, err
	}
	return &u, s, nil
}

func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	c, err := l.tokens.parse(accessToken)
	if err != nil {
		return err
	}
	if c.SessionID != "" {
		l.revoked.Set(c.SessionID, struct{}{})
	}
	return nil
}

func (l *Local) GetUser(ctx context.Context, accessToken string) (*User, error) {
	c, err := l.tokens.parse(accessToken)
	if err != nil {
		return nil, err
	}
	if c.TokenUse == useRefresh || l.isRevoked(c.SessionID) {
		return nil, ErrInvalidToken
	}
	stored, err := l.lookup(ctx, c.Subject)
	if err != nil {
		return nil, err
	}
	u := stored.User()
	return &u, nil
}

func (l *Local) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	c, err := l.tokens.parse(refreshToken)
	if err != nil {
		return nil, err
	}
	if c.TokenUse != useRefresh || l.isRevoked(c.SessionID) {
		return nil, ErrInvalidToken
	}
	stored, err := l.lookup(ctx, c.Subject)
	if err != nil {
		return nil, err
	}
	return l.tokens.issue(stored.User(), c.SessionID)
}

// lookup loads the token subject. A deleted account invalidates the token,
// any other store failure leaves it unknown.
func (l *Local) lookup(ctx context.Context, id string) (Credentials, error) {
	c, err := l.users.UserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if err != nil {
		return Credentials{}, Unavailable(fmt.Errorf("lookup user: %w", err))
	}
	return c, nil
}

func (l *Local) isRevoked(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	_, ok := l.revoked.Get(sessionID)
	return ok
}

// MemoryUsers is an in-process UserStore.
type MemoryUsers struct {
	mu      sync.RWMutex
	byEmail map[string]Credentials
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byEmail: make(map[string]Credentials)}
}

func (m *MemoryUsers) CreateUser(_ context.Context, c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[c.Email]; ok {
		return ErrEmailTaken
	}
	m.byEmail[c.Email] = c
	return nil
}

func (m *MemoryUsers) UserByEmail(_ context.Context, email string) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byEmail[email]
	if !ok {
		return Credentials{}, ErrUserNotFound
	}
	return c, nil
}

func (m *MemoryUsers) UserByID(_ context.Context, id string) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.byEmail {
		if c.ID == id {
			return c, nil
		}
	}
	return Credentials{}, ErrUserNotFound
}
