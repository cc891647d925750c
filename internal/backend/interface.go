package backend

import (
	"context"

	"dompet/internal/amqp"
	"dompet/internal/auth"
	"dompet/internal/cache"
	"dompet/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult bundles everything a command needs from the selected backends.
type BackendResult struct {
	Store store.Store
	Auth  auth.Authenticator
	// Publisher is nil when AMQP is not configured.
	Publisher *amqp.Client
	// Caches to register for periodic cleanup.
	Caches  []cache.Cleaner
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType selects the data backend.
type BackendType string

const (
	RESTBackend     BackendType = "rest"
	PostgresBackend BackendType = "postgres"
	SQLiteBackend   BackendType = "sqlite"
	MemoryBackend   BackendType = "memory"
)

func (t BackendType) String() string { return string(t) }

func (t BackendType) IsValid() bool {
	switch t {
	case RESTBackend, PostgresBackend, SQLiteBackend, MemoryBackend:
		return true
	}
	return false
}

// AuthType selects the authenticator.
type AuthType string

const (
	SupabaseAuth AuthType = "supabase"
	LocalAuth    AuthType = "local"
)

func (t AuthType) IsValid() bool {
	return t == SupabaseAuth || t == LocalAuth
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType
	Auth AuthType

	SQLiteDBPath     string
	DatabaseURL      string
	DatabaseMaxConns int32

	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string

	// SessionSecret signs local tokens.
	SessionSecret string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}
