package backend

import (
	"context"
	"errors"
	"fmt"

	"dompet/internal/amqp"
	"dompet/internal/auth"
	"dompet/internal/log"
	"dompet/internal/postgres"
	"dompet/internal/storage"
	"dompet/internal/store/memory"
	"dompet/internal/supabase"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	var closers []func() error
	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*BackendResult, error) {
		_ = res.Cleanup()
		return nil, err
	}

	var (
		sb    *supabase.Client
		users auth.UserStore
	)
	if config.Type == RESTBackend || config.Auth == SupabaseAuth {
		c, err := supabase.New(supabase.Config{
			URL:       config.SupabaseURL,
			AnonKey:   config.SupabaseAnonKey,
			JWTSecret: config.SupabaseJWTSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
		}
		sb = c
	}

	switch config.Type {
	case RESTBackend:
		res.Store = supabase.NewRESTStore(sb)
		f.logger.Info("Initialized Supabase REST backend", "url", config.SupabaseURL)

	case PostgresBackend:
		pg, err := postgres.New(ctx, postgres.Config{
			DatabaseURL: config.DatabaseURL,
			MaxConns:    config.DatabaseMaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Postgres backend: %w", err))
		}
		closers = append(closers, pg.Close)
		res.Store, users = pg, pg
		f.logger.Info("Initialized Postgres backend")

	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize SQLite repository: %w", err))
		}
		closers = append(closers, repo.Close)
		res.Store, users = repo, repo
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	case MemoryBackend:
		res.Store = memory.New()
		f.logger.Info("Initialized memory backend")
	}

	switch config.Auth {
	case SupabaseAuth:
		res.Auth = supabase.NewAuth(sb, config.SupabaseJWTSecret)
		f.logger.Info("Using Supabase auth", "local_verification", config.SupabaseJWTSecret != "")
	case LocalAuth:
		if users == nil {
			users = auth.NewMemoryUsers()
			f.logger.Warn("Local accounts are kept in memory and lost on restart", log.FieldBackend, config.Type.String())
		}
		local := auth.NewLocal(users, auth.LocalConfig{Secret: config.SessionSecret})
		res.Auth = local
		res.Caches = append(res.Caches, local.Revoked())
		f.logger.Info("Using local auth")
	}

	// Initialize AMQP client (optional)
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			closers = append(closers, client.Close)
			res.Publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	return res, nil
}
