package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dompet/internal/auth"
)

// Accounts for the local authenticator live in local_users; hosted projects
// keep theirs in GoTrue's auth.users.
var _ auth.UserStore = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, c auth.Credentials) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO local_users (id, email, password_hash, full_name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Email, c.PasswordHash, c.FullName, c.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	return s.user(ctx, `SELECT id::text, email, password_hash, full_name, created_at FROM local_users WHERE email = $1`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.Credentials, error) {
	return s.user(ctx, `SELECT id::text, email, password_hash, full_name, created_at FROM local_users WHERE id::text = $1`, id)
}

func (s *Store) user(ctx context.Context, query string, arg any) (auth.Credentials, error) {
	var c auth.Credentials
	err := s.pool.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.FullName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Credentials{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("get user: %w", err)
	}
	return c, nil
}
