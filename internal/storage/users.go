package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"dompet/internal/auth"
)

var _ auth.UserStore = (*SQLiteRepository)(nil)

// CreateUser implements auth.UserStore
func (r *SQLiteRepository) CreateUser(ctx context.Context, c auth.Credentials) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.PasswordHash, c.FullName, c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		var se *sqlite.Error
		// primary code covers both the email UNIQUE and the id PRIMARY KEY
		if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserByEmail implements auth.UserStore
func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	return r.user(ctx, `SELECT id, email, password_hash, full_name, created_at FROM users WHERE email = ?`, email)
}

// UserByID implements auth.UserStore
func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (auth.Credentials, error) {
	return r.user(ctx, `SELECT id, email, password_hash, full_name, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) user(ctx context.Context, query string, arg any) (auth.Credentials, error) {
	var (
		c       auth.Credentials
		created string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.FullName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credentials{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("get user: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		c.CreatedAt = t
	}
	return c, nil
}
