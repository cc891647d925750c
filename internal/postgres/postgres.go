// Package postgres is the direct-connection store.Store over pgxpool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"dompet/internal/store"
)

type Config struct {
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
	// SkipMigrations leaves the schema alone, e.g. when it is owned by the
	// hosted project.
	SkipMigrations bool
}

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New builds the pool, checks connectivity and applies migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	// Rows carry amounts and dates as strings; the simple protocol lets the
	// server coerce them to NUMERIC and DATE.
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := Ping(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !cfg.SkipMigrations {
		if err := RunMigrations(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Store{pool: pool}, nil
}

// Ping checks if we can acquire a connection within timeout.
func Ping(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return Ping(ctx, s.pool, 3*time.Second)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	q.Filters = store.Scoped(ctx, q.Filters)
	stmt, args, err := store.Postgres.Select(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	stmt, args := store.Postgres.Insert(table, store.Owned(ctx, row))
	out, err := s.returning(ctx, stmt, args)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", table)
	}
	return out[0], nil
}

func (s *Store) Update(ctx context.Context, table string, patch store.Row, filters []store.Filter) (store.Row, error) {
	stmt, args, err := store.Postgres.Update(table, patch, store.Scoped(ctx, filters))
	if err != nil {
		return nil, err
	}
	out, err := s.returning(ctx, stmt, args)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out[0], nil
}

func (s *Store) Delete(ctx context.Context, table string, filters []store.Filter) error {
	stmt, args, err := store.Postgres.Delete(table, store.Scoped(ctx, filters))
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (s *Store) returning(ctx context.Context, stmt string, args []any) ([]store.Row, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]store.Row, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	out := []store.Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(store.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = toRowValue(vals[i], f.DataTypeOID)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// toRowValue turns pgx's decoded values into the JSON-friendly shapes the
// rest of the app expects: NUMERIC as a decimal string, DATE as YYYY-MM-DD,
// UUID as its canonical string.
func toRowValue(v any, oid uint32) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		dv, err := x.Value()
		if err != nil {
			return nil
		}
		return dv
	case time.Time:
		if oid == pgtype.DateOID {
			return x.Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(x).String()
	case int32:
		return int64(x)
	}
	return v
}
