package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dompet/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the sqlite implementation of store.Store. It also
// keeps the local auth users table (see users.go).
type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	q.Filters = store.Scoped(ctx, q.Filters)
	stmt, args, err := store.SQLite.Select(q)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (r *SQLiteRepository) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	stmt, args := store.SQLite.Insert(table, store.Owned(ctx, row))
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", table)
	}
	return out[0], nil
}

func (r *SQLiteRepository) Update(ctx context.Context, table string, patch store.Row, filters []store.Filter) (store.Row, error) {
	stmt, args, err := store.SQLite.Update(table, patch, store.Scoped(ctx, filters))
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out[0], nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, table string, filters []store.Filter) error {
	stmt, args, err := store.SQLite.Delete(table, store.Scoped(ctx, filters))
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// boolColumns covers RETURNING results, where sqlite reports no declared type.
var boolColumns = map[string]bool{"is_default": true, "is_active": true}

// scanRows reads every row into a store.Row. BOOLEAN columns come back from
// sqlite as integers and are turned back into bools.
func scanRows(rows *sql.Rows) ([]store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	out := []store.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(store.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i], types[i].DatabaseTypeName(), boolColumns[c])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(v any, dbType string, isBool bool) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		if isBool || strings.EqualFold(dbType, "BOOLEAN") {
			return x != 0
		}
	}
	return v
}
