// Package store defines the table-oriented port every data backend implements.
//
// A backend only knows about rows (column name to value maps), filters and
// ordering. Typed resources live in internal/core and are converted by the
// database service.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by single-row operations that matched nothing.
var ErrNotFound = errors.New("no rows matched")

// Row is one table row keyed by column name.
type Row map[string]any

// Op is a filter comparison.
type Op string

const (
	OpEq        Op = "eq"
	OpIsNull    Op = "is_null"
	OpIsNotNull Op = "not_is_null"
)

// Filter restricts a statement to rows whose Column satisfies Op (and Value
// for OpEq).
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// IsNull matches rows where column is NULL.
func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

// NotNull matches rows where column is not NULL.
func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNotNull}
}

// Order sorts by Column, ascending unless Desc.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select against one table.
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
}

func (q Query) String() string {
	return fmt.Sprintf("select %s filters=%v order=%v", q.Table, q.Filters, q.Order)
}

// Store is implemented by every data backend.
type Store interface {
	// Select returns all rows matching q, in q.Order.
	Select(ctx context.Context, q Query) ([]Row, error)
	// Insert stores row and returns it as persisted (with id and defaults).
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update applies patch to the single row matching filters and returns it.
	// ErrNotFound when nothing matched.
	Update(ctx context.Context, table string, patch Row, filters []Filter) (Row, error)
	// Delete removes all rows matching filters. Matching nothing is not an error.
	Delete(ctx context.Context, table string, filters []Filter) error

	io.Closer
}

// OwnerColumn is the column holding the owning user's id.
const OwnerColumn = "user_id"
