package sheets

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTable is returned for tables without a column layout.
var ErrUnknownTable = errors.New("unknown table")

// Ports for outbound adapters.
type (
	// RowMirror keeps a copy of table rows keyed by id.
	RowMirror interface {
		Upsert(ctx context.Context, table string, id int64, row map[string]any) error
		Remove(ctx context.Context, table string, id int64) error
	}
)

// Columns is the mirrored column layout per table. The id always comes first.
var Columns = map[string][]string{
	"transactions": {"id", "user_id", "date", "description", "amount", "type", "category", "subcategory", "platform", "created_at"},
	"platforms":    {"id", "user_id", "account", "type", "balance", "created_at"},
	"debts":        {"id", "user_id", "name", "amount", "due-date", "status", "notes", "created_at"},
	"goals":        {"id", "user_id", "name", "target_amount", "current_amount", "deadline", "created_at"},
	"budgets":      {"id", "user_id", "category", "amount", "period", "created_at"},
	"categories":   {"id", "user_id", "name", "type", "parent_id", "is_default", "is_active", "created_at"},
}

// ColumnsFor returns the layout for table.
func ColumnsFor(table string) ([]string, error) {
	cols, ok := Columns[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}
