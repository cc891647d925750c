package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyPatch is returned when an update carries no columns.
var ErrEmptyPatch = errors.New("update has no columns")

// Dialect renders Query/Row values into SQL for a specific engine.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: func(int) string { return "?" },
	}
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// QuoteIdent double-quotes an identifier so names like "due-date" survive.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type args struct {
	d    Dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

func (a *args) where(filters []Filter) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		col := QuoteIdent(f.Column)
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				parts = append(parts, col+" IS NULL")
				continue
			}
			parts = append(parts, col+" = "+a.add(f.Value))
		case OpIsNull:
			parts = append(parts, col+" IS NULL")
		case OpIsNotNull:
			parts = append(parts, col+" IS NOT NULL")
		default:
			return "", fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

// sortedColumns gives statements a stable column order.
func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Select renders q as a SELECT * statement.
func (d Dialect) Select(q Query) (string, []any, error) {
	a := &args{d: d}
	where, err := a.where(q.Filters)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(QuoteIdent(q.Table))
	b.WriteString(where)
	if len(q.Order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range q.Order {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(QuoteIdent(o.Column))
			if o.Desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	}
	return b.String(), a.vals, nil
}

// Insert renders an INSERT ... RETURNING * for one row.
func (d Dialect) Insert(table string, row Row) (string, []any) {
	if len(row) == 0 {
		return "INSERT INTO " + QuoteIdent(table) + " DEFAULT VALUES RETURNING *", nil
	}
	a := &args{d: d}
	cols := sortedColumns(row)
	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
		holders[i] = a.add(row[c])
	}
	stmt := "INSERT INTO " + QuoteIdent(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(holders, ", ") + ") RETURNING *"
	return stmt, a.vals
}

// Update renders an UPDATE ... RETURNING * restricted by filters.
func (d Dialect) Update(table string, patch Row, filters []Filter) (string, []any, error) {
	if len(patch) == 0 {
		return "", nil, ErrEmptyPatch
	}
	a := &args{d: d}
	cols := sortedColumns(patch)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = QuoteIdent(c) + " = " + a.add(patch[c])
	}
	where, err := a.where(filters)
	if err != nil {
		return "", nil, err
	}
	return "UPDATE " + QuoteIdent(table) + " SET " + strings.Join(sets, ", ") + where + " RETURNING *", a.vals, nil
}

// Delete renders a DELETE restricted by filters.
func (d Dialect) Delete(table string, filters []Filter) (string, []any, error) {
	a := &args{d: d}
	where, err := a.where(filters)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + QuoteIdent(table) + where, a.vals, nil
}
