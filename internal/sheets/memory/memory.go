package memory

import (
	"context"
	"sync"

	ports "dompet/internal/sheets"
)

// Mirror keeps mirrored rows in process. The worker falls back to it when no
// spreadsheet is configured.
type Mirror struct {
	mu     sync.Mutex
	tables map[string]map[int64]map[string]any
}

var _ ports.RowMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{tables: make(map[string]map[int64]map[string]any)}
}

// Upsert stores a copy of row restricted to the table's mirrored columns.
func (m *Mirror) Upsert(_ context.Context, table string, id int64, row map[string]any) error {
	cols, err := ports.ColumnsFor(table)
	if err != nil {
		return err
	}
	kept := make(map[string]any, len(cols))
	for _, c := range cols {
		if v, ok := row[c]; ok {
			kept[c] = v
		}
	}
	kept["id"] = id

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[table] == nil {
		m.tables[table] = make(map[int64]map[string]any)
	}
	m.tables[table][id] = kept
	return nil
}

func (m *Mirror) Remove(_ context.Context, table string, id int64) error {
	if _, err := ports.ColumnsFor(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], id)
	return nil
}

// Row returns the mirrored row for id.
func (m *Mirror) Row(table string, id int64) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables[table][id]
	return r, ok
}

// Len reports how many rows table holds.
func (m *Mirror) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}
