// Package memory is an in-process store.Store used for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dompet/internal/store"
)

type Store struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	nextID map[string]int64
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tables: make(map[string][]store.Row),
		nextID: make(map[string]int64),
		now:    time.Now,
	}
}

// Seed inserts rows as-is, assigning ids where missing. Intended for tests
// and demo data.
func (s *Store) Seed(table string, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.insertLocked(table, r)
	}
}

func (s *Store) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters := store.Scoped(ctx, q.Filters)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Row
	for _, r := range s.tables[q.Table] {
		ok, err := matches(r, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, clone(r))
		}
	}
	sortRows(out, q.Order)
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row = store.Owned(ctx, row)

	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.insertLocked(table, row)), nil
}

func (s *Store) insertLocked(table string, row store.Row) store.Row {
	r := clone(row)
	if _, ok := r["id"]; !ok {
		s.nextID[table]++
		r["id"] = s.nextID[table]
	} else if id, ok := toInt64(r["id"]); ok && id > s.nextID[table] {
		s.nextID[table] = id
	}
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}
	s.tables[table] = append(s.tables[table], r)
	return r
}

func (s *Store) Update(ctx context.Context, table string, patch store.Row, filters []store.Filter) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, store.ErrEmptyPatch
	}
	filters = store.Scoped(ctx, filters)

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated store.Row
	for _, r := range s.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		if updated == nil {
			updated = clone(r)
		}
	}
	if updated == nil {
		return nil, store.ErrNotFound
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, table string, filters []store.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filters = store.Scoped(ctx, filters)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0]
	for _, r := range s.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return err
		}
		if !ok {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	return nil
}

func (s *Store) Close() error { return nil }

func matches(r store.Row, filters []store.Filter) (bool, error) {
	for _, f := range filters {
		v, present := r[f.Column]
		isNull := !present || v == nil
		switch f.Op {
		case store.OpEq:
			if f.Value == nil {
				if !isNull {
					return false, nil
				}
				continue
			}
			if isNull || !equal(v, f.Value) {
				return false, nil
			}
		case store.OpIsNull:
			if !isNull {
				return false, nil
			}
		case store.OpIsNotNull:
			if isNull {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return true, nil
}

func equal(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// sortRows orders like Postgres: NULLs last ascending, first descending.
func sortRows(rows []store.Row, order []store.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compare(rows[i][o.Column], rows[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat(v)
	return int64(f), ok
}

func clone(r store.Row) store.Row {
	out := make(store.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
