package memory

import (
	"context"
	"errors"
	"testing"

	"dompet/internal/store"
)

func TestInsertSelectOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, d := range []string{"2025-01-02", "2025-03-01", "2025-02-10"} {
		if _, err := s.Insert(ctx, "transactions", store.Row{"date": d}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := s.Select(ctx, store.Query{Table: "transactions", Order: []store.Order{{Column: "date", Desc: true}}})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	got := []any{rows[0]["date"], rows[1]["date"], rows[2]["date"]}
	want := []any{"2025-03-01", "2025-02-10", "2025-01-02"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
	if rows[0]["id"] != int64(2) || rows[0]["created_at"] == nil {
		t.Fatalf("expected assigned id and created_at: %v", rows[0])
	}
}

func TestFiltersAndNulls(t *testing.T) {
	s := New()
	s.Seed("categories",
		store.Row{"name": "Makan", "parent_id": nil, "is_active": true},
		store.Row{"name": "Kopi", "parent_id": int64(1), "is_active": true},
		store.Row{"name": "Lama", "parent_id": int64(1), "is_active": false},
	)
	ctx := context.Background()

	top, _ := s.Select(ctx, store.Query{Table: "categories", Filters: []store.Filter{store.IsNull("parent_id")}})
	if len(top) != 1 || top[0]["name"] != "Makan" {
		t.Fatalf("top-level = %v", top)
	}

	subs, _ := s.Select(ctx, store.Query{
		Table:   "categories",
		Filters: []store.Filter{store.NotNull("parent_id"), store.Eq("is_active", true)},
	})
	if len(subs) != 1 || subs[0]["name"] != "Kopi" {
		t.Fatalf("active subs = %v", subs)
	}

	// float and int ids compare equal
	byParent, _ := s.Select(ctx, store.Query{Table: "categories", Filters: []store.Filter{store.Eq("parent_id", float64(1))}})
	if len(byParent) != 2 {
		t.Fatalf("by parent = %v", byParent)
	}
}

func TestUpdateDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	row, _ := s.Insert(ctx, "goals", store.Row{"name": "Laptop"})
	id := row["id"]

	updated, err := s.Update(ctx, "goals", store.Row{"name": "Laptop baru"}, []store.Filter{store.Eq("id", id)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["name"] != "Laptop baru" {
		t.Fatalf("update not applied: %v", updated)
	}

	if _, err := s.Update(ctx, "goals", store.Row{"name": "x"}, []store.Filter{store.Eq("id", int64(99))}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Update(ctx, "goals", store.Row{}, nil); !errors.Is(err, store.ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}

	if err := s.Delete(ctx, "goals", []store.Filter{store.Eq("id", int64(99))}); err != nil {
		t.Fatalf("delete of missing row should succeed: %v", err)
	}
	if err := s.Delete(ctx, "goals", []store.Filter{store.Eq("id", id)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, _ := s.Select(ctx, store.Query{Table: "goals"})
	if len(rows) != 0 {
		t.Fatalf("expected empty table, got %v", rows)
	}
}

func TestOwnerScoping(t *testing.T) {
	s := New()
	alice := store.WithOwner(context.Background(), "alice")
	bob := store.WithOwner(context.Background(), "bob")

	a, _ := s.Insert(alice, "budgets", store.Row{"category": "Makan"})
	if a[store.OwnerColumn] != "alice" {
		t.Fatalf("owner not stamped: %v", a)
	}
	_, _ = s.Insert(bob, "budgets", store.Row{"category": "Kos"})

	rows, _ := s.Select(alice, store.Query{Table: "budgets"})
	if len(rows) != 1 || rows[0]["category"] != "Makan" {
		t.Fatalf("alice sees %v", rows)
	}

	if _, err := s.Update(bob, "budgets", store.Row{"category": "hacked"}, []store.Filter{store.Eq("id", a["id"])}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("bob must not update alice's row: %v", err)
	}
	_ = s.Delete(bob, "budgets", []store.Filter{store.Eq("id", a["id"])})
	rows, _ = s.Select(alice, store.Query{Table: "budgets"})
	if len(rows) != 1 {
		t.Fatalf("bob deleted alice's row")
	}
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Select(ctx, store.Query{Table: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
