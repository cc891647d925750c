package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"dompet/internal/amqp"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/store"
)

// Table names, shared by every backend and the change messages.
const (
	TableTransactions = "transactions"
	TablePlatforms    = "platforms"
	TableDebts        = "debts"
	TableGoals        = "goals"
	TableBudgets      = "budgets"
	TableCategories   = "categories"
)

// Tables lists every table the service reads and writes.
var Tables = []string{TableTransactions, TablePlatforms, TableDebts, TableGoals, TableBudgets, TableCategories}

// ChangePublisher receives a message after every successful write.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// DatabaseService is the data-access facade. Every method is a single store
// call; failures are logged and turned into an empty slice, nil or false.
type DatabaseService struct {
	store      store.Store
	publisher  ChangePublisher
	logger     *log.Logger
	structured *log.StructuredLogger
}

// NewDatabaseService wires the facade. publisher may be nil.
func NewDatabaseService(s store.Store, publisher ChangePublisher, logger *log.Logger) *DatabaseService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentDatabase)
	return &DatabaseService{
		store:      s,
		publisher:  publisher,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
	}
}

// Ping reports whether the backing store answers, when it can tell.
func (s *DatabaseService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *DatabaseService) Close() error {
	return s.store.Close()
}

// Transactions

func (s *DatabaseService) GetTransactions(ctx context.Context) []core.Transaction {
	return list[core.Transaction](ctx, s, "transactions", store.Query{
		Table: TableTransactions,
		Order: []store.Order{{Column: "date", Desc: true}},
	})
}

func (s *DatabaseService) AddTransaction(ctx context.Context, tx core.Transaction) *core.Transaction {
	return add[core.Transaction](ctx, s, TableTransactions, "transaction", tx)
}

func (s *DatabaseService) UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) *core.Transaction {
	return update[core.Transaction](ctx, s, TableTransactions, "transaction", id, patch)
}

func (s *DatabaseService) DeleteTransaction(ctx context.Context, id int64) bool {
	return s.remove(ctx, TableTransactions, "transaction", id)
}

// Platforms

func (s *DatabaseService) GetPlatforms(ctx context.Context) []core.Platform {
	return list[core.Platform](ctx, s, "platforms", store.Query{
		Table: TablePlatforms,
		Order: []store.Order{{Column: "account"}},
	})
}

func (s *DatabaseService) AddPlatform(ctx context.Context, p core.Platform) *core.Platform {
	return add[core.Platform](ctx, s, TablePlatforms, "platform", p)
}

func (s *DatabaseService) UpdatePlatform(ctx context.Context, id int64, patch core.PlatformPatch) *core.Platform {
	return update[core.Platform](ctx, s, TablePlatforms, "platform", id, patch)
}

func (s *DatabaseService) DeletePlatform(ctx context.Context, id int64) bool {
	return s.remove(ctx, TablePlatforms, "platform", id)
}

// Debts

func (s *DatabaseService) GetDebts(ctx context.Context) []core.Debt {
	return list[core.Debt](ctx, s, "debts", store.Query{
		Table: TableDebts,
		Order: []store.Order{{Column: "due-date"}},
	})
}

func (s *DatabaseService) AddDebt(ctx context.Context, d core.Debt) *core.Debt {
	return add[core.Debt](ctx, s, TableDebts, "debt", d)
}

func (s *DatabaseService) UpdateDebt(ctx context.Context, id int64, patch core.DebtPatch) *core.Debt {
	return update[core.Debt](ctx, s, TableDebts, "debt", id, patch)
}

func (s *DatabaseService) DeleteDebt(ctx context.Context, id int64) bool {
	return s.remove(ctx, TableDebts, "debt", id)
}

// Goals

func (s *DatabaseService) GetGoals(ctx context.Context) []core.Goal {
	return list[core.Goal](ctx, s, "goals", store.Query{
		Table: TableGoals,
		Order: []store.Order{{Column: "deadline"}},
	})
}

func (s *DatabaseService) AddGoal(ctx context.Context, g core.Goal) *core.Goal {
	return add[core.Goal](ctx, s, TableGoals, "goal", g)
}

func (s *DatabaseService) UpdateGoal(ctx context.Context, id int64, patch core.GoalPatch) *core.Goal {
	return update[core.Goal](ctx, s, TableGoals, "goal", id, patch)
}

func (s *DatabaseService) DeleteGoal(ctx context.Context, id int64) bool {
	return s.remove(ctx, TableGoals, "goal", id)
}

// Budgets

func (s *DatabaseService) GetBudgets(ctx context.Context) []core.Budget {
	return list[core.Budget](ctx, s, "budgets", store.Query{
		Table: TableBudgets,
		Order: []store.Order{{Column: "category"}},
	})
}

func (s *DatabaseService) AddBudget(ctx context.Context, b core.Budget) *core.Budget {
	return add[core.Budget](ctx, s, TableBudgets, "budget", b)
}

func (s *DatabaseService) UpdateBudget(ctx context.Context, id int64, patch core.BudgetPatch) *core.Budget {
	return update[core.Budget](ctx, s, TableBudgets, "budget", id, patch)
}

func (s *DatabaseService) DeleteBudget(ctx context.Context, id int64) bool {
	return s.remove(ctx, TableBudgets, "budget", id)
}

// Categories

// GetCategories returns active categories of every level by name.
func (s *DatabaseService) GetCategories(ctx context.Context) []core.Category {
	return list[core.Category](ctx, s, "categories", store.Query{
		Table:   TableCategories,
		Filters: []store.Filter{store.Eq("is_active", true)},
		Order:   []store.Order{{Column: "name"}},
	})
}

// GetCategoriesWithSubcategories returns active top-level categories with
// their children embedded. Children are not filtered on is_active.
func (s *DatabaseService) GetCategoriesWithSubcategories(ctx context.Context) []core.CategoryNode {
	var parents, children []store.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		parents, err = s.store.Select(gctx, store.Query{
			Table:   TableCategories,
			Filters: []store.Filter{store.IsNull("parent_id"), store.Eq("is_active", true)},
			Order:   []store.Order{{Column: "name"}},
		})
		return err
	})
	g.Go(func() error {
		var err error
		children, err = s.store.Select(gctx, store.Query{
			Table:   TableCategories,
			Filters: []store.Filter{store.NotNull("parent_id")},
			Order:   []store.Order{{Column: "name"}},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.logError(ctx, "Error fetching categories with subcategories", log.OpList, TableCategories, 0, err)
		return []core.CategoryNode{}
	}

	subs := make(map[int64][]core.Subcategory)
	for _, row := range children {
		c, err := fromRow[core.Category](row)
		if err != nil || c.ParentID == nil {
			s.logError(ctx, "Error fetching categories with subcategories", log.OpList, TableCategories, 0, err)
			return []core.CategoryNode{}
		}
		subs[*c.ParentID] = append(subs[*c.ParentID], core.Subcategory{
			ID:        c.ID,
			Name:      c.Name,
			Type:      c.Type,
			IsDefault: c.IsDefault,
		})
	}

	out := make([]core.CategoryNode, 0, len(parents))
	for _, row := range parents {
		c, err := fromRow[core.Category](row)
		if err != nil {
			s.logError(ctx, "Error fetching categories with subcategories", log.OpList, TableCategories, 0, err)
			return []core.CategoryNode{}
		}
		node := core.CategoryNode{
			ID:            c.ID,
			Name:          c.Name,
			Type:          c.Type,
			ParentID:      c.ParentID,
			IsDefault:     c.IsDefault,
			Subcategories: subs[c.ID],
		}
		if node.Subcategories == nil {
			node.Subcategories = []core.Subcategory{}
		}
		out = append(out, node)
	}
	return out
}

// AddCategory inserts an active category.
func (s *DatabaseService) AddCategory(ctx context.Context, c core.NewCategory) *core.Category {
	row := store.Row{
		"name":      c.Name,
		"type":      string(c.Type),
		"is_active": true,
	}
	if c.ParentID != nil {
		row["parent_id"] = *c.ParentID
	}
	if c.IsDefault != nil {
		row["is_default"] = *c.IsDefault
	}
	return add[core.Category](ctx, s, TableCategories, "category", row)
}

func (s *DatabaseService) UpdateCategory(ctx context.Context, id int64, patch core.CategoryPatch) *core.Category {
	return update[core.Category](ctx, s, TableCategories, "category", id, patch)
}

// DeleteCategory is a soft delete: the row stays with is_active = false.
func (s *DatabaseService) DeleteCategory(ctx context.Context, id int64) bool {
	row, err := s.store.Update(ctx, TableCategories, store.Row{"is_active": false}, []store.Filter{store.Eq("id", id)})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logError(ctx, "Error deleting category", log.OpDelete, TableCategories, id, err)
		return false
	}
	if row != nil {
		s.publish(ctx, TableCategories, amqp.ChangeUpdate, id, row)
	}
	return true
}

// GetSubcategoriesByType returns active child categories of type t by name.
func (s *DatabaseService) GetSubcategoriesByType(ctx context.Context, t core.EntryType) []core.Category {
	return list[core.Category](ctx, s, "subcategories", store.Query{
		Table: TableCategories,
		Filters: []store.Filter{
			store.Eq("type", string(t)),
			store.NotNull("parent_id"),
			store.Eq("is_active", true),
		},
		Order: []store.Order{{Column: "name"}},
	})
}

// generic plumbing

func list[T any](ctx context.Context, s *DatabaseService, resource string, q store.Query) []T {
	rows, err := s.store.Select(ctx, q)
	if err != nil {
		s.logError(ctx, "Error fetching "+resource, log.OpList, q.Table, 0, err)
		return []T{}
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := fromRow[T](row)
		if err != nil {
			s.logError(ctx, "Error fetching "+resource, log.OpList, q.Table, 0, err)
			return []T{}
		}
		out = append(out, *v)
	}
	return out
}

func add[T any](ctx context.Context, s *DatabaseService, table, resource string, v any) *T {
	row, err := toRow(v)
	if err != nil {
		s.logError(ctx, "Error adding "+resource, log.OpCreate, table, 0, err)
		return nil
	}
	// the backend assigns these
	delete(row, "id")
	delete(row, "created_at")

	stored, err := s.store.Insert(ctx, table, row)
	if err != nil {
		s.logError(ctx, "Error adding "+resource, log.OpCreate, table, 0, err)
		return nil
	}
	out, err := fromRow[T](stored)
	if err != nil {
		s.logError(ctx, "Error adding "+resource, log.OpCreate, table, 0, err)
		return nil
	}
	s.publish(ctx, table, amqp.ChangeInsert, rowID(stored), stored)
	return out
}

func update[T any](ctx context.Context, s *DatabaseService, table, resource string, id int64, patch any) *T {
	row, err := toRow(patch)
	if err != nil {
		s.logError(ctx, "Error updating "+resource, log.OpUpdate, table, id, err)
		return nil
	}
	stored, err := s.store.Update(ctx, table, row, []store.Filter{store.Eq("id", id)})
	if err != nil {
		s.logError(ctx, "Error updating "+resource, log.OpUpdate, table, id, err)
		return nil
	}
	out, err := fromRow[T](stored)
	if err != nil {
		s.logError(ctx, "Error updating "+resource, log.OpUpdate, table, id, err)
		return nil
	}
	s.publish(ctx, table, amqp.ChangeUpdate, id, stored)
	return out
}

// remove deletes by id. Matching nothing still counts as success.
func (s *DatabaseService) remove(ctx context.Context, table, resource string, id int64) bool {
	if err := s.store.Delete(ctx, table, []store.Filter{store.Eq("id", id)}); err != nil {
		s.logError(ctx, "Error deleting "+resource, log.OpDelete, table, id, err)
		return false
	}
	s.publish(ctx, table, amqp.ChangeDelete, id, nil)
	return true
}

func (s *DatabaseService) publish(ctx context.Context, table string, op amqp.ChangeOp, id int64, row store.Row) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewChangeMessage(table, op, id, row)
	if owner, ok := store.Owner(ctx); ok {
		msg.UserID = owner
	}
	if err := s.publisher.PublishChange(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change message",
			log.FieldTable, table,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

// logError records a failed store call with the table, record id and owner.
func (s *DatabaseService) logError(ctx context.Context, msg, op, table string, id int64, err error) {
	fields := log.NewFields().WithRecord(table, id)
	if owner, ok := store.Owner(ctx); ok {
		fields = fields.WithUser(owner)
	}
	s.structured.LogError(ctx, msg, err, log.ComponentDatabase, op, fields)
}

// toRow converts a typed value into a store.Row through its JSON form, so
// column names come from the json tags. Integral numbers become int64.
func toRow(v any) (store.Row, error) {
	if r, ok := v.(store.Row); ok {
		return r, nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var row store.Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	for k, val := range row {
		if n, ok := val.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				row[k] = i
			} else {
				row[k] = n.String()
			}
		}
	}
	return row, nil
}

func fromRow[T any](row store.Row) (*T, error) {
	buf, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var out T
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return &out, nil
}

func rowID(row store.Row) int64 {
	switch id := row["id"].(type) {
	case int64:
		return id
	case int:
		return int64(id)
	case float64:
		return int64(id)
	case json.Number:
		n, _ := id.Int64()
		return n
	}
	return 0
}
