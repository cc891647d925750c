package http

import (
	"context"
	"net/http"

	"dompet/internal/core"
	"dompet/internal/guard"
	"dompet/internal/services"
)

type validator interface {
	Validate() error
}

// resource binds one facade method group to the JSON API. T is the stored
// shape, N the insert shape and P the partial update.
type resource[T any, N validator, P any] struct {
	table  string
	item   string
	list   func(context.Context) []T
	add    func(context.Context, N) *T
	update func(context.Context, int64, P) *T
	remove func(context.Context, int64) bool
}

func (s *Server) apiRoutes(mux *http.ServeMux) {
	svc := s.svc
	mountResource(mux, resource[core.Transaction, core.Transaction, core.TransactionPatch]{
		table: services.TableTransactions, item: "transaction",
		list: svc.GetTransactions, add: svc.AddTransaction, update: svc.UpdateTransaction, remove: svc.DeleteTransaction,
	})
	mountResource(mux, resource[core.Platform, core.Platform, core.PlatformPatch]{
		table: services.TablePlatforms, item: "platform",
		list: svc.GetPlatforms, add: svc.AddPlatform, update: svc.UpdatePlatform, remove: svc.DeletePlatform,
	})
	mountResource(mux, resource[core.Debt, core.Debt, core.DebtPatch]{
		table: services.TableDebts, item: "debt",
		list: svc.GetDebts, add: svc.AddDebt, update: svc.UpdateDebt, remove: svc.DeleteDebt,
	})
	mountResource(mux, resource[core.Goal, core.Goal, core.GoalPatch]{
		table: services.TableGoals, item: "goal",
		list: svc.GetGoals, add: svc.AddGoal, update: svc.UpdateGoal, remove: svc.DeleteGoal,
	})
	mountResource(mux, resource[core.Budget, core.Budget, core.BudgetPatch]{
		table: services.TableBudgets, item: "budget",
		list: svc.GetBudgets, add: svc.AddBudget, update: svc.UpdateBudget, remove: svc.DeleteBudget,
	})
	mountResource(mux, resource[core.Category, core.NewCategory, core.CategoryPatch]{
		table: services.TableCategories, item: "category",
		list: svc.GetCategories, add: svc.AddCategory, update: svc.UpdateCategory, remove: svc.DeleteCategory,
	})

	mux.Handle("GET /api/categories/tree", guard.RequireUser(http.HandlerFunc(s.handleCategoryTree)))
	mux.Handle("GET /api/categories/subcategories", guard.RequireUser(http.HandlerFunc(s.handleSubcategories)))
}

func mountResource[T any, N validator, P any](mux *http.ServeMux, res resource[T, N, P]) {
	base := "/api/" + res.table
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, guard.RequireUser(h))
	}

	handle("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, res.list(r.Context()))
	})

	handle("POST "+base, func(w http.ResponseWriter, r *http.Request) {
		var in N
		if err := DecodeJSON(w, r, &in); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := in.Validate(); err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		out := res.add(r.Context(), in)
		if out == nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to add "+res.item)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	handle("PATCH "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseID(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		var patch P
		if err := DecodeJSON(w, r, &patch); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if isEmptyPatch(patch) {
			writeJSONError(w, http.StatusUnprocessableEntity, ErrEmptyPatch.Error())
			return
		}
		out := res.update(r.Context(), id, patch)
		if out == nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to update "+res.item)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	handle("DELETE "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseID(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !res.remove(r.Context(), id) {
			writeJSONError(w, http.StatusInternalServerError, "failed to delete "+res.item)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetCategoriesWithSubcategories(r.Context()))
}

func (s *Server) handleSubcategories(w http.ResponseWriter, r *http.Request) {
	t := core.EntryType(r.URL.Query().Get("type"))
	if !t.Valid() {
		writeJSONError(w, http.StatusUnprocessableEntity, core.ErrInvalidType.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.svc.GetSubcategoriesByType(r.Context(), t))
}
