package http

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"dompet/internal/core"
	"dompet/internal/guard"
	"dompet/internal/log"
	"dompet/internal/services"
)

type dashboardData struct {
	Summary      core.Summary
	Transactions []core.Transaction
	Platforms    []core.Platform
	Debts        []core.Debt
	Goals        []core.Goal
	Budgets      []core.Budget
	Categories   []core.CategoryNode
	Today        string
}

// handleIndex loads every list concurrently and renders the dashboard. The
// facade never fails a list; a backend error shows up as an empty section.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var d dashboardData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { d.Transactions = s.svc.GetTransactions(gctx); return nil })
	g.Go(func() error { d.Platforms = s.svc.GetPlatforms(gctx); return nil })
	g.Go(func() error { d.Debts = s.svc.GetDebts(gctx); return nil })
	g.Go(func() error { d.Goals = s.svc.GetGoals(gctx); return nil })
	g.Go(func() error { d.Budgets = s.svc.GetBudgets(gctx); return nil })
	g.Go(func() error { d.Categories = s.svc.GetCategoriesWithSubcategories(gctx); return nil })
	_ = g.Wait()

	d.Summary = core.Summarize(d.Transactions, d.Platforms, d.Debts)
	d.Today = today(s.now())

	s.render(w, r, http.StatusOK, "index", pageData{Title: "Ringkasan", Dashboard: &d})
}

// handleQuickAdd stores a transaction posted from the dashboard form.
func (s *Server) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		BadRequestError("Format permintaan tidak valid").Write(w)
		return
	}

	tx, err := ParseTransactionForm(r.PostForm, s.now())
	if err != nil {
		UnprocessableEntityError("Data tidak valid: " + err.Error()).Write(w)
		return
	}

	saved := s.svc.AddTransaction(ctx, tx)
	if saved == nil {
		InternalServerError("Gagal menyimpan transaksi").
			TriggerErrorNotification("Gagal menyimpan transaksi").
			Write(w)
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Transaction created",
		log.FieldTable, services.TableTransactions,
		log.FieldRecordID, saved.ID,
		log.FieldOperation, log.OpCreate)

	if r.Header.Get("HX-Request") != "true" {
		guard.Redirect(w, r, guard.HomePath)
		return
	}
	msg := fmt.Sprintf("Transaksi tersimpan: %s (%s)", saved.Description, core.FormatRupiah(saved.Amount))
	NewHTMXResponse().
		TriggerChanged(services.TableTransactions, saved.ID).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Refresh().
		Write(w)
}

func (s *Server) handleQuickDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ParseID(r)
	if err != nil {
		BadRequestError("ID tidak valid").Write(w)
		return
	}
	if !s.svc.DeleteTransaction(ctx, id) {
		InternalServerError("Gagal menghapus transaksi").
			TriggerErrorNotification("Gagal menghapus transaksi").
			Write(w)
		return
	}

	if !strings.EqualFold(r.Header.Get("HX-Request"), "true") {
		guard.Redirect(w, r, guard.HomePath)
		return
	}
	NewHTMXResponse().
		TriggerChanged(services.TableTransactions, id).
		TriggerSuccessNotification("Transaksi dihapus").
		Refresh().
		Write(w)
}
