package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary is the dashboard overview computed from the fetched lists.
type Summary struct {
	Income            decimal.Decimal
	Expense           decimal.Decimal
	Net               decimal.Decimal
	TotalBalance      decimal.Decimal
	OutstandingDebt   decimal.Decimal
	ExpenseByCategory []CategoryAmount
}

// Summarize totals transactions by type and category, platform balances and
// unpaid debts. Expense categories are sorted by amount, largest first.
func Summarize(txs []Transaction, platforms []Platform, debts []Debt) Summary {
	s := Summary{
		Income:          decimal.Zero,
		Expense:         decimal.Zero,
		TotalBalance:    decimal.Zero,
		OutstandingDebt: decimal.Zero,
	}

	byCat := map[string]decimal.Decimal{}
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			s.Income = s.Income.Add(tx.Amount)
		case Expense:
			s.Expense = s.Expense.Add(tx.Amount)
			byCat[tx.Category] = byCat[tx.Category].Add(tx.Amount)
		}
	}
	s.Net = s.Income.Sub(s.Expense)

	for _, p := range platforms {
		s.TotalBalance = s.TotalBalance.Add(p.Balance)
	}
	for _, d := range debts {
		if d.Status != "paid" {
			s.OutstandingDebt = s.OutstandingDebt.Add(d.Amount)
		}
	}

	for name, amt := range byCat {
		s.ExpenseByCategory = append(s.ExpenseByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(s.ExpenseByCategory, func(i, j int) bool {
		a, b := s.ExpenseByCategory[i], s.ExpenseByCategory[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Name < b.Name
	})
	return s
}
