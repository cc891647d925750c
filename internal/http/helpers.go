package http

import (
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
)

// sanitizeInput drops control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// templateFuncs are available to every page template.
var templateFuncs = template.FuncMap{
	"rupiah": func(d decimal.Decimal) string { return core.FormatRupiah(d) },
}

func today(now time.Time) string {
	return core.NewDate(now.Year(), int(now.Month()), now.Day()).String()
}
