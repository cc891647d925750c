// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts typed into forms
// and rendering them in rupiah notation.
package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed decimal string into a positive amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. Amounts
// are rounded half-up to two decimal places. Signs, grouping separators and
// zero are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatRupiah renders an amount as "Rp1.250.000" or "Rp1.250,50" when it has
// a fractional part. Negative amounts get a leading minus.
func FormatRupiah(d decimal.Decimal) string {
	neg := d.IsNegative()
	d = d.Abs().Round(2)

	whole := d.Truncate(0)
	frac := d.Sub(whole).Mul(decimal.NewFromInt(100)).IntPart()

	digits := whole.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "Rp" + b.String()
	if frac > 0 {
		out += "," + fmt.Sprintf("%02d", frac)
	}
	if neg {
		return "-" + out
	}
	return out
}
