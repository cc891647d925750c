// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// path ids, JSON bodies for the /api handlers, and the form or JSON bodies the
// auth pages and the quick-add form post.

package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"dompet/internal/core"
)

// maxBodyBytes caps every request body the handlers read.
const maxBodyBytes = 1 << 20

var (
	ErrInvalidID  = errors.New("invalid id")
	ErrEmptyPatch = errors.New("no fields to update")
)

// ParseID reads the {id} path value as a positive integer.
func ParseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// DecodeJSON decodes the body into v, rejecting unknown fields and trailing
// data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// isEmptyPatch reports whether patch serializes to an empty object, which
// is the case when every pointer field is nil.
func isEmptyPatch(patch any) bool {
	b, err := json.Marshal(patch)
	return err == nil && bytes.Equal(b, []byte("{}"))
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(trimmed, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	return sanitizeInput(p.GetRaw(key))
}

// GetRaw returns the value untouched; used for passwords.
func (p *RequestBodyParser) GetRaw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return stringValue(val)
		}
		return ""
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseTransactionForm builds a transaction from the quick-add form. The
// date defaults to today.
func ParseTransactionForm(form url.Values, now time.Time) (core.Transaction, error) {
	tx := core.Transaction{
		Description: sanitizeInput(form.Get("description")),
		Type:        core.EntryType(strings.ToLower(sanitizeInput(form.Get("type")))),
		Category:    sanitizeInput(form.Get("category")),
		Subcategory: sanitizeInput(form.Get("subcategory")),
		Platform:    sanitizeInput(form.Get("platform")),
	}

	if v := strings.TrimSpace(form.Get("date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("invalid date %q", v)
		}
		tx.Date = d
	} else {
		tx.Date = core.NewDate(now.Year(), int(now.Month()), now.Day())
	}

	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = amount

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}
