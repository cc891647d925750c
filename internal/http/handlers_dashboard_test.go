package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"dompet/internal/core"
	"dompet/internal/store"
	"dompet/internal/store/memory"
)

func quickAddForm(amount string) string {
	return url.Values{
		"date":        {"2026-10-02"},
		"description": {"Bensin"},
		"amount":      {amount},
		"type":        {"expense"},
		"category":    {"Transport"},
	}.Encode()
}

func TestQuickAddHTMX(t *testing.T) {
	e := newTestEnv(t, nil, 10)
	c := withCookie(e.signUp(t, "quick@example.com"))

	rr := e.do(http.MethodPost, "/transactions", quickAddForm("150000"), c, htmx)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, part := range []string{`"transactions:changed"`, `"form:reset"`, `"show-notification"`, "Rp150.000"} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
	if rr.Header().Get("HX-Refresh") != "true" {
		t.Error("HX-Refresh not set")
	}

	rr = e.do(http.MethodGet, "/", "", c)
	if !strings.Contains(rr.Body.String(), "Bensin") {
		t.Error("dashboard does not list the new transaction")
	}
}

func TestQuickAddValidation(t *testing.T) {
	e := newTestEnv(t, nil, 10)
	c := withCookie(e.signUp(t, "invalid@example.com"))

	tests := []struct {
		name string
		body string
	}{
		{"zero amount", quickAddForm("0")},
		{"text amount", quickAddForm("banyak")},
		{"missing category", url.Values{"description": {"x"}, "amount": {"1"}, "type": {"income"}}.Encode()},
		{"bad date", url.Values{"date": {"02/10/2026"}, "description": {"x"}, "amount": {"1"}, "type": {"income"}, "category": {"Gaji"}}.Encode()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(http.MethodPost, "/transactions", tt.body, c, htmx)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), `class="error"`) {
				t.Errorf("body = %q", rr.Body.String())
			}
		})
	}
}

func TestQuickAddAndDeleteWithoutHTMX(t *testing.T) {
	e := newTestEnv(t, nil, 10)
	cookie := e.signUp(t, "plain@example.com")
	c := withCookie(cookie)

	rr := e.do(http.MethodPost, "/transactions", quickAddForm("20000"), c)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("add = %d %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = e.do(http.MethodGet, "/api/transactions", "", c)
	list := decode[[]core.Transaction](t, rr)
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	rr = e.do(http.MethodPost, "/transactions/"+strconv.FormatInt(list[0].ID, 10)+"/delete", "", c)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("delete = %d", rr.Code)
	}
	rr = e.do(http.MethodGet, "/api/transactions", "", c)
	if list := decode[[]core.Transaction](t, rr); len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}

	rr = e.do(http.MethodPost, "/transactions/nope/delete", "", c)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", rr.Code)
	}
}

func TestQuickAddRequiresSession(t *testing.T) {
	e := newTestEnv(t, nil, 10)

	rr := e.do(http.MethodPost, "/transactions", quickAddForm("1000"), htmx)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Errorf("HX-Redirect = %q", rr.Header().Get("HX-Redirect"))
	}
}

// readOnlyStore rejects every insert.
type readOnlyStore struct{ *memory.Store }

func (readOnlyStore) Insert(context.Context, string, store.Row) (store.Row, error) {
	return nil, errors.New("read-only replica")
}

func TestQuickAddStoreFailure(t *testing.T) {
	e := newTestEnvWithStore(t, nil, 10, readOnlyStore{memory.New()})
	c := withCookie(e.signUp(t, "ro@example.com"))

	rr := e.do(http.MethodPost, "/transactions", quickAddForm("5000"), c, htmx)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"type":"error"`) {
		t.Errorf("HX-Trigger = %s", trigger)
	}

	rr = e.do(http.MethodPost, "/api/platforms", `{"account":"BCA"}`, c)
	if rr.Code != http.StatusInternalServerError || !strings.Contains(rr.Body.String(), "failed to add platform") {
		t.Errorf("API create = %d %s", rr.Code, rr.Body.String())
	}
}
