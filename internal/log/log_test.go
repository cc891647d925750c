package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func jsonLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Component: ComponentApp,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf).WithComponent(ComponentAuth).With(FieldUserID, "u-1")

	logger.Info("User signed in", FieldOperation, OpSignIn)

	entry := lastEntry(t, &buf)
	if entry["component"] != ComponentAuth || entry[FieldUserID] != "u-1" || entry[FieldOperation] != OpSignIn {
		t.Errorf("entry = %v", entry)
	}
	if logger.Component() != ComponentAuth {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf).With(FieldRequestID, "req_1")
	ctx := NewContext(context.Background(), logger)

	FromContext(ctx).InfoContext(ctx, "from context")
	if entry := lastEntry(t, &buf); entry[FieldRequestID] != "req_1" {
		t.Errorf("entry = %v", entry)
	}

	if got := FromContext(context.Background()); got == nil || got.Component() != "unknown" {
		t.Errorf("fallback logger = %+v", got)
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{303, "INFO"},
		{422, "WARN"},
		{503, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(jsonLogger(&buf))
		req := httptest.NewRequest("GET", "/api/goals?x=1", nil)

		sl.LogHTTPEnd(context.Background(), req, tt.status, 12, "192.0.2.1")

		entry := lastEntry(t, &buf)
		if entry["level"] != tt.level {
			t.Errorf("status %d logged at %v, want %s", tt.status, entry["level"], tt.level)
		}
		if entry[FieldPath] != "/api/goals" || entry[FieldQuery] != "x=1" || entry[FieldClientIP] != "192.0.2.1" {
			t.Errorf("entry = %v", entry)
		}
		if entry[FieldSuccess] != (tt.status < 400) {
			t.Errorf("success = %v for %d", entry[FieldSuccess], tt.status)
		}
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(jsonLogger(&buf))

	fields := NewFields().WithRecord("debts", 7).WithUser("u-2")
	sl.LogError(context.Background(), "Error updating debt", errors.New("boom"), ComponentDatabase, OpUpdate, fields)

	entry := lastEntry(t, &buf)
	want := map[string]any{
		FieldTable:     "debts",
		FieldRecordID:  float64(7),
		FieldUserID:    "u-2",
		FieldError:     "boom",
		FieldOperation: OpUpdate,
		FieldComponent: ComponentDatabase,
		"level":        "ERROR",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestFieldsSkipEmpty(t *testing.T) {
	f := NewFields().WithRecord("goals", 0).WithUser("").WithError(nil)
	if _, ok := f[FieldRecordID]; ok {
		t.Error("zero record id should be omitted")
	}
	if _, ok := f[FieldUserID]; ok {
		t.Error("empty user id should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be omitted")
	}
	if len(f.ToSlice()) != 2 {
		t.Errorf("ToSlice = %v", f.ToSlice())
	}
}

func TestNewOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Component: ComponentWorker, JSON: true, Output: &buf}).Info("started")
	if entry := lastEntry(t, &buf); entry["msg"] != "started" || entry[FieldComponent] != ComponentWorker {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	New(Config{Output: &buf, Level: slog.LevelWarn}).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info written below warn level: %q", buf.String())
	}
}
