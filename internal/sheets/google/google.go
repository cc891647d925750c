package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	ports "dompet/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string

	// Options replace the credential options when set.
	Options []goption.ClientOption
}

// Client mirrors table rows into a spreadsheet, one tab per table. Column A
// holds the row id; row 1 holds the column names.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu   sync.Mutex
	tabs map[string]bool
}

// Ensure interface conformance
var _ ports.RowMirror = (*Client)(nil)

// New creates a Sheets client. Credentials come from cfg, falling back to
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	opts := cfg.Options
	if len(opts) == 0 {
		creds, err := credentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		tabs:          make(map[string]bool),
	}, nil
}

func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Upsert writes row over the line holding id, or below the last line when
// the id is not in the tab yet.
func (c *Client) Upsert(ctx context.Context, table string, id int64, row map[string]any) error {
	cols, err := ports.ColumnsFor(table)
	if err != nil {
		return err
	}
	if err := c.ensureTab(ctx, table); err != nil {
		return err
	}
	ids, err := c.readIDs(ctx, table)
	if err != nil {
		return err
	}
	last := columnLetter(len(cols))

	if len(ids) == 0 {
		header := make([]any, len(cols))
		for i, col := range cols {
			header[i] = col
		}
		if err := c.write(ctx, fmt.Sprintf("%s!A1:%s1", table, last), header); err != nil {
			return fmt.Errorf("write header in %s: %w", table, err)
		}
		ids = [][]any{{"id"}}
	}

	n := findRow(ids, id)
	if n == 0 {
		n = len(ids) + 1
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", table, n, last, n)
	if err := c.write(ctx, rng, rowValues(cols, id, row)); err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}

// Remove clears the line holding id. A missing id is not an error.
func (c *Client) Remove(ctx context.Context, table string, id int64) error {
	cols, err := ports.ColumnsFor(table)
	if err != nil {
		return err
	}
	if err := c.ensureTab(ctx, table); err != nil {
		return err
	}
	ids, err := c.readIDs(ctx, table)
	if err != nil {
		return err
	}
	n := findRow(ids, id)
	if n == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", table, n, columnLetter(len(cols)), n)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, rng string, values []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (c *Client) readIDs(ctx context.Context, table string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", table)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// ensureTab adds the tab for table the first time it is used.
func (c *Client) ensureTab(ctx context.Context, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabs[table] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.tabs[sh.Properties.Title] = true
		}
	}
	if c.tabs[table] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: table},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", table, err)
	}
	slog.InfoContext(ctx, "Added spreadsheet tab", "table", table)
	c.tabs[table] = true
	return nil
}

// findRow returns the 1-based line whose first cell equals id, or 0. Line 1
// is the header.
func findRow(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 1
		}
	}
	return 0
}

func rowValues(cols []string, id int64, row map[string]any) []any {
	out := make([]any, len(cols))
	for i, col := range cols {
		if col == "id" {
			out[i] = id
			continue
		}
		out[i] = cellValue(row[col])
	}
	return out
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int64, int, float64:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// columnLetter converts a 1-based column index to A1 notation.
func columnLetter(n int) string {
	var s []byte
	for n > 0 {
		n--
		s = append([]byte{byte('A' + n%26)}, s...)
		n /= 26
	}
	return string(s)
}
