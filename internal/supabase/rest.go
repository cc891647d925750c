package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"dompet/internal/store"
)

const (
	restPath = "/rest/v1/"
	// PostgREST answers a single-object request that matched no rows with
	// this code.
	codeNoRows = "PGRST116"
)

// RESTStore is a store.Store backed by PostgREST. Row-level security does the
// per-user scoping: requests carry the caller's access token from the context.
// Inserts never send user_id; the column default fills it from the token.
type RESTStore struct {
	c *Client
}

var _ store.Store = (*RESTStore)(nil)

func NewRESTStore(c *Client) *RESTStore {
	return &RESTStore{c: c}
}

func (s *RESTStore) Close() error { return nil }

// Ping checks the PostgREST root is reachable.
func (s *RESTStore) Ping(ctx context.Context) error {
	return s.c.do(ctx, request{method: http.MethodGet, path: restPath}, nil)
}

func token(ctx context.Context) string {
	t, _ := store.AccessToken(ctx)
	return t
}

// filterQuery renders filters in PostgREST's col=op.value syntax.
func filterQuery(filters []store.Filter) (url.Values, error) {
	q := url.Values{}
	for _, f := range filters {
		switch f.Op {
		case store.OpEq:
			if f.Value == nil {
				q.Add(f.Column, "is.null")
				continue
			}
			q.Add(f.Column, "eq."+formatValue(f.Value))
		case store.OpIsNull:
			q.Add(f.Column, "is.null")
		case store.OpIsNotNull:
			q.Add(f.Column, "not.is.null")
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return q, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

func orderParam(order []store.Order) string {
	parts := make([]string, len(order))
	for i, o := range order {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		parts[i] = o.Column + "." + dir
	}
	return strings.Join(parts, ",")
}

func (s *RESTStore) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	params, err := filterQuery(q.Filters)
	if err != nil {
		return nil, err
	}
	params.Set("select", "*")
	if len(q.Order) > 0 {
		params.Set("order", orderParam(q.Order))
	}

	var rows []store.Row
	err = s.c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath + q.Table,
		query:  params,
		token:  token(ctx),
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	if rows == nil {
		rows = []store.Row{}
	}
	for _, r := range rows {
		normalizeNumbers(r)
	}
	return rows, nil
}

var singleObject = map[string]string{
	"Prefer": "return=representation",
	"Accept": "application/vnd.pgrst.object+json",
}

func (s *RESTStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	var out store.Row
	err := s.c.do(ctx, request{
		method:  http.MethodPost,
		path:    restPath + table,
		body:    row,
		token:   token(ctx),
		headers: singleObject,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return normalizeNumbers(out), nil
}

func (s *RESTStore) Update(ctx context.Context, table string, patch store.Row, filters []store.Filter) (store.Row, error) {
	if len(patch) == 0 {
		return nil, store.ErrEmptyPatch
	}
	params, err := filterQuery(filters)
	if err != nil {
		return nil, err
	}
	var out store.Row
	err = s.c.do(ctx, request{
		method:  http.MethodPatch,
		path:    restPath + table,
		query:   params,
		body:    patch,
		token:   token(ctx),
		headers: singleObject,
	}, &out)
	if err != nil {
		var se *Error
		if errors.As(err, &se) && se.Code == codeNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return normalizeNumbers(out), nil
}

func (s *RESTStore) Delete(ctx context.Context, table string, filters []store.Filter) error {
	params, err := filterQuery(filters)
	if err != nil {
		return err
	}
	err = s.c.do(ctx, request{
		method: http.MethodDelete,
		path:   restPath + table,
		query:  params,
		token:  token(ctx),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// normalizeNumbers turns integral JSON numbers into int64 so ids compare and
// filter the same way as rows from the SQL backends. Other numbers stay
// json.Number and keep their exact decimal text.
func normalizeNumbers(r store.Row) store.Row {
	for k, v := range r {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			r[k] = i
		}
	}
	return r
}
