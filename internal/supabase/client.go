// Package supabase talks to a hosted Supabase project: PostgREST for table
// access and GoTrue for accounts.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type Config struct {
	URL     string
	AnonKey string
	// JWTSecret, when set, lets GetUser verify access tokens locally instead
	// of calling /auth/v1/user.
	JWTSecret  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase url is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse supabase url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		http:    hc,
	}, nil
}

// Error is an error body returned by PostgREST or GoTrue.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *Error) Error() string {
	return e.Message
}

// PublicMessage returns the provider's message as-is so it can be shown on
// the login and sign-up forms.
func (e *Error) PublicMessage() string {
	return e.Message
}

// errorBody covers both PostgREST and the old and new GoTrue error layouts.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
}

func parseError(status int, body []byte) *Error {
	var b errorBody
	_ = json.Unmarshal(body, &b)

	e := &Error{Status: status, Details: b.Details, Hint: b.Hint}
	switch {
	case b.ErrorCode != "":
		e.Code = b.ErrorCode
	case b.Code != nil:
		e.Code = fmt.Sprint(b.Code)
	case b.ErrorField != "":
		e.Code = b.ErrorField
	}
	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription, b.ErrorField} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	token   string
	headers map[string]string
}

// do sends req and decodes a 2xx JSON body into out (when non-nil).
// Non-2xx responses become *Error.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		sep := "?"
		if strings.Contains(req.path, "?") {
			sep = "&"
		}
		u += sep + req.query.Encode()
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token := req.token
	if token == "" {
		token = c.anonKey
	}
	hr.Header.Set("apikey", c.anonKey)
	hr.Header.Set("Authorization", "Bearer "+token)
	if req.body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		hr.Header.Set(k, v)
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
