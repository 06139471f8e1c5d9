package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/http/perf"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// ErrNoToken is returned by a TokenSource that has no access token.
var ErrNoToken = errors.New("no access token")

// TokenSource supplies bearer tokens for one signed-in user.
type TokenSource interface {
	// AccessToken returns the current access token.
	AccessToken(ctx context.Context) (string, error)
	// Refresh exchanges the refresh token for a new access token.
	Refresh(ctx context.Context) (string, error)
}

// Config configures a Backend.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	Collector      *perf.Collector
	SlowUpstreamMs int
	Transport      http.RoundTripper
	// OnUnauthorized runs when a request stays unauthorized after a refresh.
	OnUnauthorized func(ctx context.Context)
}

// Backend is the shared connection to the remote coaching API.
type Backend struct {
	base           *url.URL
	http           *http.Client
	onUnauthorized func(ctx context.Context)
}

// NewBackend creates a Backend for cfg.BaseURL.
// PRE: cfg.BaseURL is an absolute http(s) URL
// POST: Returns a Backend whose requests are timed into cfg.Collector
func NewBackend(cfg Config) (*Backend, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid API base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Backend{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newTimedTransport(cfg.Transport, cfg.Collector, cfg.SlowUpstreamMs),
		},
		onUnauthorized: cfg.OnUnauthorized,
	}, nil
}

// For returns a Client that authenticates with tokens.
func (b *Backend) For(tokens TokenSource) *Client {
	return &Client{backend: b, tokens: tokens}
}

// Client calls the remote API on behalf of one user.
type Client struct {
	backend *Backend
	tokens  TokenSource
}

// Meta is the pagination block of a list response.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Page is one page of a list response. Paged is false when the endpoint
// returned a bare array, in which case Items holds every record.
type Page[T any] struct {
	Items []T
	Meta  Meta
	Paged bool
}

// envelope is the {data, meta} wrapper most endpoints use.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *Meta           `json:"meta"`
}

// unwrap returns the payload of body, accepting {data, meta}, bare arrays and
// bare objects.
func unwrap(body []byte) (json.RawMessage, *Meta, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, nil
	}
	if trimmed[0] == '[' {
		return trimmed, nil, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, err
	}
	if len(env.Data) > 0 {
		return env.Data, env.Meta, nil
	}
	return trimmed, env.Meta, nil
}

// request describes one call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	idem   string // idempotency key, shared by a retry
}

func (r request) op() string {
	return r.method + " " + routeOf(r.path)
}

// send performs one HTTP exchange and reads the body.
func (b *Backend) send(ctx context.Context, r request, payload []byte, token string) (int, []byte, error) {
	u := *b.base
	u.Path = b.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.idem != "" {
		req.Header.Set("Idempotency-Key", r.idem)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// call performs r without credentials and decodes the payload into out.
func (b *Backend) call(ctx context.Context, r request, out any) error {
	payload, err := marshalBody(&r)
	if err != nil {
		return err
	}
	status, body, err := b.send(ctx, r, payload, "")
	if err != nil {
		return networkError(r.op(), err)
	}
	_, err = decode(r.op(), status, body, out)
	return err
}

// call performs r with the user's token. A 401 triggers one refresh and one
// retry; a second failure is an authentication error.
func (c *Client) call(ctx context.Context, r request, out any) (*Meta, error) {
	payload, err := marshalBody(&r)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuthentication, Op: r.op(), Status: http.StatusUnauthorized, Message: "your session has expired", Err: err}
	}
	status, body, err := c.backend.send(ctx, r, payload, token)
	if err != nil {
		return nil, networkError(r.op(), err)
	}
	if status == http.StatusUnauthorized {
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			log.Info().Err(err).Str("op", r.op()).Msg("token_refresh_failed")
			return nil, c.unauthorized(ctx, r.op(), err)
		}
		status, body, err = c.backend.send(ctx, r, payload, token)
		if err != nil {
			return nil, networkError(r.op(), err)
		}
		if status == http.StatusUnauthorized {
			return nil, c.unauthorized(ctx, r.op(), nil)
		}
	}
	return decode(r.op(), status, body, out)
}

func (c *Client) unauthorized(ctx context.Context, op string, cause error) *Error {
	if c.backend.onUnauthorized != nil {
		c.backend.onUnauthorized(ctx)
	}
	return &Error{Kind: KindAuthentication, Op: op, Status: http.StatusUnauthorized, Message: "your session has expired", Err: cause}
}

// marshalBody encodes the body and assigns the idempotency key for POSTs.
func marshalBody(r *request) ([]byte, error) {
	if r.method == http.MethodPost && r.idem == "" {
		r.idem = uuid.NewString()
	}
	if r.body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode body: %w", r.op(), err)
	}
	return payload, nil
}

// decode converts a response into out or an *Error.
func decode(op string, status int, body []byte, out any) (*Meta, error) {
	if status < 200 || status > 299 {
		return nil, parseError(op, status, body)
	}
	data, meta, err := unwrap(body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: op, Status: status, Message: "unexpected response from the coaching service", Err: err}
	}
	if out == nil || len(data) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &Error{Kind: KindUnknown, Op: op, Status: status, Message: "unexpected response from the coaching service", Err: err}
	}
	return meta, nil
}

// getList fetches a list endpoint into a Page.
func getList[T any](ctx context.Context, c *Client, path string, query url.Values) (Page[T], error) {
	var items []T
	meta, err := c.call(ctx, request{method: http.MethodGet, path: path, query: query}, &items)
	if err != nil {
		return Page[T]{}, err
	}
	p := Page[T]{Items: items}
	if meta != nil {
		p.Meta = *meta
		p.Paged = true
	} else {
		p.Meta = Meta{Page: 1, Limit: len(items), Total: len(items)}
	}
	return p, nil
}
