// Package backend is the HTTP client for the try-on backend's REST contract.
//
// Every endpoint follows the same rules:
//   - the credential travels as "Authorization: Bearer <token>"
//   - 401 and 403 mean "re-authenticate" → apperror.ErrUnauthorized
//   - any other non-2xx carries a human-readable "detail" that is surfaced verbatim
//   - a transport failure (connection refused, reset, cancelled) → apperror.ErrNetwork
//
// The client is stateless with respect to the user: the credential is passed
// on each call, so one Client can serve many sessions at once.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// Client talks to one backend instance.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests use the one
// returned by httptest.Server.Client).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request. Zero means no client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// New creates a Client for the backend at baseURL (e.g. "http://localhost:8000").
//
// Outgoing requests are instrumented with otelhttp. With no tracer provider
// registered the global no-op provider is used.
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: base URL %q must be absolute", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.http = &http.Client{
		Transport: otelhttp.NewTransport(base),
		Timeout:   c.http.Timeout,
	}
	return c, nil
}

// URL resolves a backend path (e.g. "/images/results/r9.png") to an absolute URL.
func (c *Client) URL(path string) string {
	return c.base.String() + path
}

// LoginURL is where the user starts the external login flow. The backend
// redirects back to "/#token=<credential>" when it completes.
func (c *Client) LoginURL() string {
	return c.URL("/auth/google/login")
}

// bearer returns an HTTP client that adds the credential to every request.
//
// A StaticTokenSource never refreshes. A new credential only comes from
// logging in again.
func (c *Client) bearer(cred model.Credential) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: string(cred),
				TokenType:   "Bearer",
			}),
			Base: c.http.Transport,
		},
		Timeout: c.http.Timeout,
	}
}

// do sends req and decodes a 2xx JSON body into out (unless out is nil).
// op names the operation in log lines and network error messages.
func (c *Client) do(hc *http.Client, req *http.Request, op string, out any) (int, error) {
	start := time.Now()

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return 0, apperror.Network(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request completed",
		slog.String("op", op),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, apperror.Network(op, fmt.Errorf("decoding response: %w", err))
	}
	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("backend: building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// requireCredential guards authenticated endpoints: sending a request
// without a token would only come back as a 401 anyway.
func requireCredential(cred model.Credential) error {
	if !cred.Present() {
		return apperror.LoginRequired()
	}
	return nil
}

// errorBody is the backend's error envelope. FastAPI-style validation
// failures put a list of {msg} objects in detail instead of a string.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func (b errorBody) text() string {
	if len(b.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(b.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(b.Detail)
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	detail := body.text()
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &apperror.AppError{Err: apperror.ErrUnauthorized, Message: detail, Status: resp.StatusCode}
	}
	return &apperror.AppError{Err: apperror.ErrValidation, Message: detail, Status: resp.StatusCode}
}

// statusOf returns the HTTP status recorded on err, or 0.
func statusOf(err error) int {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

func jsonBody(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return &buf, nil
}
