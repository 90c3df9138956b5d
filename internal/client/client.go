// Package client is the REST client for the chat API. It is used by the
// conversation view, the terminal UI and the load tester. Every request
// carries the bearer token of the active session, read fresh from a
// TokenSource on each call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/protocol"
	"github.com/opsdesk/teamchat/internal/session"
)

// ErrUnauthorized is matched by errors.Is for any 401 response.
var ErrUnauthorized = errors.New("client: unauthorized")

// DefaultPageLimit is the page size requested by ListMessages.
const DefaultPageLimit = 100

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// APIError is a non-2xx response from the server.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.Status)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return fmt.Sprintf("client: %d %s: %s", e.Status, code, msg)
	}
	return fmt.Sprintf("client: %d %s", e.Status, code)
}

// Unwrap exposes ErrUnauthorized for 401 responses.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks request counts and latency for one client.
type Metrics struct {
	Requests    int
	Errors      int
	LastLatency time.Duration
	MaxLatency  time.Duration
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// TokenSource supplies the bearer token for each request. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client talks to one chat API base URL. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	tokens    TokenSource
	userAgent string

	mu      sync.Mutex
	metrics Metrics
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 10 * time.Second},
		tokens:    StaticToken(""),
		userAgent: "teamchat-client",
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Authenticate resolves token into the session it belongs to. It implements
// session.Authenticator.
func (c *Client) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodGet, protocol.PathMe, nil, nil, token, &s); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return &s, nil
}

// ListMessages fetches the newest page of messages.
func (c *Client) ListMessages(ctx context.Context) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("skip", "0")
	q.Set("limit", strconv.Itoa(DefaultPageLimit))

	var msgs []chat.Message
	if err := c.do(ctx, http.MethodGet, protocol.PathMessages, q, nil, c.tokens.Token(), &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// SendMessage posts body and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, body string) (*chat.Message, error) {
	var m chat.Message
	req := protocol.SendMessageRequest{Body: body}
	if err := c.do(ctx, http.MethodPost, protocol.PathMessages, nil, req, c.tokens.Token(), &m); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &m, nil
}

// ListTyping fetches the typing indicators of other users.
func (c *Client) ListTyping(ctx context.Context) ([]chat.TypingIndicator, error) {
	var ind []chat.TypingIndicator
	if err := c.do(ctx, http.MethodGet, protocol.PathTyping, nil, nil, c.tokens.Token(), &ind); err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}
	return ind, nil
}

// SetTyping publishes the local user's typing state.
func (c *Client) SetTyping(ctx context.Context, isTyping bool) error {
	req := protocol.SetTypingRequest{IsTyping: isTyping}
	if err := c.do(ctx, http.MethodPost, protocol.PathTyping, nil, req, c.tokens.Token(), nil); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	return nil
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in any, token string, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.record(time.Since(start), err != nil || (resp != nil && resp.StatusCode >= 300))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) record(latency time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.Requests++
	if failed {
		c.metrics.Errors++
	}
	c.metrics.LastLatency = latency
	if latency > c.metrics.MaxLatency {
		c.metrics.MaxLatency = latency
	}
}

func decodeError(resp *http.Response) error {
	er := protocol.DecodeError(resp.Body)
	return &APIError{
		Status:     resp.StatusCode,
		Code:       er.Code,
		Message:    er.Message,
		RetryAfter: er.RetryAfter,
	}
}
