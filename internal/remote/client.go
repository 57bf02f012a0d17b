package remote

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

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// ErrNotSignedIn is returned by calls that need a token when none is set.
var ErrNotSignedIn = errors.New("remote: not signed in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %d %s", e.Status, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for REST calls and dials.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithReconnect sets the first watch reconnect delay and its ceiling.
func WithReconnect(delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.reconnectDelay = delay
		}
		if maxDelay > 0 {
			c.maxReconnectDelay = maxDelay
		}
		c.maxReconnectDelay = max(c.maxReconnectDelay, c.reconnectDelay)
	}
}

// WithKeepalive sets how often an idle watch stream is pinged and how long
// a pong may take before the stream counts as dead. interval <= 0 turns
// pings off.
func WithKeepalive(interval, timeout time.Duration) Option {
	return func(c *Client) {
		c.pingInterval = interval
		if timeout > 0 {
			c.pingTimeout = timeout
		}
	}
}

// Client talks to the wirechat-dm server: the user directory, the message
// log and its watch stream.
type Client struct {
	base              *url.URL
	http              *http.Client
	log               *zerolog.Logger
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pingInterval      time.Duration
	pingTimeout       time.Duration

	mu    sync.RWMutex
	token string
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}

	nop := zerolog.Nop()
	c := &Client{
		base:              base,
		http:              &http.Client{Timeout: 30 * time.Second},
		log:               &nop,
		reconnectDelay:    500 * time.Millisecond,
		maxReconnectDelay: 15 * time.Second,
		pingInterval:      15 * time.Second,
		pingTimeout:       10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the bearer token used by authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, req proto.RegisterRequest) (*proto.AuthResponse, error) {
	var resp proto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/register", nil, req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Login signs in and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*proto.AuthResponse, error) {
	var resp proto.AuthResponse
	req := proto.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/login", nil, req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// ListUsers returns the user directory without the caller.
func (c *Client) ListUsers(ctx context.Context) ([]schema.User, error) {
	var users []schema.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePushToken registers the device push token for the caller.
func (c *Client) UpdatePushToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPut, "/api/users/me/token", nil, proto.PushTokenRequest{Token: token}, nil)
}

// ClearPushToken removes the caller's push token.
func (c *Client) ClearPushToken(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/users/me/token", nil, nil, nil)
}

// Insert appends msg to the log. The server takes the sender from the token.
func (c *Client) Insert(ctx context.Context, msg schema.Message) error {
	req := proto.SendMessageRequest{
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		SentAt:     msg.SentAt,
	}
	return c.do(ctx, http.MethodPost, "/api/messages", nil, req, nil)
}

// GetAll returns every record of one direction in log order.
func (c *Client) GetAll(ctx context.Context, filter schema.Filter) ([]schema.Message, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var msgs []schema.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages", filterQuery(filter, 0), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func filterQuery(filter schema.Filter, after int64) url.Values {
	q := url.Values{}
	q.Set(proto.QuerySenderID, filter.SenderID)
	q.Set(proto.QueryReceiverID, filter.ReceiverID)
	if after > 0 {
		q.Set(proto.QueryAfter, strconv.FormatInt(after, 10))
	}
	return q
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if resp.Body == nil {
		return apiErr
	}
	var body proto.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
