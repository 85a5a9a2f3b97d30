// Package transport is the REST client the resource layer talks through.
// Every failure is classified with the faults package: network errors and
// 5xx responses are retryable, 4xx responses are rejections.
package transport

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

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/logging"
)

// Header names set on outgoing requests.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// PingPath is requested by Ping. Defaults to "/".
	PingPath string
}

// Client sends JSON requests relative to BaseURL.
type Client struct {
	base    *url.URL
	http    *http.Client
	cfg     Config
	logger  logging.Logger
	newID   func() string
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, goerrors.New("transport base URL is required", goerrors.CategoryValidation)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerrors.New(fmt.Sprintf("invalid base URL %q", cfg.BaseURL), goerrors.CategoryValidation)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PingPath == "" {
		cfg.PingPath = "/"
	}

	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		logger:  logging.NopLogger{},
		newID:   func() string { return uuid.NewString() },
		headers: make(http.Header),
	}
	for k, v := range cfg.Headers {
		c.headers.Set(k, v)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request describes one call. Path is relative to the base URL and already
// escaped, so segments built with url.PathEscape keep their encoding.
type Request struct {
	Method         string
	Path           string
	Query          url.Values
	Body           any
	IdempotencyKey string
}

// Do sends req and decodes a successful JSON response into out, when out is
// not nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return err
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return faults.Serialization(err, "encode request body")
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "build request")
	}
	for k, vs := range c.headers {
		httpReq.Header[k] = vs
	}
	requestID := c.newID()
	httpReq.Header.Set(HeaderRequestID, requestID)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	fields := logging.Fields{
		"method":     req.Method,
		"url":        target,
		"request_id": requestID,
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Debug("request failed", fields)
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return faults.Network(err, fmt.Sprintf("%s %s failed", req.Method, req.Path))
	}
	defer resp.Body.Close()

	fields["status"] = resp.StatusCode
	fields["duration"] = time.Since(started).String()
	c.logger.Debug("request completed", fields)

	if resp.StatusCode >= 400 {
		return classify(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Serialization(err, "decode response body")
	}
	return nil
}

// Ping requests PingPath. Any response at all means the API is reachable;
// only network failures and 5xx responses are returned as errors.
func (c *Client) Ping(ctx context.Context) error {
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: c.cfg.PingPath}, nil)
	if faults.IsRejection(err) {
		return nil
	}
	return err
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	u := *c.base
	escaped := c.base.EscapedPath() + strings.TrimLeft(path, "/")
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid request path %q", path)).
			WithTextCode("INVALID_PATH")
	}
	u.Path = unescaped
	u.RawPath = escaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// errorBody is the error envelope the API answers with.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func classify(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	message := ""
	if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
		message = eb.Message
	}

	if resp.StatusCode >= 500 {
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return faults.NetworkStatus(resp.StatusCode, message)
	}
	return faults.Rejection(resp.StatusCode, message)
}
