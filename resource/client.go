// Package resource builds typed REST clients for one resource path.
//
// A Client is stateless: every call goes straight to the Doer and unwraps the
// { "data": ... } envelope the API answers with.
//
//	expenses := resource.New[expense.Expense](httpClient, "expenses")
//	page, err := expenses.GetAll(ctx, url.Values{"page": {"1"}, "limit": {"10"}})
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/transport"
)

// Doer sends one request. transport.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req transport.Request, out any) error
}

var _ Doer = (*transport.Client)(nil)

// envelope is the response wrapper used by every endpoint.
type envelope[D any] struct {
	Data D `json:"data"`
}

// CallOption adjusts a single request.
type CallOption func(*transport.Request)

// WithParams merges query parameters into the request.
func WithParams(params url.Values) CallOption {
	return func(r *transport.Request) {
		if len(params) == 0 {
			return
		}
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for k, vs := range params {
			r.Query[k] = append(r.Query[k], vs...)
		}
	}
}

// WithIdempotencyKey makes a replayed write safe to apply twice.
func WithIdempotencyKey(key string) CallOption {
	return func(r *transport.Request) { r.IdempotencyKey = key }
}

// Client is the create/getAll/getOne/update/delete surface of a resource.
type Client[T any] struct {
	doer Doer
	path string
}

func New[T any](doer Doer, path string) *Client[T] {
	return &Client[T]{doer: doer, path: strings.Trim(path, "/")}
}

// Path returns the resource path, without slashes.
func (c *Client[T]) Path() string { return c.path }

// Create posts partial to the resource path.
func (c *Client[T]) Create(ctx context.Context, partial any, opts ...CallOption) (T, error) {
	var out envelope[T]
	err := c.do(ctx, http.MethodPost, c.path, partial, &out, opts)
	return out.Data, err
}

// GetAll lists the resource. params carries filters, sorting and paging.
func (c *Client[T]) GetAll(ctx context.Context, params url.Values, opts ...CallOption) ([]T, error) {
	var out envelope[[]T]
	opts = append([]CallOption{WithParams(params)}, opts...)
	if err := c.do(ctx, http.MethodGet, c.path, nil, &out, opts); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []T{}
	}
	return out.Data, nil
}

func (c *Client[T]) GetOne(ctx context.Context, id string, opts ...CallOption) (T, error) {
	var out envelope[T]
	path, err := c.itemPath(id)
	if err != nil {
		return out.Data, err
	}
	err = c.do(ctx, http.MethodGet, path, nil, &out, opts)
	return out.Data, err
}

// Update puts partial to the item path.
func (c *Client[T]) Update(ctx context.Context, id string, partial any, opts ...CallOption) (T, error) {
	var out envelope[T]
	path, err := c.itemPath(id)
	if err != nil {
		return out.Data, err
	}
	err = c.do(ctx, http.MethodPut, path, partial, &out, opts)
	return out.Data, err
}

// Delete removes the item and returns the id the server reports deleted.
func (c *Client[T]) Delete(ctx context.Context, id string, opts ...CallOption) (string, error) {
	var out envelope[json.RawMessage]
	path, err := c.itemPath(id)
	if err != nil {
		return "", err
	}
	if err := c.do(ctx, http.MethodDelete, path, nil, &out, opts); err != nil {
		return "", err
	}
	deleted, err := rawID(out.Data)
	if err != nil {
		return "", err
	}
	if deleted == "" {
		deleted = id
	}
	return deleted, nil
}

func (c *Client[T]) do(ctx context.Context, method, path string, body, out any, opts []CallOption) error {
	req := transport.Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&req)
	}
	return c.doer.Do(ctx, req, out)
}

func (c *Client[T]) itemPath(id string) (string, error) {
	if id == "" {
		return "", goerrors.New("resource id is required", goerrors.CategoryBadInput).
			WithTextCode("MISSING_ID")
	}
	return c.path + "/" + url.PathEscape(id), nil
}

// rawID reads an id sent either as a JSON number or a string.
func rawID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", faults.Serialization(err, "decode deleted id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", faults.Serialization(err, "decode deleted id")
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}
