// Package directory implements engine.Directory against the user directory
// HTTP API.
package directory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine"
)

const (
	headerTraceID = "X-Trace-Id"

	defaultTimeout = 30 * time.Second
)

type options struct {
	client  *http.Client
	timeout time.Duration
}

type Option func(*options)

// WithClient overrides the HTTP client, for tests and custom transports.
func WithClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Client calls the directory service with basic auth on every request and
// propagates the trace id from the context when one is present.
type Client struct {
	baseURL string
	user    string
	pass    string
	client  *http.Client
}

var _ engine.Directory = (*Client)(nil)

func New(baseURL, user, pass string, opts ...Option) *Client {
	o := options{
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: o.timeout}
	}

	return &Client{
		baseURL: baseURL,
		user:    user,
		pass:    pass,
		client:  o.client,
	}
}

func (c *Client) UsersByID(ctx context.Context, ids []string) ([]engine.DirectoryUser, error) {
	return c.postUsers(ctx, "/user/info/id", map[string]any{"ids": ids})
}

func (c *Client) UsersByIpn(ctx context.Context, ipn string) ([]engine.DirectoryUser, error) {
	return c.postUsers(ctx, "/user/info/ipn", map[string]any{"ipn": ipn})
}

func (c *Client) UsersByEdrpou(ctx context.Context, edrpou string) ([]engine.DirectoryUser, error) {
	return c.postUsers(ctx, "/user/info/edrpou", map[string]any{"edrpou": edrpou})
}

func (c *Client) Search(ctx context.Context, text string) ([]engine.DirectoryUser, error) {
	return c.postUsers(ctx, "/user/info/search", map[string]any{"text": text})
}

func (c *Client) UpdateUser(ctx context.Context, id string, data map[string]any) error {
	body, err := engine.Marshal(&data)
	if err != nil {
		return err
	}

	res, err := c.do(ctx, http.MethodPut, "/user/info/"+id, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	return checkStatus(res)
}

func (c *Client) postUsers(ctx context.Context, path string, req map[string]any) ([]engine.DirectoryUser, error) {
	body, err := engine.Marshal(&req)
	if err != nil {
		return nil, err
	}

	res, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return nil, err
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var users []engine.DirectoryUser
	if err := engine.Unmarshal(b, &users); err != nil {
		return nil, err
	}

	return users, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.pass)
	if traceID := engine.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(headerTraceID, traceID)
	}

	return c.client.Do(req)
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(res.Body, 1024))

	return errors.New("directory request failed", j.MKV{
		"status": res.Status,
		"url":    res.Request.URL.String(),
		"body":   string(b),
	})
}
