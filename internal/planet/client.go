// Package planet is the HTTP gateway to the Planet Data and Orders APIs.
package planet

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

	"github.com/mohammed-shakir/planet-pipeline/internal/core/httpclient"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
)

const (
	DefaultBaseURL = "https://api.planet.com"

	searchesPath = "/data/v1/searches"
	ordersPath   = "/compute/ops/orders/v2"

	maxErrBody = 8 << 10
)

type Client struct {
	base     *url.URL
	apiKey   string
	http     *http.Client
	log      *slog.Logger
	pageSize int
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithPageSize sets the search result page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &RemoteClientError{Op: "new client", Err: fmt.Errorf("invalid base url %q", baseURL)}
	}
	if apiKey == "" {
		return nil, &RemoteClientError{Op: "new client", Err: errors.New("missing API key")}
	}
	c := &Client{
		base:     u,
		apiKey:   apiKey,
		http:     httpclient.NewOutbound(),
		log:      slog.Default(),
		pageSize: 250,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one JSON request and decodes a 2xx JSON answer into out.
func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &RemoteClientError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rdr = bytes.NewReader(b)
	}

	resp, err := c.send(ctx, op, method, target, rdr)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteAPIError{Op: op, Status: 0, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// send returns a response with a 2xx status; the caller closes the body.
func (c *Client) send(ctx context.Context, op, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &RemoteClientError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("planet_"+op, err, time.Since(start).Seconds())
		return nil, &RemoteAPIError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		_ = resp.Body.Close()
		apiErr := &RemoteAPIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		observability.ObserveUpstreamLatency("planet_"+op, apiErr, time.Since(start).Seconds())
		c.log.WarnContext(ctx, "planet request failed",
			"op", op,
			"status", resp.StatusCode,
			"retry_after", resp.Header.Get("Retry-After"),
		)
		return nil, apiErr
	}
	observability.ObserveUpstreamLatency("planet_"+op, nil, time.Since(start).Seconds())
	return resp, nil
}
