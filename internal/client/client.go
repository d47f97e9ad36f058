// Package client is the test-client side of the results protocol: it pings
// the server and posts a run's results as a URL-encoded JSON query parameter.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Options configures the HTTP client used to reach the test server.
type Options struct {
	// InsecureSkipVerify disables peer certificate verification. It applies
	// to this client only and exists for local test runs against
	// self-signed certificates.
	InsecureSkipVerify bool
	// RootCAs, when set, replaces the system pool.
	RootCAs *x509.CertPool
	Timeout time.Duration
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to a running test server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL, e.g. https://localhost:4201.
func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewWithHTTPClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(opts.InsecureSkipVerify, opts.RootCAs),
	})
}

// NewWithHTTPClient wraps an existing http.Client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// NewTransport returns a transport whose TLS verification is controlled
// explicitly rather than through process-wide state.
func NewTransport(insecureSkipVerify bool, rootCAs *x509.CertPool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            rootCAs,
		InsecureSkipVerify: insecureSkipVerify,
	}
	return t
}

// Ping calls GET /ping and returns the reported platform name.
func (c *Client) Ping(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/ping", nil, "ping")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PostResults JSON-encodes v and posts it as the data query parameter.
func (c *Client) PostResults(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return c.PostRawResults(ctx, string(data))
}

// PostRawResults posts data verbatim, without checking that it is JSON.
func (c *Client) PostRawResults(ctx context.Context, data string) error {
	q := url.Values{}
	q.Set("data", data)
	_, err := c.do(ctx, http.MethodPost, "/results", q, "post results")
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, op string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
