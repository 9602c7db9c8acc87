// Package http implements the target client over net/http.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"envload/internal/core"
)

const (
	// maxBodySize limits how much of a response is kept for checks.
	maxBodySize = 1 << 20
	// DefaultTimeout applies when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Headers map[string]string
	Debug   *DebugLogger
	// Transport overrides the HTTP client, mainly for tests.
	Transport *http.Client
}

// Client sends requests relative to a base URL. It is stateless and safe
// to share between every actor of a run.
type Client struct {
	base    *url.URL
	http    *http.Client
	headers map[string]string
	debug   *DebugLogger
}

var _ core.Client = (*Client)(nil)

// NewClient parses baseURL and builds a client.
func NewClient(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	hc := opts.Transport
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:    base,
		http:    hc,
		headers: opts.Headers,
		debug:   opts.Debug,
	}, nil
}

// Resolve joins path onto the base URL. Absolute URLs pass through.
func (c *Client) Resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	u.RawPath = ""
	return u.String(), nil
}

// Send performs one request. body may be nil, a string, a []byte or any
// value that is encoded as JSON. Only transport faults are returned as
// errors; every status code is a Response.
func (c *Client) Send(ctx context.Context, method, path string, body any) (*core.Response, error) {
	actorID := core.ActorIDFromContext(ctx)

	target, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	c.debug.LogRequest(actorID, req, payload)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.debug.LogError(actorID, method, target, err, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable
	latency := time.Since(start)

	c.debug.LogResponse(actorID, req, resp, respBody, latency)

	return &core.Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Latency:    latency,
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		if b == "" {
			return nil, nil
		}
		return []byte(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		return data, nil
	}
}
