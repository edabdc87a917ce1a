// Package httpx provides the rate-limited, retrying JSON client shared
// by the REST connectors. Provider APIs throttle aggressively; the
// limiter keeps a burst of sync cycles from tripping 429s, and the
// retry loop absorbs the ones that still slip through.
package httpx

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

	"golang.org/x/time/rate"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the base URL for all requests.
	BaseURL string

	// Token is the bearer token applied to every request.
	Token string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int

	// RateLimit is the allowed requests per second (default: 5).
	RateLimit float64

	// RateBurst is the maximum burst size (default: 5).
	RateBurst int

	// Transport allows injecting a custom round tripper for tests.
	Transport http.RoundTripper
}

// Client is a rate-limited, retry-capable JSON HTTP client.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new client, filling zero config fields with
// defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5.0
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 5
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// StatusError is a non-2xx HTTP response surfaced as an error.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying in place
// (rate limited or server-side).
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AuthFailure reports whether the status means the credentials are no
// longer valid.
func (e *StatusError) AuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NotFound reports whether the target no longer exists.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Do executes a request, waiting on the rate limiter and retrying
// retryable failures with exponential backoff. The out target, when
// non-nil, receives the decoded JSON response body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		err := c.doOnce(ctx, method, path, query, encoded, out)
		if err == nil {
			return nil
		}
		lastErr = err

		statusErr, ok := AsStatusError(err)
		if !ok || !statusErr.Retryable() {
			return err
		}

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	fullURL := c.cfg.BaseURL
	if path != "" {
		fullURL = strings.TrimSuffix(fullURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// AsStatusError extracts a StatusError from an error chain.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
