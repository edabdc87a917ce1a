package httpx

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// scriptedTransport returns canned responses in order.
type scriptedTransport struct {
	responses []*http.Response
	requests  []*http.Request
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests = append(t.requests, req)
	if len(t.responses) == 0 {
		return response(http.StatusInternalServerError, "exhausted"), nil
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return resp, nil
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(transport http.RoundTripper) *Client {
	return NewClient(Config{
		BaseURL:   "https://api.example.com",
		Token:     "tok",
		Transport: transport,
		RateLimit: 1000,
		RateBurst: 1000,
	})
}

func TestDoRetriesServerErrors(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		response(http.StatusServiceUnavailable, "down"),
		response(http.StatusTooManyRequests, "slow down"),
		response(http.StatusOK, `{"ok":true}`),
	}}
	c := newTestClient(transport)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.Get(context.Background(), "/v1/things", nil, &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !out.OK {
		t.Error("response body not decoded")
	}
	if len(transport.requests) != 3 {
		t.Errorf("requests = %d, want 3", len(transport.requests))
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		response(http.StatusUnauthorized, "expired"),
	}}
	c := newTestClient(transport)

	err := c.Get(context.Background(), "/v1/things", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	statusErr, ok := AsStatusError(err)
	if !ok {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if !statusErr.AuthFailure() {
		t.Errorf("401 not reported as auth failure: %+v", statusErr)
	}
	if len(transport.requests) != 1 {
		t.Errorf("requests = %d, a 401 must not be retried", len(transport.requests))
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	transport := &scriptedTransport{}
	c := NewClient(Config{
		BaseURL:    "https://api.example.com",
		Transport:  transport,
		MaxRetries: 2,
		RateLimit:  1000,
		RateBurst:  1000,
	})

	err := c.Get(context.Background(), "/v1/things", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(transport.requests) != 3 {
		t.Errorf("requests = %d, want initial try plus 2 retries", len(transport.requests))
	}
}

func TestRequestCarriesAuthAndContentType(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		response(http.StatusOK, ""),
	}}
	c := newTestClient(transport)

	if err := c.Post(context.Background(), "/v1/things", map[string]string{"a": "b"}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	req := transport.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if req.URL.String() != "https://api.example.com/v1/things" {
		t.Errorf("url = %s", req.URL)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		response(http.StatusServiceUnavailable, "down"),
	}}
	c := newTestClient(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Get(ctx, "/v1/things", nil, nil)
	if err == nil {
		t.Fatal("expected an error once the context expired")
	}
}
