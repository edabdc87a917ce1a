// Package taskwire implements the connector for the external task
// manager: the sink side of bidirectional task sync. It is the one
// provider the engine both reads from and writes to.
package taskwire

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/source/httpx"
)

// Client wraps the task-manager REST API.
type Client struct {
	http *httpx.Client
}

// NewClient creates a client against the given API base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		http: httpx.NewClient(httpx.Config{
			BaseURL: baseURL,
			Token:   token,
		}),
	}
}

// classify maps a transport error onto the connector error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if statusErr, ok := httpx.AsStatusError(err); ok {
		if statusErr.AuthFailure() {
			return source.NewPermanent(model.ProviderTaskManager, op, "authentication rejected", err)
		}
		if statusErr.NotFound() {
			return source.NewPermanent(model.ProviderTaskManager, op, "not found", err)
		}
		return source.NewTransient(model.ProviderTaskManager, op, fmt.Sprintf("HTTP %d", statusErr.StatusCode), err)
	}
	// Timeouts and connection resets come through as plain transport
	// errors.
	return source.NewTransient(model.ProviderTaskManager, op, "request failed", err)
}

// ListItems fetches one page of items starting at cursor.
func (c *Client) ListItems(ctx context.Context, cursor string) (*itemsPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var page itemsPage
	if err := c.http.Get(ctx, "/v1/items", query, &page); err != nil {
		return nil, classify("list", err)
	}
	return &page, nil
}

// CreateItem creates an item and returns its id.
func (c *Client) CreateItem(ctx context.Context, req createItemRequest) (string, error) {
	var resp createItemResponse
	if err := c.http.Post(ctx, "/v1/items", req, &resp); err != nil {
		return "", classify("create", err)
	}
	return resp.ID, nil
}

// UpdateItem applies a partial update to an item.
func (c *Client) UpdateItem(ctx context.Context, id string, req updateItemRequest) error {
	return classify("update", c.http.Post(ctx, "/v1/items/"+id, req, nil))
}

// CloseItem marks an item completed.
func (c *Client) CloseItem(ctx context.Context, id string) error {
	return classify("close", c.http.Post(ctx, "/v1/items/"+id+"/close", nil, nil))
}

// ReopenItem undoes a completion.
func (c *Client) ReopenItem(ctx context.Context, id string) error {
	return classify("reopen", c.http.Post(ctx, "/v1/items/"+id+"/reopen", nil, nil))
}

// DeleteItem removes an item.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return classify("delete", c.http.Delete(ctx, "/v1/items/"+id))
}

// Projects lists all projects.
func (c *Client) Projects(ctx context.Context) ([]project, error) {
	var resp projectsResponse
	if err := c.http.Get(ctx, "/v1/projects", nil, &resp); err != nil {
		return nil, classify("projects", err)
	}
	return resp.Projects, nil
}
