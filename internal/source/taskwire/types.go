package taskwire

import "time"

// Item is the wire representation of a task-manager item.
type Item struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	Description string     `json:"description"`
	Checked     bool       `json:"checked"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Priority    int        `json:"priority"`
	Due         *time.Time `json:"due,omitempty"`
	ProjectID   string     `json:"project_id"`
	Labels      []string   `json:"labels,omitempty"`
	AddedAt     time.Time  `json:"added_at"`
}

// itemsPage is the wire response for an item listing.
type itemsPage struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	SyncToken  string `json:"sync_token,omitempty"`
}

// project is the wire representation of a project.
type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// projectsResponse is the wire response for a project listing.
type projectsResponse struct {
	Projects []project `json:"projects"`
}

// createItemRequest is the wire payload for item creation.
type createItemRequest struct {
	Content     string     `json:"content"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
}

// createItemResponse is the wire response for item creation.
type createItemResponse struct {
	ID string `json:"id"`
}

// updateItemRequest is the wire payload for item updates. Omitted
// fields are left untouched by the server.
type updateItemRequest struct {
	Content     *string  `json:"content,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}
