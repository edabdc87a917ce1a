package taskwire

import (
	"context"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
)

// Adapter implements source.SinkConnector for the task manager.
type Adapter struct {
	client *Client
}

var _ source.SinkConnector = (*Adapter)(nil)

// NewAdapter creates a task-manager connector.
func NewAdapter(baseURL, token string) *Adapter {
	return &Adapter{client: NewClient(baseURL, token)}
}

// Provider returns the provider kind for the task manager.
func (a *Adapter) Provider() model.ProviderKind {
	return model.ProviderTaskManager
}

// Streams reports that the task manager feeds the tasks stream only.
func (a *Adapter) Streams() []model.SyncStream {
	return []model.SyncStream{model.StreamTasks}
}

// Kinds reports that the tasks stream yields TaskItem payloads.
func (a *Adapter) Kinds(stream model.SyncStream) []model.ItemKind {
	if stream == model.StreamTasks {
		return []model.ItemKind{model.ItemKindTaskItem}
	}
	return nil
}

// RequiredScopes returns the scopes needed for a stream.
func (a *Adapter) RequiredScopes(stream model.SyncStream) []string {
	if stream == model.StreamTasks {
		return []string{"items:read", "items:write"}
	}
	return nil
}

// ListItems fetches one page of task-manager items as TaskItem
// payloads. The API lists every open item plus items completed since
// the given cursor, so a fully drained listing is complete for
// reconciliation.
func (a *Adapter) ListItems(ctx context.Context, stream model.SyncStream, cursor source.Cursor) (*source.Page, error) {
	page, err := a.client.ListItems(ctx, string(cursor))
	if err != nil {
		return nil, err
	}

	items := make([]source.RawItem, 0, len(page.Items))
	for _, it := range page.Items {
		items = append(items, source.RawItem{
			SourceID: it.ID,
			Data: model.TaskItemData{
				Content:     it.Content,
				Description: it.Description,
				Checked:     it.Checked,
				CompletedAt: it.CompletedAt,
				Priority:    normalizePriority(it.Priority),
				DueAt:       it.Due,
				ProjectID:   it.ProjectID,
				Labels:      it.Labels,
				AddedAt:     it.AddedAt.UTC(),
			},
		})
	}

	return &source.Page{
		Items:      items,
		NextCursor: source.Cursor(page.NextCursor),
		SyncToken:  source.Cursor(page.SyncToken),
	}, nil
}

// CompleteItem marks the sink item done.
func (a *Adapter) CompleteItem(ctx context.Context, sourceID string) error {
	return a.client.CloseItem(ctx, sourceID)
}

// ReopenItem undoes a sink-side completion.
func (a *Adapter) ReopenItem(ctx context.Context, sourceID string) error {
	return a.client.ReopenItem(ctx, sourceID)
}

// CreateItem mirrors a task into the sink.
func (a *Adapter) CreateItem(ctx context.Context, task *model.Task) (string, error) {
	return a.client.CreateItem(ctx, createItemRequest{
		Content:     task.Title,
		Description: task.Body,
		Priority:    task.Priority,
		Due:         task.DueAt,
		ProjectID:   task.Project,
		Labels:      task.Tags,
	})
}

// UpdateItem pushes task field changes to the sink item. The due date
// is deliberately left out: after creation it belongs to the user.
func (a *Adapter) UpdateItem(ctx context.Context, sourceID string, task *model.Task) error {
	return a.client.UpdateItem(ctx, sourceID, updateItemRequest{
		Content:     &task.Title,
		Description: &task.Body,
		Priority:    &task.Priority,
		Labels:      task.Tags,
	})
}

// DeleteItem removes the sink item.
func (a *Adapter) DeleteItem(ctx context.Context, sourceID string) error {
	return a.client.DeleteItem(ctx, sourceID)
}

// Projects lists the sink projects.
func (a *Adapter) Projects(ctx context.Context) ([]source.Project, error) {
	wire, err := a.client.Projects(ctx)
	if err != nil {
		return nil, err
	}
	projects := make([]source.Project, 0, len(wire))
	for _, p := range wire {
		projects = append(projects, source.Project{ID: p.ID, Name: p.Name})
	}
	return projects, nil
}

// normalizePriority clamps provider priorities into P1..P4.
func normalizePriority(p int) int {
	switch {
	case p < model.PriorityP1:
		return model.PriorityP1
	case p > model.PriorityP4:
		return model.PriorityP4
	default:
		return p
	}
}
