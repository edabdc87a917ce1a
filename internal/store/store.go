package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
)

// OpenNotification pairs an open notification with the source id of
// its underlying item, which is what the reconciler diffs against the
// observed set.
type OpenNotification struct {
	Notification model.Notification
	SourceID     string
}

// OpenTask pairs an open task with its item's source id.
type OpenTask struct {
	Task     model.Task
	SourceID string
}

// Store defines the persistence interface for third-party items,
// notifications, tasks, and integration connections.
type Store interface {
	// === Third-party items ===

	// GetItemBySourceID looks up the stored item for a provider-side
	// id. Returns (nil, nil) when no item exists.
	GetItemBySourceID(ctx context.Context, kind model.ItemKind, connectionID uuid.UUID, sourceID string) (*model.ThirdPartyItem, error)
	GetItemByID(ctx context.Context, id uuid.UUID) (*model.ThirdPartyItem, error)
	InsertItem(ctx context.Context, item *model.ThirdPartyItem) error
	// UpdateItemData overwrites the payload and bumps updated_at.
	UpdateItemData(ctx context.Context, item *model.ThirdPartyItem) error

	// === Notifications ===

	GetNotificationBySourceItem(ctx context.Context, sourceItemID uuid.UUID) (*model.Notification, error)
	InsertNotification(ctx context.Context, n *model.Notification) error
	UpdateNotification(ctx context.Context, n *model.Notification) error
	// ListOpenNotificationsForKind returns the Unread/Read
	// notifications of a kind for a user, joined with their items'
	// source ids.
	ListOpenNotificationsForKind(ctx context.Context, userID uuid.UUID, kind model.ItemKind) ([]OpenNotification, error)

	// === Tasks ===

	GetTaskBySourceItem(ctx context.Context, sourceItemID uuid.UUID) (*model.Task, error)
	GetTaskBySinkItem(ctx context.Context, sinkItemID uuid.UUID) (*model.Task, error)
	InsertTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, t *model.Task) error
	// ListOpenTasksForKind returns the Active tasks of a kind for a
	// user, joined with their items' source ids.
	ListOpenTasksForKind(ctx context.Context, userID uuid.UUID, kind model.ItemKind) ([]OpenTask, error)

	// === Integration connections ===

	GetConnection(ctx context.Context, id uuid.UUID) (*model.IntegrationConnection, error)
	ListConnections(ctx context.Context) ([]model.IntegrationConnection, error)
	InsertConnection(ctx context.Context, c *model.IntegrationConnection) error
	UpdateConnection(ctx context.Context, c *model.IntegrationConnection) error
	// UpdateConnectionStream writes the status and one stream's column
	// group only, so concurrent cycles of the other stream are not
	// clobbered by a full-row writeback.
	UpdateConnectionStream(ctx context.Context, c *model.IntegrationConnection, stream model.SyncStream) error

	// WithTx runs fn against a transaction-backed view of the store,
	// committing when fn returns nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
