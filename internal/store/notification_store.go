package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
)

// notificationRow is the persisted shape of a Notification.
type notificationRow struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	Title        string     `db:"title"`
	Status       string     `db:"status"`
	SourceItemID string     `db:"source_item_id"`
	Kind         string     `db:"kind"`
	TaskID       *string    `db:"task_id"`
	SnoozedUntil *time.Time `db:"snoozed_until"`
	LastReadAt   *time.Time `db:"last_read_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r *notificationRow) toModel() (*model.Notification, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing notification id %q: %w", r.ID, err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("parsing notification user id %q: %w", r.UserID, err)
	}
	sourceItemID, err := uuid.Parse(r.SourceItemID)
	if err != nil {
		return nil, fmt.Errorf("parsing notification item id %q: %w", r.SourceItemID, err)
	}

	n := &model.Notification{
		ID:           id,
		UserID:       userID,
		Title:        r.Title,
		Status:       model.NotificationStatus(r.Status),
		SourceItemID: sourceItemID,
		Kind:         model.ItemKind(r.Kind),
		SnoozedUntil: utcOrNil(r.SnoozedUntil),
		LastReadAt:   utcOrNil(r.LastReadAt),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.TaskID != nil {
		taskID, err := uuid.Parse(*r.TaskID)
		if err != nil {
			return nil, fmt.Errorf("parsing notification task id %q: %w", *r.TaskID, err)
		}
		n.TaskID = &taskID
	}
	return n, nil
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

const notificationColumns = `id, user_id, title, status,
	source_item_id, kind, task_id, snoozed_until, last_read_at,
	updated_at`

// GetNotificationBySourceItem returns the notification materialized
// from the given item, or (nil, nil).
func (s *SQLiteStore) GetNotificationBySourceItem(ctx context.Context, sourceItemID uuid.UUID) (*model.Notification, error) {
	var row notificationRow
	found, err := getOne(ctx, s.q, &row, `
		SELECT `+notificationColumns+`
		FROM notifications WHERE source_item_id = ?`,
		sourceItemID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("getting notification for item %s: %w", sourceItemID, err)
	}
	if !found {
		return nil, nil
	}
	return row.toModel()
}

// InsertNotification stores a new notification.
func (s *SQLiteStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	var taskID *string
	if n.TaskID != nil {
		id := n.TaskID.String()
		taskID = &id
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, title, status,
			source_item_id, kind, task_id, snoozed_until, last_read_at,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.UserID.String(), n.Title, string(n.Status),
		n.SourceItemID.String(), string(n.Kind), taskID,
		n.SnoozedUntil, n.LastReadAt, n.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}
	return nil
}

// UpdateNotification overwrites the mutable columns of a notification.
func (s *SQLiteStore) UpdateNotification(ctx context.Context, n *model.Notification) error {
	var taskID *string
	if n.TaskID != nil {
		id := n.TaskID.String()
		taskID = &id
	}

	_, err := s.q.ExecContext(ctx, `
		UPDATE notifications
		SET title = ?, status = ?, task_id = ?,
			snoozed_until = ?, last_read_at = ?, updated_at = ?
		WHERE id = ?`,
		n.Title, string(n.Status), taskID,
		n.SnoozedUntil, n.LastReadAt, n.UpdatedAt.UTC(),
		n.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating notification %s: %w", n.ID, err)
	}
	return nil
}

// ListOpenNotificationsForKind returns the Unread/Read notifications
// of a kind for a user, each with its item's provider-side id.
func (s *SQLiteStore) ListOpenNotificationsForKind(ctx context.Context, userID uuid.UUID, kind model.ItemKind) ([]OpenNotification, error) {
	type joinedRow struct {
		notificationRow
		ItemSourceID string `db:"item_source_id"`
	}

	var rows []joinedRow
	err := s.q.SelectContext(ctx, &rows, `
		SELECT n.id, n.user_id, n.title, n.status,
			n.source_item_id, n.kind, n.task_id, n.snoozed_until,
			n.last_read_at, n.updated_at,
			i.source_id AS item_source_id
		FROM notifications n
		JOIN third_party_items i ON i.id = n.source_item_id
		WHERE n.user_id = ? AND n.kind = ?
			AND n.status IN (?, ?)`,
		userID.String(), string(kind),
		string(model.NotificationUnread), string(model.NotificationRead),
	)
	if err != nil {
		return nil, fmt.Errorf("listing open %s notifications: %w", kind, err)
	}

	out := make([]OpenNotification, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, OpenNotification{Notification: *n, SourceID: rows[i].ItemSourceID})
	}
	return out, nil
}
