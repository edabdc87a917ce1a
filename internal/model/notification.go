package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationStatus is the lifecycle state of a feed entry.
// Deleted and Unsubscribed are terminal for user intent: a content
// refresh never resurrects them on its own.
type NotificationStatus string

const (
	NotificationUnread       NotificationStatus = "unread"
	NotificationRead         NotificationStatus = "read"
	NotificationDeleted      NotificationStatus = "deleted"
	NotificationUnsubscribed NotificationStatus = "unsubscribed"
)

// Valid reports whether s is a known notification status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationUnread, NotificationRead,
		NotificationDeleted, NotificationUnsubscribed:
		return true
	}
	return false
}

// Open reports whether the notification is still live in the feed.
func (s NotificationStatus) Open() bool {
	return s == NotificationUnread || s == NotificationRead
}

// Notification is a user-facing feed entry materialized from a
// third-party item. Never hard-deleted; its lifecycle moves through
// status transitions only.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID uuid.UUID `json:"id"`

	// UserID is the owning user.
	UserID uuid.UUID `json:"user_id"`

	// Title is the feed line shown to the user.
	Title string `json:"title"`

	// Status is the lifecycle state.
	Status NotificationStatus `json:"status"`

	// SourceItemID is the third-party item this notification was
	// materialized from. Exclusive: one notification per item.
	SourceItemID uuid.UUID `json:"source_item_id"`

	// Kind mirrors the source item's kind for per-kind policies.
	Kind ItemKind `json:"kind"`

	// TaskID is a weak back-reference to a linked task, if the user
	// converted this notification into one.
	TaskID *uuid.UUID `json:"task_id,omitempty"`

	// SnoozedUntil hides the notification from the feed until then.
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`

	// LastReadAt is when the user last read the notification.
	LastReadAt *time.Time `json:"last_read_at,omitempty"`

	// UpdatedAt tracks the last content or status change.
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationPatch carries a partial user-driven update.
type NotificationPatch struct {
	Status       *NotificationStatus `json:"status,omitempty"`
	SnoozedUntil *time.Time          `json:"snoozed_until,omitempty"`
	TaskID       *uuid.UUID          `json:"task_id,omitempty"`
}
