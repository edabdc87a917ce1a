package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemKind identifies the shape of a third-party item payload.
// The set is closed: adding a provider means adding a kind and a
// connector, never subclassing.
type ItemKind string

const (
	// ItemKindTaskItem is an item in the external task manager (the sink).
	ItemKindTaskItem ItemKind = "task_item"

	// ItemKindMailThread is a mail conversation thread.
	ItemKindMailThread ItemKind = "mail_thread"

	// ItemKindIssueNotification is a notification about an issue or
	// pull/merge request in an issue tracker.
	ItemKindIssueNotification ItemKind = "issue_notification"

	// ItemKindCalendarEvent is a calendar event invitation.
	ItemKindCalendarEvent ItemKind = "calendar_event"

	// ItemKindSavedMessage is a chat message the user saved for later.
	ItemKindSavedMessage ItemKind = "saved_message"

	// ItemKindMessageReaction is a reaction the user put on a chat
	// message; it references the message as its source item.
	ItemKindMessageReaction ItemKind = "message_reaction"
)

// ItemRole says what a kind materializes into when upserted.
type ItemRole int

const (
	// RoleNotification kinds produce a Notification entry in the feed.
	RoleNotification ItemRole = iota

	// RoleTask kinds produce a Task kept in sync with the sink.
	RoleTask
)

// Role returns the materialization role for the kind.
func (k ItemKind) Role() ItemRole {
	switch k {
	case ItemKindTaskItem, ItemKindSavedMessage, ItemKindMessageReaction:
		return RoleTask
	default:
		return RoleNotification
	}
}

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	switch k {
	case ItemKindTaskItem, ItemKindMailThread, ItemKindIssueNotification,
		ItemKindCalendarEvent, ItemKindSavedMessage, ItemKindMessageReaction:
		return true
	}
	return false
}

// ItemData is the payload side of the ThirdPartyItem tagged union.
// Each kind carries its own struct; equality between two payloads is
// decided on the normalized encoding, never on raw bytes.
type ItemData interface {
	// Kind returns the discriminator for this payload.
	Kind() ItemKind

	// Normalize returns a canonical JSON encoding of the payload with
	// volatile fields (etags, cursors, fetch timestamps) cleared, so
	// two fetches of an unchanged item normalize identically.
	Normalize() ([]byte, error)
}

// TaskItemData is the payload for an item living in the task manager.
type TaskItemData struct {
	// Content is the task title line.
	Content string `json:"content"`

	// Description is the free-form body.
	Description string `json:"description"`

	// Checked reports whether the item is completed in the sink.
	Checked bool `json:"checked"`

	// CompletedAt is when the item was completed, if it is.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Priority is the normalized priority, 1 (highest) to 4.
	Priority int `json:"priority"`

	// DueAt is the scheduled date, if any.
	DueAt *time.Time `json:"due_at,omitempty"`

	// ProjectID identifies the sink project holding the item.
	ProjectID string `json:"project_id"`

	// Labels are the sink-side tags on the item.
	Labels []string `json:"labels,omitempty"`

	// AddedAt is when the item was created in the sink.
	AddedAt time.Time `json:"added_at"`

	// SyncToken is the incremental-sync marker returned alongside the
	// item. Volatile: excluded from normalized equality.
	SyncToken string `json:"sync_token,omitempty"`
}

func (d TaskItemData) Kind() ItemKind { return ItemKindTaskItem }

func (d TaskItemData) Normalize() ([]byte, error) {
	c := d
	c.SyncToken = ""
	return json.Marshal(c)
}

// MailThreadData is the payload for a mail conversation thread.
type MailThreadData struct {
	// ThreadID is the provider-side thread identifier.
	ThreadID string `json:"thread_id"`

	// Subject is the thread subject line.
	Subject string `json:"subject"`

	// From is the sender of the most recent message.
	From string `json:"from"`

	// MessageIDs lists the RFC 5322 message ids in the thread, oldest
	// first. A new id appearing on an unsubscribed thread is the signal
	// that reopens it.
	MessageIDs []string `json:"message_ids"`

	// LastMessageAt is the delivery time of the newest message.
	LastMessageAt time.Time `json:"last_message_at"`

	// Unread reports whether the thread has unseen messages.
	Unread bool `json:"unread"`

	// Mailbox is the folder the thread was listed from. Volatile with
	// respect to equality: a server-side refile is not a content change.
	Mailbox string `json:"mailbox,omitempty"`
}

func (d MailThreadData) Kind() ItemKind { return ItemKindMailThread }

func (d MailThreadData) Normalize() ([]byte, error) {
	c := d
	c.Mailbox = ""
	return json.Marshal(c)
}

// IssueNotificationData is the payload for an issue-tracker notification.
type IssueNotificationData struct {
	// Subject is the issue or PR title.
	Subject string `json:"subject"`

	// Repository is the owning repository or team key.
	Repository string `json:"repository"`

	// Reason is the provider's reason code (assigned, mention, review).
	Reason string `json:"reason"`

	// State is the normalized state of the underlying issue
	// (open, closed, merged).
	State string `json:"state"`

	// URL links back to the issue in the tracker.
	URL string `json:"url"`

	// IssueUpdatedAt is the tracker-side last-modified time.
	IssueUpdatedAt time.Time `json:"issue_updated_at"`

	// LastReadAt is the provider's read marker. Volatile.
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

func (d IssueNotificationData) Kind() ItemKind { return ItemKindIssueNotification }

func (d IssueNotificationData) Normalize() ([]byte, error) {
	c := d
	c.LastReadAt = nil
	return json.Marshal(c)
}

// CalendarEventData is the payload for a calendar event invitation.
type CalendarEventData struct {
	Title     string    `json:"title"`
	Organizer string    `json:"organizer"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`

	// ResponseStatus is the user's RSVP (needsAction, accepted, declined).
	ResponseStatus string `json:"response_status"`

	// Etag is the provider's version tag. Volatile.
	Etag string `json:"etag,omitempty"`
}

func (d CalendarEventData) Kind() ItemKind { return ItemKindCalendarEvent }

func (d CalendarEventData) Normalize() ([]byte, error) {
	c := d
	c.Etag = ""
	return json.Marshal(c)
}

// SavedMessageState tracks whether the saved marker is still present.
type SavedMessageState string

const (
	SavedMessageActive  SavedMessageState = "active"
	SavedMessageRemoved SavedMessageState = "removed"
)

// SavedMessageData is the payload for a chat message saved for later.
type SavedMessageData struct {
	ChannelID string            `json:"channel_id"`
	MessageTS string            `json:"message_ts"`
	Text      string            `json:"text"`
	Author    string            `json:"author"`
	State     SavedMessageState `json:"state"`
}

func (d SavedMessageData) Kind() ItemKind { return ItemKindSavedMessage }

func (d SavedMessageData) Normalize() ([]byte, error) {
	return json.Marshal(d)
}

// ReactionState tracks whether the reaction is still present.
type ReactionState string

const (
	ReactionAdded   ReactionState = "added"
	ReactionRemoved ReactionState = "removed"
)

// MessageReactionData is the payload for a reaction on a chat message.
// The reacted-to message is carried as the item's SourceItemID
// reference, not inline.
type MessageReactionData struct {
	ChannelID string        `json:"channel_id"`
	MessageTS string        `json:"message_ts"`
	Emoji     string        `json:"emoji"`
	State     ReactionState `json:"state"`
}

func (d MessageReactionData) Kind() ItemKind { return ItemKindMessageReaction }

func (d MessageReactionData) Normalize() ([]byte, error) {
	return json.Marshal(d)
}

// ThirdPartyItem is the unit of synchronization: one provider-side
// entity normalized into the shared representation. (source_id, kind,
// integration_connection_id) is unique; the kind never changes across
// updates.
type ThirdPartyItem struct {
	// ID is the internal unique identifier.
	ID uuid.UUID `json:"id"`

	// SourceID is the item's identifier within its provider, unique
	// per (kind, connection).
	SourceID string `json:"source_id"`

	// UserID is the owning user.
	UserID uuid.UUID `json:"user_id"`

	// IntegrationConnectionID is the connection the item came through.
	IntegrationConnectionID uuid.UUID `json:"integration_connection_id"`

	// Data is the kind-specific payload.
	Data ItemData `json:"data"`

	// SourceItemID points at the item this one annotates (a reaction
	// points at its message). Non-exclusive: many items may reference
	// the same source item.
	SourceItemID *uuid.UUID `json:"source_item_id,omitempty"`

	// CreatedAt is when the item was first stored locally.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the stored payload last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewThirdPartyItem builds an item with a fresh id and second-precision
// timestamps.
func NewThirdPartyItem(sourceID string, data ItemData, userID, connectionID uuid.UUID) *ThirdPartyItem {
	now := time.Now().UTC().Truncate(time.Second)
	return &ThirdPartyItem{
		ID:                      uuid.New(),
		SourceID:                sourceID,
		UserID:                  userID,
		IntegrationConnectionID: connectionID,
		Data:                    data,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// Kind returns the payload discriminator.
func (i *ThirdPartyItem) Kind() ItemKind {
	if i.Data == nil {
		return ""
	}
	return i.Data.Kind()
}

// EqualNormalized reports whether two items carry the same logical
// content, ignoring volatile payload fields and local bookkeeping.
func (i *ThirdPartyItem) EqualNormalized(other *ThirdPartyItem) (bool, error) {
	if i.SourceID != other.SourceID || i.Kind() != other.Kind() {
		return false, nil
	}
	a, err := i.Data.Normalize()
	if err != nil {
		return false, fmt.Errorf("normalizing stored item %s: %w", i.SourceID, err)
	}
	b, err := other.Data.Normalize()
	if err != nil {
		return false, fmt.Errorf("normalizing incoming item %s: %w", other.SourceID, err)
	}
	return bytes.Equal(a, b), nil
}

// MarkedAsDone returns a copy of the item with its payload switched to
// the completed shape for its kind, used when a local completion has to
// be reflected before the next fetch confirms it.
func (i *ThirdPartyItem) MarkedAsDone(now time.Time) *ThirdPartyItem {
	c := *i
	switch d := i.Data.(type) {
	case TaskItemData:
		d.Checked = true
		t := now
		d.CompletedAt = &t
		c.Data = d
	case SavedMessageData:
		d.State = SavedMessageRemoved
		c.Data = d
	case MessageReactionData:
		d.State = ReactionRemoved
		c.Data = d
	case IssueNotificationData:
		d.State = "closed"
		c.Data = d
	default:
		return &c
	}
	c.UpdatedAt = now
	return &c
}

// dataEnvelope is the persisted form of the tagged union.
type dataEnvelope struct {
	Type    ItemKind        `json:"type"`
	Content json.RawMessage `json:"content"`
}

// EncodeItemData serializes a payload with its kind discriminator for
// storage.
func EncodeItemData(d ItemData) ([]byte, error) {
	content, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", d.Kind(), err)
	}
	return json.Marshal(dataEnvelope{Type: d.Kind(), Content: content})
}

// DecodeItemData deserializes a stored payload back into its concrete
// variant.
func DecodeItemData(raw []byte) (ItemData, error) {
	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding item data envelope: %w", err)
	}

	var (
		d   ItemData
		err error
	)
	switch env.Type {
	case ItemKindTaskItem:
		var v TaskItemData
		err = json.Unmarshal(env.Content, &v)
		d = v
	case ItemKindMailThread:
		var v MailThreadData
		err = json.Unmarshal(env.Content, &v)
		d = v
	case ItemKindIssueNotification:
		var v IssueNotificationData
		err = json.Unmarshal(env.Content, &v)
		d = v
	case ItemKindCalendarEvent:
		var v CalendarEventData
		err = json.Unmarshal(env.Content, &v)
		d = v
	case ItemKindSavedMessage:
		var v SavedMessageData
		err = json.Unmarshal(env.Content, &v)
		d = v
	case ItemKindMessageReaction:
		var v MessageReactionData
		err = json.Unmarshal(env.Content, &v)
		d = v
	default:
		return nil, fmt.Errorf("unknown item kind %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
	}
	return d, nil
}
