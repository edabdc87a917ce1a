package model

import (
	"time"

	"github.com/google/uuid"
)

// ProviderKind identifies which provider a connection talks to.
type ProviderKind string

const (
	// ProviderTaskManager is the external task manager (the sink).
	ProviderTaskManager ProviderKind = "task_manager"

	// ProviderMail is the IMAP mail provider.
	ProviderMail ProviderKind = "mail"

	// ProviderTracker is the issue tracker.
	ProviderTracker ProviderKind = "tracker"

	// ProviderChat is the chat workspace (saved messages, reactions).
	ProviderChat ProviderKind = "chat"

	// ProviderCalendar is the calendar provider.
	ProviderCalendar ProviderKind = "calendar"
)

// SyncStream distinguishes the two independent sync pipelines a
// connection can serve. Health is tracked separately per stream
// because a connection may work for one and be broken for the other.
type SyncStream string

const (
	StreamNotifications SyncStream = "notifications"
	StreamTasks         SyncStream = "tasks"
)

// ConnectionStatus is the health state of a connection.
type ConnectionStatus string

const (
	// ConnectionCreated means the OAuth handshake finished but no sync
	// has succeeded yet.
	ConnectionCreated ConnectionStatus = "created"

	// ConnectionValidated means at least one sync succeeded and the
	// last cycle did not fail permanently.
	ConnectionValidated ConnectionStatus = "validated"

	// ConnectionFailing means the connection needs user attention.
	ConnectionFailing ConnectionStatus = "failing"
)

// StreamState is the per-stream sync bookkeeping for a connection.
type StreamState struct {
	// FailureCount is the consecutive transient-failure streak since
	// the last success.
	FailureCount int `json:"failure_count"`

	// FirstFailedAt is when the current streak started; nil outside a
	// streak. Drives backoff age computation.
	FirstFailedAt *time.Time `json:"first_failed_at,omitempty"`

	// FailureMessage is the last failure, surfaced to the user.
	FailureMessage string `json:"failure_message,omitempty"`

	// Cursor is the provider pagination cursor saved between cycles.
	Cursor string `json:"cursor,omitempty"`

	LastSyncScheduledAt *time.Time `json:"last_sync_scheduled_at,omitempty"`
	LastSyncStartedAt   *time.Time `json:"last_sync_started_at,omitempty"`
	LastSyncCompletedAt *time.Time `json:"last_sync_completed_at,omitempty"`
}

// IntegrationConnection is one user's link to one provider.
type IntegrationConnection struct {
	// ID is the internal unique identifier.
	ID uuid.UUID `json:"id"`

	// UserID is the owning user.
	UserID uuid.UUID `json:"user_id"`

	// Provider identifies the provider this connection talks to.
	Provider ProviderKind `json:"provider"`

	// Status is the health state, driven by sync cycle outcomes.
	Status ConnectionStatus `json:"status"`

	// RegisteredScopes are the OAuth scopes granted at handshake time.
	RegisteredScopes []string `json:"registered_oauth_scopes,omitempty"`

	// Notifications and Tasks hold the independent per-stream state.
	Notifications StreamState `json:"notifications"`
	Tasks         StreamState `json:"tasks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewIntegrationConnection builds a Created connection for a user.
func NewIntegrationConnection(userID uuid.UUID, provider ProviderKind) *IntegrationConnection {
	now := time.Now().UTC().Truncate(time.Second)
	return &IntegrationConnection{
		ID:        uuid.New(),
		UserID:    userID,
		Provider:  provider,
		Status:    ConnectionCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StreamState returns the mutable state for the given stream.
func (c *IntegrationConnection) StreamState(stream SyncStream) *StreamState {
	if stream == StreamTasks {
		return &c.Tasks
	}
	return &c.Notifications
}

// Connected reports whether the connection is healthy.
func (c *IntegrationConnection) Connected() bool {
	return c.Status == ConnectionValidated
}

// HasScopes reports whether every required scope was granted.
func (c *IntegrationConnection) HasScopes(required []string) bool {
	granted := make(map[string]bool, len(c.RegisteredScopes))
	for _, s := range c.RegisteredScopes {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}
