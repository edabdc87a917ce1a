package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
)

// connectionRow is the persisted shape of an IntegrationConnection.
// The two streams' bookkeeping lives in parallel column groups.
type connectionRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	Provider         string    `db:"provider"`
	Status           string    `db:"status"`
	RegisteredScopes string    `db:"registered_scopes"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`

	NotifFailureCount    int        `db:"notif_failure_count"`
	NotifFirstFailedAt   *time.Time `db:"notif_first_failed_at"`
	NotifFailureMessage  string     `db:"notif_failure_message"`
	NotifCursor          string     `db:"notif_cursor"`
	NotifLastScheduledAt *time.Time `db:"notif_last_scheduled_at"`
	NotifLastStartedAt   *time.Time `db:"notif_last_started_at"`
	NotifLastCompletedAt *time.Time `db:"notif_last_completed_at"`

	TaskFailureCount    int        `db:"task_failure_count"`
	TaskFirstFailedAt   *time.Time `db:"task_first_failed_at"`
	TaskFailureMessage  string     `db:"task_failure_message"`
	TaskCursor          string     `db:"task_cursor"`
	TaskLastScheduledAt *time.Time `db:"task_last_scheduled_at"`
	TaskLastStartedAt   *time.Time `db:"task_last_started_at"`
	TaskLastCompletedAt *time.Time `db:"task_last_completed_at"`
}

func (r *connectionRow) toModel() (*model.IntegrationConnection, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing connection id %q: %w", r.ID, err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("parsing connection user id %q: %w", r.UserID, err)
	}

	var scopes []string
	if r.RegisteredScopes != "" {
		if err := json.Unmarshal([]byte(r.RegisteredScopes), &scopes); err != nil {
			return nil, fmt.Errorf("decoding scopes for connection %s: %w", r.ID, err)
		}
	}

	return &model.IntegrationConnection{
		ID:               id,
		UserID:           userID,
		Provider:         model.ProviderKind(r.Provider),
		Status:           model.ConnectionStatus(r.Status),
		RegisteredScopes: scopes,
		Notifications: model.StreamState{
			FailureCount:        r.NotifFailureCount,
			FirstFailedAt:       utcOrNil(r.NotifFirstFailedAt),
			FailureMessage:      r.NotifFailureMessage,
			Cursor:              r.NotifCursor,
			LastSyncScheduledAt: utcOrNil(r.NotifLastScheduledAt),
			LastSyncStartedAt:   utcOrNil(r.NotifLastStartedAt),
			LastSyncCompletedAt: utcOrNil(r.NotifLastCompletedAt),
		},
		Tasks: model.StreamState{
			FailureCount:        r.TaskFailureCount,
			FirstFailedAt:       utcOrNil(r.TaskFirstFailedAt),
			FailureMessage:      r.TaskFailureMessage,
			Cursor:              r.TaskCursor,
			LastSyncScheduledAt: utcOrNil(r.TaskLastScheduledAt),
			LastSyncStartedAt:   utcOrNil(r.TaskLastStartedAt),
			LastSyncCompletedAt: utcOrNil(r.TaskLastCompletedAt),
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

const connectionColumns = `id, user_id, provider, status,
	registered_scopes,
	notif_failure_count, notif_first_failed_at, notif_failure_message,
	notif_cursor, notif_last_scheduled_at, notif_last_started_at,
	notif_last_completed_at,
	task_failure_count, task_first_failed_at, task_failure_message,
	task_cursor, task_last_scheduled_at, task_last_started_at,
	task_last_completed_at,
	created_at, updated_at`

// GetConnection looks up a connection by id. Returns (nil, nil) when
// absent.
func (s *SQLiteStore) GetConnection(ctx context.Context, id uuid.UUID) (*model.IntegrationConnection, error) {
	var row connectionRow
	found, err := getOne(ctx, s.q, &row,
		`SELECT `+connectionColumns+` FROM integration_connections WHERE id = ?`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("getting connection %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return row.toModel()
}

// ListConnections returns all connections.
func (s *SQLiteStore) ListConnections(ctx context.Context) ([]model.IntegrationConnection, error) {
	var rows []connectionRow
	err := s.q.SelectContext(ctx, &rows,
		`SELECT `+connectionColumns+` FROM integration_connections ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	out := make([]model.IntegrationConnection, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// InsertConnection stores a new connection.
func (s *SQLiteStore) InsertConnection(ctx context.Context, c *model.IntegrationConnection) error {
	scopes, err := json.Marshal(c.RegisteredScopes)
	if err != nil {
		return fmt.Errorf("encoding scopes for connection %s: %w", c.ID, err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO integration_connections (
			id, user_id, provider, status, registered_scopes,
			notif_failure_count, notif_first_failed_at,
			notif_failure_message, notif_cursor,
			notif_last_scheduled_at, notif_last_started_at,
			notif_last_completed_at,
			task_failure_count, task_first_failed_at,
			task_failure_message, task_cursor,
			task_last_scheduled_at, task_last_started_at,
			task_last_completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), string(c.Provider),
		string(c.Status), string(scopes),
		c.Notifications.FailureCount, c.Notifications.FirstFailedAt,
		c.Notifications.FailureMessage, c.Notifications.Cursor,
		c.Notifications.LastSyncScheduledAt, c.Notifications.LastSyncStartedAt,
		c.Notifications.LastSyncCompletedAt,
		c.Tasks.FailureCount, c.Tasks.FirstFailedAt,
		c.Tasks.FailureMessage, c.Tasks.Cursor,
		c.Tasks.LastSyncScheduledAt, c.Tasks.LastSyncStartedAt,
		c.Tasks.LastSyncCompletedAt,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting connection %s: %w", c.ID, err)
	}
	return nil
}

// UpdateConnectionStream overwrites the status and one stream's column
// group of a connection, leaving the other stream's bookkeeping alone.
func (s *SQLiteStore) UpdateConnectionStream(ctx context.Context, c *model.IntegrationConnection, stream model.SyncStream) error {
	prefix := "notif"
	st := &c.Notifications
	if stream == model.StreamTasks {
		prefix = "task"
		st = &c.Tasks
	}

	_, err := s.q.ExecContext(ctx, `
		UPDATE integration_connections
		SET status = ?,
			`+prefix+`_failure_count = ?, `+prefix+`_first_failed_at = ?,
			`+prefix+`_failure_message = ?, `+prefix+`_cursor = ?,
			`+prefix+`_last_scheduled_at = ?, `+prefix+`_last_started_at = ?,
			`+prefix+`_last_completed_at = ?,
			updated_at = ?
		WHERE id = ?`,
		string(c.Status),
		st.FailureCount, st.FirstFailedAt,
		st.FailureMessage, st.Cursor,
		st.LastSyncScheduledAt, st.LastSyncStartedAt,
		st.LastSyncCompletedAt,
		c.UpdatedAt.UTC(), c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating connection %s %s stream: %w", c.ID, stream, err)
	}
	return nil
}

// UpdateConnection overwrites the mutable columns of a connection.
func (s *SQLiteStore) UpdateConnection(ctx context.Context, c *model.IntegrationConnection) error {
	scopes, err := json.Marshal(c.RegisteredScopes)
	if err != nil {
		return fmt.Errorf("encoding scopes for connection %s: %w", c.ID, err)
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE integration_connections
		SET status = ?, registered_scopes = ?,
			notif_failure_count = ?, notif_first_failed_at = ?,
			notif_failure_message = ?, notif_cursor = ?,
			notif_last_scheduled_at = ?, notif_last_started_at = ?,
			notif_last_completed_at = ?,
			task_failure_count = ?, task_first_failed_at = ?,
			task_failure_message = ?, task_cursor = ?,
			task_last_scheduled_at = ?, task_last_started_at = ?,
			task_last_completed_at = ?,
			updated_at = ?
		WHERE id = ?`,
		string(c.Status), string(scopes),
		c.Notifications.FailureCount, c.Notifications.FirstFailedAt,
		c.Notifications.FailureMessage, c.Notifications.Cursor,
		c.Notifications.LastSyncScheduledAt, c.Notifications.LastSyncStartedAt,
		c.Notifications.LastSyncCompletedAt,
		c.Tasks.FailureCount, c.Tasks.FirstFailedAt,
		c.Tasks.FailureMessage, c.Tasks.Cursor,
		c.Tasks.LastSyncScheduledAt, c.Tasks.LastSyncStartedAt,
		c.Tasks.LastSyncCompletedAt,
		time.Now().UTC(), c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating connection %s: %w", c.ID, err)
	}
	return nil
}
