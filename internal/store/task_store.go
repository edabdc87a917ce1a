package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
)

// taskRow is the persisted shape of a Task.
type taskRow struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	Title        string     `db:"title"`
	Body         string     `db:"body"`
	Status       string     `db:"status"`
	CompletedAt  *time.Time `db:"completed_at"`
	SourceItemID string     `db:"source_item_id"`
	SinkItemID   *string    `db:"sink_item_id"`
	Priority     int        `db:"priority"`
	DueAt        *time.Time `db:"due_at"`
	Project      string     `db:"project"`
	Tags         string     `db:"tags"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r *taskRow) toModel() (*model.Task, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing task id %q: %w", r.ID, err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("parsing task user id %q: %w", r.UserID, err)
	}
	sourceItemID, err := uuid.Parse(r.SourceItemID)
	if err != nil {
		return nil, fmt.Errorf("parsing task item id %q: %w", r.SourceItemID, err)
	}

	var tags []string
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return nil, fmt.Errorf("decoding tags for task %s: %w", r.ID, err)
		}
	}

	t := &model.Task{
		ID:           id,
		UserID:       userID,
		Title:        r.Title,
		Body:         r.Body,
		Status:       model.TaskStatus(r.Status),
		CompletedAt:  utcOrNil(r.CompletedAt),
		SourceItemID: sourceItemID,
		Priority:     r.Priority,
		DueAt:        utcOrNil(r.DueAt),
		Project:      r.Project,
		Tags:         tags,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.SinkItemID != nil {
		sinkID, err := uuid.Parse(*r.SinkItemID)
		if err != nil {
			return nil, fmt.Errorf("parsing task sink id %q: %w", *r.SinkItemID, err)
		}
		t.SinkItemID = &sinkID
	}
	return t, nil
}

const taskColumns = `id, user_id, title, body, status, completed_at,
	source_item_id, sink_item_id, priority, due_at, project, tags,
	created_at, updated_at`

// GetTaskBySourceItem returns the task created from the given item, or
// (nil, nil).
func (s *SQLiteStore) GetTaskBySourceItem(ctx context.Context, sourceItemID uuid.UUID) (*model.Task, error) {
	return s.getTaskBy(ctx, "source_item_id", sourceItemID)
}

// GetTaskBySinkItem returns the task mirrored by the given sink item,
// or (nil, nil).
func (s *SQLiteStore) GetTaskBySinkItem(ctx context.Context, sinkItemID uuid.UUID) (*model.Task, error) {
	return s.getTaskBy(ctx, "sink_item_id", sinkItemID)
}

func (s *SQLiteStore) getTaskBy(ctx context.Context, column string, itemID uuid.UUID) (*model.Task, error) {
	var row taskRow
	found, err := getOne(ctx, s.q, &row,
		`SELECT `+taskColumns+` FROM tasks WHERE `+column+` = ?`,
		itemID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("getting task by %s %s: %w", column, itemID, err)
	}
	if !found {
		return nil, nil
	}
	return row.toModel()
}

// InsertTask stores a new task.
func (s *SQLiteStore) InsertTask(ctx context.Context, t *model.Task) error {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for task %s: %w", t.ID, err)
	}

	var sinkID *string
	if t.SinkItemID != nil {
		id := t.SinkItemID.String()
		sinkID = &id
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO tasks (
			id, user_id, title, body, status, completed_at,
			source_item_id, sink_item_id, priority, due_at, project, tags,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.UserID.String(), t.Title, t.Body,
		string(t.Status), t.CompletedAt,
		t.SourceItemID.String(), sinkID, t.Priority, t.DueAt,
		t.Project, string(tags),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTask overwrites the mutable columns of a task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *model.Task) error {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for task %s: %w", t.ID, err)
	}

	var sinkID *string
	if t.SinkItemID != nil {
		id := t.SinkItemID.String()
		sinkID = &id
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, body = ?, status = ?, completed_at = ?,
			sink_item_id = ?, priority = ?, due_at = ?, project = ?,
			tags = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Body, string(t.Status), t.CompletedAt,
		sinkID, t.Priority, t.DueAt, t.Project,
		string(tags), t.UpdatedAt.UTC(),
		t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	return nil
}

// ListOpenTasksForKind returns the Active tasks of a kind for a user,
// each with its item's provider-side id.
func (s *SQLiteStore) ListOpenTasksForKind(ctx context.Context, userID uuid.UUID, kind model.ItemKind) ([]OpenTask, error) {
	type joinedRow struct {
		taskRow
		ItemSourceID string `db:"item_source_id"`
	}

	var rows []joinedRow
	err := s.q.SelectContext(ctx, &rows, `
		SELECT t.id, t.user_id, t.title, t.body, t.status,
			t.completed_at, t.source_item_id, t.sink_item_id,
			t.priority, t.due_at, t.project, t.tags,
			t.created_at, t.updated_at,
			i.source_id AS item_source_id
		FROM tasks t
		JOIN third_party_items i ON i.id = t.source_item_id
		WHERE t.user_id = ? AND i.kind = ? AND t.status = ?`,
		userID.String(), string(kind), string(model.TaskActive),
	)
	if err != nil {
		return nil, fmt.Errorf("listing open %s tasks: %w", kind, err)
	}

	out := make([]OpenTask, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, OpenTask{Task: *t, SourceID: rows[i].ItemSourceID})
	}
	return out, nil
}
