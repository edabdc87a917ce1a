package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a synchronized task.
type TaskStatus string

const (
	TaskActive  TaskStatus = "active"
	TaskDone    TaskStatus = "done"
	TaskDeleted TaskStatus = "deleted"
)

// Normalized priority constants, 1 is highest.
const (
	PriorityP1 = 1
	PriorityP2 = 2
	PriorityP3 = 3
	PriorityP4 = 4
)

// Task is a unit of work mirrored into the external task manager.
type Task struct {
	// ID is the internal unique identifier.
	ID uuid.UUID `json:"id"`

	// UserID is the owning user.
	UserID uuid.UUID `json:"user_id"`

	// Title is the task summary line.
	Title string `json:"title"`

	// Body is the full description text.
	Body string `json:"body"`

	// Status is the lifecycle state. Done implies CompletedAt is set.
	Status TaskStatus `json:"status"`

	// CompletedAt is when the task was completed, on either side.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// SourceItemID is the third-party item that caused this task to
	// exist. Exclusive.
	SourceItemID uuid.UUID `json:"source_item_id"`

	// SinkItemID is the item mirroring this task in the task manager.
	// Exclusive; nil until the first sink write succeeds.
	SinkItemID *uuid.UUID `json:"sink_item_id,omitempty"`

	// Priority is the normalized priority, 1 (highest) to 4.
	Priority int `json:"priority"`

	// DueAt is the scheduled date. Written once at creation and then
	// owned by the user; source updates never overwrite it.
	DueAt *time.Time `json:"due_at,omitempty"`

	// Project is the sink project the mirror lives in.
	Project string `json:"project"`

	// Tags are free-form labels carried to the sink.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the task was created locally.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt tracks the last field or status change.
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete transitions the task to Done at the given time. Idempotent:
// completing an already-Done task changes nothing and reports false.
func (t *Task) Complete(now time.Time) bool {
	if t.Status == TaskDone {
		return false
	}
	t.Status = TaskDone
	c := now
	t.CompletedAt = &c
	t.UpdatedAt = now
	return true
}

// Open reports whether the task is still live.
func (t *Task) Open() bool {
	return t.Status == TaskActive
}

// TaskPatch carries a partial user-driven update.
type TaskPatch struct {
	Status   *TaskStatus `json:"status,omitempty"`
	Priority *int        `json:"priority,omitempty"`
	DueAt    *time.Time  `json:"due_at,omitempty"`
	Project  *string     `json:"project,omitempty"`
}
