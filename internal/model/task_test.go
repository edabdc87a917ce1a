package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTaskCompleteIdempotent(t *testing.T) {
	task := &Task{
		ID:     uuid.New(),
		Title:  "ship it",
		Status: TaskActive,
	}

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !task.Complete(first) {
		t.Fatal("first completion should report a transition")
	}
	if task.Status != TaskDone {
		t.Fatalf("status = %s, want done", task.Status)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(first) {
		t.Fatalf("CompletedAt = %v, want %v", task.CompletedAt, first)
	}

	later := first.Add(time.Hour)
	if task.Complete(later) {
		t.Error("second completion should be a no-op")
	}
	if !task.CompletedAt.Equal(first) {
		t.Errorf("second completion moved CompletedAt to %v", task.CompletedAt)
	}
}

func TestTaskOpen(t *testing.T) {
	task := &Task{Status: TaskActive}
	if !task.Open() {
		t.Error("active task should be open")
	}
	task.Status = TaskDone
	if task.Open() {
		t.Error("done task should not be open")
	}
	task.Status = TaskDeleted
	if task.Open() {
		t.Error("deleted task should not be open")
	}
}
