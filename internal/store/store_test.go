package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/store"
	"github.com/nhle/inboxsync/tests/testutil"
)

func insertConnection(t *testing.T, s store.Store, provider model.ProviderKind) *model.IntegrationConnection {
	t.Helper()
	conn := model.NewIntegrationConnection(uuid.New(), provider)
	if err := s.InsertConnection(context.Background(), conn); err != nil {
		t.Fatalf("inserting connection: %v", err)
	}
	return conn
}

func TestItemRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	conn := insertConnection(t, s, model.ProviderTracker)

	item := model.NewThirdPartyItem("issue-1", model.IssueNotificationData{
		Subject:    "flaky test",
		Repository: "acme/widgets",
		State:      "open",
	}, conn.UserID, conn.ID)

	if err := s.InsertItem(ctx, item); err != nil {
		t.Fatalf("inserting item: %v", err)
	}

	got, err := s.GetItemBySourceID(ctx, model.ItemKindIssueNotification, conn.ID, "issue-1")
	if err != nil {
		t.Fatalf("getting item: %v", err)
	}
	if got == nil {
		t.Fatal("item not found after insert")
	}
	if got.ID != item.ID {
		t.Errorf("id = %s, want %s", got.ID, item.ID)
	}
	data, ok := got.Data.(model.IssueNotificationData)
	if !ok {
		t.Fatalf("payload type = %T", got.Data)
	}
	if data.Subject != "flaky test" {
		t.Errorf("subject = %q", data.Subject)
	}

	missing, err := s.GetItemBySourceID(ctx, model.ItemKindIssueNotification, conn.ID, "issue-2")
	if err != nil {
		t.Fatalf("getting missing item: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for a missing item")
	}

	data.State = "closed"
	got.Data = data
	got.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	if err := s.UpdateItemData(ctx, got); err != nil {
		t.Fatalf("updating item data: %v", err)
	}
	reloaded, err := s.GetItemByID(ctx, item.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reloading item: %v", err)
	}
	if reloaded.Data.(model.IssueNotificationData).State != "closed" {
		t.Error("update did not persist")
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	conn := insertConnection(t, s, model.ProviderMail)

	item := model.NewThirdPartyItem("thread-1", model.MailThreadData{
		ThreadID: "thread-1",
		Subject:  "hello",
	}, conn.UserID, conn.ID)
	if err := s.InsertItem(ctx, item); err != nil {
		t.Fatalf("inserting item: %v", err)
	}

	n := &model.Notification{
		ID:           uuid.New(),
		UserID:       conn.UserID,
		Title:        "hello",
		Status:       model.NotificationUnread,
		SourceItemID: item.ID,
		Kind:         model.ItemKindMailThread,
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.InsertNotification(ctx, n); err != nil {
		t.Fatalf("inserting notification: %v", err)
	}

	got, err := s.GetNotificationBySourceItem(ctx, item.ID)
	if err != nil || got == nil {
		t.Fatalf("getting notification: %v", err)
	}
	if got.Status != model.NotificationUnread {
		t.Errorf("status = %s", got.Status)
	}

	open, err := s.ListOpenNotificationsForKind(ctx, conn.UserID, model.ItemKindMailThread)
	if err != nil {
		t.Fatalf("listing open notifications: %v", err)
	}
	if len(open) != 1 || open[0].SourceID != "thread-1" {
		t.Fatalf("open list = %+v, want one entry for thread-1", open)
	}

	got.Status = model.NotificationDeleted
	if err := s.UpdateNotification(ctx, got); err != nil {
		t.Fatalf("updating notification: %v", err)
	}
	open, err = s.ListOpenNotificationsForKind(ctx, conn.UserID, model.ItemKindMailThread)
	if err != nil {
		t.Fatalf("listing after delete: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("deleted notification still listed as open: %+v", open)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	conn := insertConnection(t, s, model.ProviderChat)

	item := model.NewThirdPartyItem("msg-1", model.SavedMessageData{
		Text:  "follow up",
		State: model.SavedMessageActive,
	}, conn.UserID, conn.ID)
	if err := s.InsertItem(ctx, item); err != nil {
		t.Fatalf("inserting item: %v", err)
	}

	task := &model.Task{
		ID:           uuid.New(),
		UserID:       conn.UserID,
		Title:        "follow up",
		Status:       model.TaskActive,
		SourceItemID: item.ID,
		Priority:     model.PriorityP3,
		Tags:         []string{"chat"},
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("inserting task: %v", err)
	}

	got, err := s.GetTaskBySourceItem(ctx, item.ID)
	if err != nil || got == nil {
		t.Fatalf("getting task: %v", err)
	}
	if got.Title != "follow up" || got.Priority != model.PriorityP3 {
		t.Errorf("task = %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "chat" {
		t.Errorf("tags = %v", got.Tags)
	}

	open, err := s.ListOpenTasksForKind(ctx, conn.UserID, model.ItemKindSavedMessage)
	if err != nil {
		t.Fatalf("listing open tasks: %v", err)
	}
	if len(open) != 1 || open[0].SourceID != "msg-1" {
		t.Fatalf("open tasks = %+v", open)
	}

	got.Complete(time.Now().UTC().Truncate(time.Second))
	if err := s.UpdateTask(ctx, got); err != nil {
		t.Fatalf("updating task: %v", err)
	}
	open, err = s.ListOpenTasksForKind(ctx, conn.UserID, model.ItemKindSavedMessage)
	if err != nil {
		t.Fatalf("listing after completion: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("done task still listed as open: %+v", open)
	}
}

func TestConnectionRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	conn := model.NewIntegrationConnection(uuid.New(), model.ProviderTaskManager)
	conn.RegisteredScopes = []string{"items:read", "items:write"}
	if err := s.InsertConnection(ctx, conn); err != nil {
		t.Fatalf("inserting connection: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	conn.Status = model.ConnectionValidated
	conn.Tasks.FailureCount = 2
	conn.Tasks.FailureMessage = "HTTP 503"
	conn.Tasks.LastSyncScheduledAt = &now
	conn.UpdatedAt = now
	if err := s.UpdateConnection(ctx, conn); err != nil {
		t.Fatalf("updating connection: %v", err)
	}

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil || got == nil {
		t.Fatalf("getting connection: %v", err)
	}
	if got.Status != model.ConnectionValidated {
		t.Errorf("status = %s", got.Status)
	}
	if got.Tasks.FailureCount != 2 || got.Tasks.FailureMessage != "HTTP 503" {
		t.Errorf("task stream state = %+v", got.Tasks)
	}
	if got.Notifications.FailureCount != 0 {
		t.Errorf("notification stream state leaked: %+v", got.Notifications)
	}
	if !got.HasScopes([]string{"items:read"}) {
		t.Error("scopes not persisted")
	}

	all, err := s.ListConnections(ctx)
	if err != nil {
		t.Fatalf("listing connections: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("connections = %d, want 1", len(all))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	conn := insertConnection(t, s, model.ProviderTracker)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Store) error {
		item := model.NewThirdPartyItem("issue-9", model.IssueNotificationData{
			Subject: "doomed", Repository: "acme/widgets", State: "open",
		}, conn.UserID, conn.ID)
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	got, err := s.GetItemBySourceID(ctx, model.ItemKindIssueNotification, conn.ID, "issue-9")
	if err != nil {
		t.Fatalf("checking rollback: %v", err)
	}
	if got != nil {
		t.Error("insert survived a rolled-back transaction")
	}
}

func TestWithTxCommits(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	conn := insertConnection(t, s, model.ProviderTracker)

	err := s.WithTx(ctx, func(tx store.Store) error {
		item := model.NewThirdPartyItem("issue-10", model.IssueNotificationData{
			Subject: "kept", Repository: "acme/widgets", State: "open",
		}, conn.UserID, conn.ID)
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := s.GetItemBySourceID(ctx, model.ItemKindIssueNotification, conn.ID, "issue-10")
	if err != nil || got == nil {
		t.Fatalf("committed item missing: %v", err)
	}
}

func TestUpdateConnectionStreamLeavesOtherStreamAlone(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	conn := insertConnection(t, s, model.ProviderTracker)

	now := time.Now().UTC().Truncate(time.Second)
	conn.Tasks.FailureCount = 3
	conn.Tasks.FailureMessage = "HTTP 503"
	conn.Tasks.LastSyncScheduledAt = &now
	conn.UpdatedAt = now
	if err := s.UpdateConnection(ctx, conn); err != nil {
		t.Fatalf("updating connection: %v", err)
	}

	// Mutate both streams in memory, then write only notifications.
	conn.Status = model.ConnectionValidated
	conn.Notifications.Cursor = "tok-9"
	conn.Notifications.LastSyncCompletedAt = &now
	conn.Tasks.FailureCount = 0
	conn.Tasks.FailureMessage = ""
	if err := s.UpdateConnectionStream(ctx, conn, model.StreamNotifications); err != nil {
		t.Fatalf("updating notifications stream: %v", err)
	}

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil || got == nil {
		t.Fatalf("getting connection: %v", err)
	}
	if got.Status != model.ConnectionValidated {
		t.Errorf("status = %s", got.Status)
	}
	if got.Notifications.Cursor != "tok-9" {
		t.Errorf("notifications cursor = %q", got.Notifications.Cursor)
	}
	if got.Notifications.LastSyncCompletedAt == nil {
		t.Error("notifications completion stamp not written")
	}
	if got.Tasks.FailureCount != 3 || got.Tasks.FailureMessage != "HTTP 503" {
		t.Errorf("task stream state clobbered: %+v", got.Tasks)
	}
	if got.Tasks.LastSyncScheduledAt == nil || !got.Tasks.LastSyncScheduledAt.Equal(now) {
		t.Errorf("task schedule stamp = %v, want %v", got.Tasks.LastSyncScheduledAt, now)
	}
}
