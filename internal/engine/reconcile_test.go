package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/store"
)

func TestReconcileRefusesPartialListing(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Store.WithTx(context.Background(), func(tx store.Store) error {
		_, err := e.reconcile(context.Background(), tx, uuid.New(), model.ItemKindMailThread, nil, false, e.now())
		return err
	})
	if !errors.Is(err, ErrPartialListing) {
		t.Fatalf("err = %v, want ErrPartialListing", err)
	}
}

func TestReconcileClosesAbsentNotifications(t *testing.T) {
	e, _ := newTestEngine(t)
	conn := insertTestConnection(t, e, uuid.New(), model.ProviderMail)

	keep := materializeInTx(t, e, conn, mailRaw("<m1>"))

	gone := source.RawItem{
		SourceID: "thread-2",
		Data:     model.MailThreadData{ThreadID: "thread-2", Subject: "old thread", MessageIDs: []string{"<x>"}},
	}
	removed := materializeInTx(t, e, conn, gone)

	observed := map[string]bool{"thread-1": true}
	var closed int
	err := e.Store.WithTx(context.Background(), func(tx store.Store) error {
		var err error
		closed, err = e.reconcile(context.Background(), tx, conn.UserID, model.ItemKindMailThread, observed, true, e.now())
		return err
	})
	if err != nil {
		t.Fatalf("reconciling: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	ctx := context.Background()
	still, err := e.Store.GetNotificationBySourceItem(ctx, keep.SourceItemID)
	if err != nil || still == nil {
		t.Fatalf("loading kept notification: %v", err)
	}
	if still.Status != model.NotificationUnread {
		t.Errorf("observed notification closed: %s", still.Status)
	}

	closedN, err := e.Store.GetNotificationBySourceItem(ctx, removed.SourceItemID)
	if err != nil || closedN == nil {
		t.Fatalf("loading closed notification: %v", err)
	}
	if closedN.Status != model.NotificationDeleted {
		t.Errorf("absent notification = %s, want deleted", closedN.Status)
	}
}

func TestReconcileCompletesAbsentTasks(t *testing.T) {
	env := newTaskTestEnv(t)
	e := env.engine

	env.syncFromSource(t, savedMessage(model.SavedMessageActive))

	var closed int
	err := e.Store.WithTx(context.Background(), func(tx store.Store) error {
		var err error
		closed, err = e.reconcile(context.Background(), tx, env.userID, model.ItemKindSavedMessage, map[string]bool{}, true, e.now())
		return err
	})
	if err != nil {
		t.Fatalf("reconciling: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	// Second run sees the task already done; nothing further closes.
	err = e.Store.WithTx(context.Background(), func(tx store.Store) error {
		var err error
		closed, err = e.reconcile(context.Background(), tx, env.userID, model.ItemKindSavedMessage, map[string]bool{}, true, e.now())
		return err
	})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if closed != 0 {
		t.Errorf("second reconcile closed %d, want 0", closed)
	}
}
