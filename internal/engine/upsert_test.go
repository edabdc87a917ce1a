package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/store"
)

func TestUpsertClassification(t *testing.T) {
	e, clock := newTestEngine(t)
	conn := insertTestConnection(t, e, uuid.New(), model.ProviderTracker)

	raw := source.RawItem{
		SourceID: "issue-1",
		Data: model.IssueNotificationData{
			Subject:    "panic on empty config",
			Repository: "acme/widgets",
			State:      "open",
		},
	}

	res := upsertInTx(t, e, conn, raw)
	if res.Op != Created {
		t.Fatalf("first upsert: %s, want created", res.Op)
	}
	if res.Item.ID == (uuid.UUID{}) {
		t.Fatal("created item has no id")
	}

	clock.Advance(time.Minute)
	res = upsertInTx(t, e, conn, raw)
	if res.Op != Untouched {
		t.Fatalf("identical payload: %s, want untouched", res.Op)
	}

	// A volatile field alone must not count as a change.
	readAt := clock.Now()
	withMarker := raw
	withMarker.Data = model.IssueNotificationData{
		Subject:    "panic on empty config",
		Repository: "acme/widgets",
		State:      "open",
		LastReadAt: &readAt,
	}
	res = upsertInTx(t, e, conn, withMarker)
	if res.Op != Untouched {
		t.Fatalf("volatile-only change: %s, want untouched", res.Op)
	}

	clock.Advance(time.Minute)
	closed := raw
	closed.Data = model.IssueNotificationData{
		Subject:    "panic on empty config",
		Repository: "acme/widgets",
		State:      "closed",
	}
	res = upsertInTx(t, e, conn, closed)
	if res.Op != Updated {
		t.Fatalf("content change: %s, want updated", res.Op)
	}
	if res.Old == nil {
		t.Fatal("updated upsert carries no old item")
	}
	if res.Old.Data.(model.IssueNotificationData).State != "open" {
		t.Error("old payload does not hold the previous state")
	}
	if res.Item.Data.(model.IssueNotificationData).State != "closed" {
		t.Error("new payload not stored")
	}
}

func TestUpsertCorruptItem(t *testing.T) {
	e, _ := newTestEngine(t)
	conn := insertTestConnection(t, e, uuid.New(), model.ProviderTracker)

	cases := []source.RawItem{
		{SourceID: "no-data"},
		{SourceID: "", Data: model.IssueNotificationData{Subject: "x"}},
	}
	for _, raw := range cases {
		err := e.Store.WithTx(context.Background(), func(tx store.Store) error {
			_, err := e.upsertItem(context.Background(), tx, raw, conn.UserID, conn.ID, e.now())
			return err
		})
		if !errors.Is(err, ErrCorruptItem) {
			t.Errorf("raw %+v: err = %v, want ErrCorruptItem", raw, err)
		}
	}
}

func TestUpsertResolvesReactionReference(t *testing.T) {
	e, _ := newTestEngine(t)
	conn := insertTestConnection(t, e, uuid.New(), model.ProviderChat)

	msg := upsertInTx(t, e, conn, source.RawItem{
		SourceID: "C1/1.2",
		Data:     model.SavedMessageData{ChannelID: "C1", MessageTS: "1.2", Text: "hi", State: model.SavedMessageActive},
	})

	reaction := upsertInTx(t, e, conn, source.RawItem{
		SourceID:           "C1/1.2/eyes",
		Data:               model.MessageReactionData{ChannelID: "C1", MessageTS: "1.2", Emoji: "eyes", State: model.ReactionAdded},
		SourceItemSourceID: "C1/1.2",
	})

	if reaction.Item.SourceItemID == nil {
		t.Fatal("reaction did not resolve its message reference")
	}
	if *reaction.Item.SourceItemID != msg.Item.ID {
		t.Errorf("reference = %s, want %s", reaction.Item.SourceItemID, msg.Item.ID)
	}
}

func TestUpsertMissingReferenceIsNotAnError(t *testing.T) {
	e, _ := newTestEngine(t)
	conn := insertTestConnection(t, e, uuid.New(), model.ProviderChat)

	reaction := upsertInTx(t, e, conn, source.RawItem{
		SourceID:           "C1/9.9/tada",
		Data:               model.MessageReactionData{ChannelID: "C1", MessageTS: "9.9", Emoji: "tada", State: model.ReactionAdded},
		SourceItemSourceID: "C1/9.9",
	})
	if reaction.Item.SourceItemID != nil {
		t.Error("reference should stay unset until the referent arrives")
	}
}
