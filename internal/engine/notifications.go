package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/store"
)

// materializeNotification turns a Created/Updated upsert into a feed
// entry. Untouched upserts are skipped outright.
//
// On update, user intent to silence wins: a Deleted or Unsubscribed
// notification keeps its status through content refreshes, unless the
// kind's reopen policy recognizes a genuinely new event.
func (e *Engine) materializeNotification(ctx context.Context, tx store.Store, res *UpsertResult, now time.Time) error {
	switch res.Op {
	case Untouched:
		return nil

	case Created:
		n := &model.Notification{
			ID:           uuid.New(),
			UserID:       res.Item.UserID,
			Title:        titleFor(res.Item.Data),
			Status:       model.NotificationUnread,
			SourceItemID: res.Item.ID,
			Kind:         res.Item.Kind(),
			UpdatedAt:    now,
		}
		return tx.InsertNotification(ctx, n)

	default: // Updated
		n, err := tx.GetNotificationBySourceItem(ctx, res.Item.ID)
		if err != nil {
			return err
		}
		if n == nil {
			// The item predates its notification (e.g. its role was
			// introduced by a migration); materialize it now.
			n = &model.Notification{
				ID:           uuid.New(),
				UserID:       res.Item.UserID,
				Title:        titleFor(res.Item.Data),
				Status:       model.NotificationUnread,
				SourceItemID: res.Item.ID,
				Kind:         res.Item.Kind(),
				UpdatedAt:    now,
			}
			return tx.InsertNotification(ctx, n)
		}

		n.Title = titleFor(res.Item.Data)
		n.UpdatedAt = now

		if !n.Status.Open() {
			if e.shouldReopen(res) {
				n.Status = model.NotificationUnread
				n.SnoozedUntil = nil
			}
			// Silenced and nothing new: refresh content only.
			return tx.UpdateNotification(ctx, n)
		}

		// A real content change un-snoozes: the user asked to be
		// reminded later, and later just arrived early.
		n.SnoozedUntil = nil
		return tx.UpdateNotification(ctx, n)
	}
}

// shouldReopen applies the per-kind reopen policy to an update.
func (e *Engine) shouldReopen(res *UpsertResult) bool {
	if res.Old == nil {
		return false
	}
	policy, ok := e.reopenPolicies[res.Item.Kind()]
	if !ok {
		return false
	}
	return policy(res.Old.Data, res.Item.Data)
}

// closedStatusFor is the per-kind close policy applied when an item
// vanishes from a complete listing.
func closedStatusFor(kind model.ItemKind) model.NotificationStatus {
	// Every current kind treats source-side disappearance as the
	// entry being dealt with elsewhere.
	return model.NotificationDeleted
}
