package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/store"
)

// ErrPartialListing is returned when a cycle cannot vouch that its
// observed-id set is a complete listing. No staleness closure happens
// off a partial listing: closing live items because a page went
// missing would be data loss from the user's point of view.
var ErrPartialListing = errors.New("listing incomplete; skipping reconciliation")

// reconcile closes open records of a kind whose source item was absent
// from the cycle's complete observed set. Sources rarely emit explicit
// delete events; absence from a full listing is the reliable signal.
//
// The caller must have drained every page before calling this. A
// cycle that saw a transient error mid-stream passes complete=false
// and gets ErrPartialListing back.
func (e *Engine) reconcile(ctx context.Context, tx store.Store, userID uuid.UUID, kind model.ItemKind, observed map[string]bool, complete bool, now time.Time) (int, error) {
	if !complete {
		return 0, ErrPartialListing
	}

	closed := 0

	if kind.Role() == model.RoleTask {
		open, err := tx.ListOpenTasksForKind(ctx, userID, kind)
		if err != nil {
			return 0, err
		}
		for i := range open {
			if observed[open[i].SourceID] {
				continue
			}
			task := open[i].Task
			task.Complete(now)
			if err := tx.UpdateTask(ctx, &task); err != nil {
				return closed, err
			}
			closed++
		}
		return closed, nil
	}

	open, err := tx.ListOpenNotificationsForKind(ctx, userID, kind)
	if err != nil {
		return 0, err
	}
	for i := range open {
		if observed[open[i].SourceID] {
			continue
		}
		n := open[i].Notification
		n.Status = closedStatusFor(kind)
		n.UpdatedAt = now
		if err := tx.UpdateNotification(ctx, &n); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}
