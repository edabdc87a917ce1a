package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/store"
)

// UpsertOp classifies what the upsert engine did with an incoming
// item.
type UpsertOp int

const (
	// Created: no stored item with the same source id existed; a new
	// record was inserted.
	Created UpsertOp = iota

	// Updated: the stored payload differed under normalized equality
	// and was overwritten.
	Updated

	// Untouched: the stored payload was identical; nothing was
	// written.
	Untouched
)

func (op UpsertOp) String() string {
	switch op {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "untouched"
	}
}

// UpsertResult carries the classification and both sides of an update
// so downstream materializers can diff them and skip work on
// Untouched.
type UpsertResult struct {
	Op UpsertOp

	// Item is the stored record after the upsert.
	Item *model.ThirdPartyItem

	// Old is the record before an Updated upsert; nil otherwise.
	Old *model.ThirdPartyItem
}

// ErrCorruptItem marks a raw item whose payload cannot be interpreted.
// The caller skips the single item and proceeds with the cycle.
var ErrCorruptItem = errors.New("corrupt item payload")

// upsertItem classifies one incoming item against stored state and
// applies at most one write. Re-running the same item in a retried
// cycle yields Untouched, which is what makes cycles idempotent.
func (e *Engine) upsertItem(ctx context.Context, tx store.Store, raw source.RawItem, userID, connectionID uuid.UUID, now time.Time) (*UpsertResult, error) {
	if raw.Data == nil || !raw.Data.Kind().Valid() {
		return nil, fmt.Errorf("item %q: %w", raw.SourceID, ErrCorruptItem)
	}
	if raw.SourceID == "" {
		return nil, fmt.Errorf("item with empty source id: %w", ErrCorruptItem)
	}

	kind := raw.Data.Kind()
	stored, err := tx.GetItemBySourceID(ctx, kind, connectionID, raw.SourceID)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		item := &model.ThirdPartyItem{
			ID:                      uuid.New(),
			SourceID:                raw.SourceID,
			UserID:                  userID,
			IntegrationConnectionID: connectionID,
			Data:                    raw.Data,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		if err := e.resolveSourceRef(ctx, tx, item, raw); err != nil {
			return nil, err
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return nil, err
		}
		return &UpsertResult{Op: Created, Item: item}, nil
	}

	incoming := &model.ThirdPartyItem{
		SourceID: raw.SourceID,
		Data:     raw.Data,
	}
	equal, err := stored.EqualNormalized(incoming)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorruptItem)
	}
	if equal {
		return &UpsertResult{Op: Untouched, Item: stored}, nil
	}

	old := *stored
	updated := *stored
	updated.Data = raw.Data
	updated.UpdatedAt = now
	if err := tx.UpdateItemData(ctx, &updated); err != nil {
		return nil, err
	}
	return &UpsertResult{Op: Updated, Item: &updated, Old: &old}, nil
}

// resolveSourceRef links a derived item (a reaction) to the item it
// annotates, when that item is already stored. A missing referent is
// not an error: the reference stays unset until the referent arrives.
func (e *Engine) resolveSourceRef(ctx context.Context, tx store.Store, item *model.ThirdPartyItem, raw source.RawItem) error {
	if raw.SourceItemSourceID == "" {
		return nil
	}
	refKind := referencedKind(item.Kind())
	if refKind == "" {
		return nil
	}

	ref, err := tx.GetItemBySourceID(ctx, refKind, item.IntegrationConnectionID, raw.SourceItemSourceID)
	if err != nil {
		return err
	}
	if ref != nil {
		id := ref.ID
		item.SourceItemID = &id
	}
	return nil
}

// referencedKind maps a derived kind to the kind of item it points at.
func referencedKind(kind model.ItemKind) model.ItemKind {
	if kind == model.ItemKindMessageReaction {
		return model.ItemKindSavedMessage
	}
	return ""
}
