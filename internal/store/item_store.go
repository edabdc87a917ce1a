package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
)

// itemRow is the persisted shape of a ThirdPartyItem.
type itemRow struct {
	ID                      string     `db:"id"`
	SourceID                string     `db:"source_id"`
	Kind                    string     `db:"kind"`
	UserID                  string     `db:"user_id"`
	IntegrationConnectionID string     `db:"integration_connection_id"`
	Data                    string     `db:"data"`
	SourceItemID            *string    `db:"source_item_id"`
	CreatedAt               time.Time  `db:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at"`
}

func (r *itemRow) toModel() (*model.ThirdPartyItem, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing item id %q: %w", r.ID, err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("parsing item user id %q: %w", r.UserID, err)
	}
	connectionID, err := uuid.Parse(r.IntegrationConnectionID)
	if err != nil {
		return nil, fmt.Errorf("parsing item connection id %q: %w", r.IntegrationConnectionID, err)
	}
	data, err := model.DecodeItemData([]byte(r.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding item %s: %w", r.ID, err)
	}

	item := &model.ThirdPartyItem{
		ID:                      id,
		SourceID:                r.SourceID,
		UserID:                  userID,
		IntegrationConnectionID: connectionID,
		Data:                    data,
		CreatedAt:               r.CreatedAt.UTC(),
		UpdatedAt:               r.UpdatedAt.UTC(),
	}
	if r.SourceItemID != nil {
		ref, err := uuid.Parse(*r.SourceItemID)
		if err != nil {
			return nil, fmt.Errorf("parsing item source ref %q: %w", *r.SourceItemID, err)
		}
		item.SourceItemID = &ref
	}
	return item, nil
}

const itemColumns = `id, source_id, kind, user_id,
	integration_connection_id, data, source_item_id,
	created_at, updated_at`

// GetItemBySourceID looks up the stored item for a provider-side id
// within one (kind, connection). Returns (nil, nil) when absent.
func (s *SQLiteStore) GetItemBySourceID(ctx context.Context, kind model.ItemKind, connectionID uuid.UUID, sourceID string) (*model.ThirdPartyItem, error) {
	var row itemRow
	found, err := getOne(ctx, s.q, &row, `
		SELECT `+itemColumns+`
		FROM third_party_items
		WHERE source_id = ? AND kind = ? AND integration_connection_id = ?`,
		sourceID, string(kind), connectionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("getting item %s/%s: %w", kind, sourceID, err)
	}
	if !found {
		return nil, nil
	}
	return row.toModel()
}

// GetItemByID looks up an item by internal id. Returns (nil, nil) when
// absent.
func (s *SQLiteStore) GetItemByID(ctx context.Context, id uuid.UUID) (*model.ThirdPartyItem, error) {
	var row itemRow
	found, err := getOne(ctx, s.q, &row, `
		SELECT `+itemColumns+`
		FROM third_party_items WHERE id = ?`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return row.toModel()
}

// InsertItem stores a new third-party item.
func (s *SQLiteStore) InsertItem(ctx context.Context, item *model.ThirdPartyItem) error {
	data, err := model.EncodeItemData(item.Data)
	if err != nil {
		return fmt.Errorf("encoding item %s: %w", item.SourceID, err)
	}

	var sourceRef *string
	if item.SourceItemID != nil {
		ref := item.SourceItemID.String()
		sourceRef = &ref
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO third_party_items (
			id, source_id, kind, user_id,
			integration_connection_id, data, source_item_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.SourceID, string(item.Kind()),
		item.UserID.String(), item.IntegrationConnectionID.String(),
		string(data), sourceRef,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting item %s/%s: %w", item.Kind(), item.SourceID, err)
	}
	return nil
}

// UpdateItemData overwrites the payload of a stored item and bumps its
// updated_at. Identity columns, including the kind, never change.
func (s *SQLiteStore) UpdateItemData(ctx context.Context, item *model.ThirdPartyItem) error {
	data, err := model.EncodeItemData(item.Data)
	if err != nil {
		return fmt.Errorf("encoding item %s: %w", item.SourceID, err)
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE third_party_items
		SET data = ?, updated_at = ?
		WHERE id = ?`,
		string(data), item.UpdatedAt.UTC(), item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", item.ID, err)
	}
	return nil
}
