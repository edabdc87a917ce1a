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

// SyncOutcome summarizes one sync cycle for one connection stream.
type SyncOutcome struct {
	ConnectionID uuid.UUID
	Stream       model.SyncStream

	Created   int
	Updated   int
	Untouched int
	Closed    int
	Skipped   int

	// Partial reports that the cycle could not vouch for a complete
	// listing and reconciliation was skipped.
	Partial bool

	// Status is the connection's health after the cycle.
	Status model.ConnectionStatus

	StartedAt  time.Time
	FinishedAt time.Time
}

// RunCycle executes one full sync cycle for a connection stream: drain
// the provider's listing, upsert and materialize each item in its own
// transaction, then reconcile staleness off the complete observed set.
//
// Provider and policy failures are recorded in the connection's health
// state and reflected in the outcome; the returned error is reserved
// for store failures the cycle could not even record.
func (e *Engine) RunCycle(ctx context.Context, connectionID uuid.UUID, stream model.SyncStream) (*SyncOutcome, error) {
	now := e.now()
	outcome := &SyncOutcome{
		ConnectionID: connectionID,
		Stream:       stream,
		StartedAt:    now,
	}

	conn, err := e.Store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %s not found", connectionID)
	}

	connector, err := e.Registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}
	if !streamSupported(connector, stream) {
		return nil, fmt.Errorf("provider %s does not serve stream %s", conn.Provider, stream)
	}

	st := conn.StreamState(stream)
	started := now
	st.LastSyncStartedAt = &started

	// A missing scope cannot heal on retry; fail the stream outright
	// so the user is told to re-authorize.
	if required := connector.RequiredScopes(stream); !conn.HasScopes(required) {
		msg := fmt.Sprintf("connection is missing required scopes %v", required)
		e.Logger.Warn("sync refused", "connection", conn.ID, "stream", stream, "err", msg)
		recordSyncFailure(conn, stream, msg, true, e.Config.FailingThreshold, now)
		return e.finishCycle(ctx, conn, outcome)
	}

	observed, token, syncErr := e.drainListing(ctx, conn, connector, stream, source.Cursor(st.Cursor), outcome)

	if syncErr == nil && !outcome.Partial {
		for _, kind := range connector.Kinds(stream) {
			err := e.Store.WithTx(ctx, func(tx store.Store) error {
				closed, err := e.reconcile(ctx, tx, conn.UserID, kind, observed[kind], true, e.now())
				outcome.Closed += closed
				return err
			})
			if err != nil {
				syncErr = err
				break
			}
		}
	}

	now = e.now()
	switch {
	case interrupted(syncErr):
		// A cancelled or timed-out cycle says nothing about the
		// provider; leave the failure streak and cursor alone.
		e.Logger.Info("sync cycle interrupted",
			"connection", conn.ID, "stream", stream, "err", syncErr)
	case syncErr != nil:
		e.Logger.Error("sync cycle failed",
			"connection", conn.ID, "stream", stream, "err", syncErr)
		recordSyncFailure(conn, stream, syncErr.Error(), source.IsPermanent(syncErr), e.Config.FailingThreshold, now)
	default:
		// A partial listing with no error is still a working
		// connection; the skipped reconciliation simply waits for the
		// next complete cycle.
		st.Cursor = string(token)
		recordSyncSuccess(conn, stream, now)
	}

	return e.finishCycle(ctx, conn, outcome)
}

// interrupted reports whether a drain stopped because its context
// ended rather than because the provider failed.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// drainListing pages through the provider listing from the stream's
// saved marker, upserting and materializing every item. It returns the
// per-kind observed source-id sets, the sync token to save for the
// next cycle, and the first error that stopped the drain. Corrupt
// items are skipped, not fatal.
func (e *Engine) drainListing(ctx context.Context, conn *model.IntegrationConnection, connector source.Connector, stream model.SyncStream, cursor source.Cursor, outcome *SyncOutcome) (map[model.ItemKind]map[string]bool, source.Cursor, error) {
	observed := make(map[model.ItemKind]map[string]bool)
	for _, kind := range connector.Kinds(stream) {
		observed[kind] = make(map[string]bool)
	}

	var token source.Cursor
	for {
		if err := ctx.Err(); err != nil {
			outcome.Partial = true
			return observed, token, err
		}

		page, err := connector.ListItems(ctx, stream, cursor)
		if err != nil {
			outcome.Partial = true
			return observed, token, err
		}
		if page.Partial {
			outcome.Partial = true
		}
		if page.SyncToken != "" {
			token = page.SyncToken
		}

		for _, raw := range page.Items {
			if raw.Data != nil {
				if set := observed[raw.Data.Kind()]; set != nil {
					set[raw.SourceID] = true
				}
			}

			err := e.processItem(ctx, conn, raw, outcome)
			if errors.Is(err, ErrCorruptItem) {
				outcome.Skipped++
				e.Logger.Warn("skipping corrupt item",
					"connection", conn.ID, "source_id", raw.SourceID, "err", err)
				continue
			}
			if err != nil {
				outcome.Partial = true
				return observed, token, err
			}
		}

		if page.NextCursor == "" {
			return observed, token, nil
		}
		cursor = page.NextCursor
	}
}

// processItem upserts one raw item and routes it to the right
// materializer in a single transaction, so a half-applied item never
// survives a crash.
func (e *Engine) processItem(ctx context.Context, conn *model.IntegrationConnection, raw source.RawItem, outcome *SyncOutcome) error {
	return e.Store.WithTx(ctx, func(tx store.Store) error {
		now := e.now()
		res, err := e.upsertItem(ctx, tx, raw, conn.UserID, conn.ID, now)
		if err != nil {
			return err
		}

		switch res.Op {
		case Created:
			outcome.Created++
		case Updated:
			outcome.Updated++
		default:
			outcome.Untouched++
		}

		switch {
		case conn.Provider == model.ProviderTaskManager:
			return e.syncTaskFromSink(ctx, tx, res, now)
		case res.Item.Data.Kind().Role() == model.RoleTask:
			return e.syncTaskFromSource(ctx, tx, res, now)
		default:
			return e.materializeNotification(ctx, tx, res, now)
		}
	})
}

// finishCycle persists the cycle stream's updated health state and
// stamps the outcome. Only the cycle's own stream columns are written,
// so a concurrent cycle of the connection's other stream keeps its
// counters. The write survives a cancelled cycle context, or an
// interrupted cycle would lose its bookkeeping.
func (e *Engine) finishCycle(ctx context.Context, conn *model.IntegrationConnection, outcome *SyncOutcome) (*SyncOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	conn.UpdatedAt = e.now()
	if err := e.Store.UpdateConnectionStream(ctx, conn, outcome.Stream); err != nil {
		return nil, err
	}
	outcome.Status = conn.Status
	outcome.FinishedAt = e.now()
	return outcome, nil
}

func streamSupported(connector source.Connector, stream model.SyncStream) bool {
	for _, s := range connector.Streams() {
		if s == stream {
			return true
		}
	}
	return false
}
