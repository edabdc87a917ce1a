package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/store"
)

// syncTaskFromSource handles the source→sink direction: an upsert of a
// task-eligible item from an originating provider (a saved message, a
// reaction). It creates or updates the local Task and mirrors the
// change into the task manager.
//
// Completion is idempotent and commutative: whichever side completes
// first wins, and the other side's completion event becomes a no-op.
// The current Task status is checked before any external write so the
// already-completed side is never called twice.
func (e *Engine) syncTaskFromSource(ctx context.Context, tx store.Store, res *UpsertResult, now time.Time) error {
	if res.Op == Untouched {
		return nil
	}

	task, err := tx.GetTaskBySourceItem(ctx, res.Item.ID)
	if err != nil {
		return err
	}

	if task == nil {
		return e.createTaskFromSource(ctx, tx, res.Item, now)
	}

	done := itemDone(res.Item.Data)
	switch {
	case done && task.Status == model.TaskDone:
		// Both sides agree; nothing to propagate.
		return nil

	case done:
		// Source completed first: finish the sink mirror, then the
		// local record.
		if err := e.completeSinkItem(ctx, tx, task); err != nil {
			return err
		}
		task.Complete(now)
		return tx.UpdateTask(ctx, task)

	case task.Status == model.TaskDone:
		// Source reopened an item we hold as done.
		if err := e.reopenSinkItem(ctx, tx, task); err != nil {
			return err
		}
		task.Status = model.TaskActive
		task.CompletedAt = nil
		task.UpdatedAt = now
		return tx.UpdateTask(ctx, task)

	default:
		// Non-completion update: last writer wins by timestamp. The
		// due date is never overwritten from the source after
		// creation.
		if !res.Item.UpdatedAt.After(task.UpdatedAt) {
			return nil
		}
		task.Title = titleFor(res.Item.Data)
		task.Priority = priorityFor(res.Item.Data)
		task.UpdatedAt = now
		if err := e.updateSinkItem(ctx, tx, task); err != nil {
			return err
		}
		return tx.UpdateTask(ctx, task)
	}
}

// createTaskFromSource builds a new Task for a source item and mirrors
// it into the task manager. The sink write happens before the local
// insert so a failed mirror aborts the transaction and the retry sees
// a clean slate.
func (e *Engine) createTaskFromSource(ctx context.Context, tx store.Store, item *model.ThirdPartyItem, now time.Time) error {
	task := &model.Task{
		ID:           uuid.New(),
		UserID:       item.UserID,
		Title:        titleFor(item.Data),
		Status:       model.TaskActive,
		SourceItemID: item.ID,
		Priority:     priorityFor(item.Data),
		DueAt:        dueAtFor(item.Data),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if itemDone(item.Data) {
		// Arrived already completed; record it done, no mirror.
		task.Complete(now)
		return tx.InsertTask(ctx, task)
	}

	sinkConn, err := e.sinkConnection(ctx, tx, item.UserID)
	if err != nil {
		return err
	}
	if sinkConn != nil && sinkConn.Connected() {
		sink, err := e.Registry.Sink()
		if err != nil {
			return err
		}

		task.Project = e.defaultProject(ctx, sink, sinkConn.ID)

		sinkSourceID, err := sink.CreateItem(ctx, task)
		if err != nil {
			return fmt.Errorf("mirroring task to sink: %w", err)
		}

		mirror := &model.ThirdPartyItem{
			ID:                      uuid.New(),
			SourceID:                sinkSourceID,
			UserID:                  item.UserID,
			IntegrationConnectionID: sinkConn.ID,
			Data: model.TaskItemData{
				Content:   task.Title,
				Priority:  task.Priority,
				DueAt:     task.DueAt,
				ProjectID: task.Project,
				AddedAt:   now,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertItem(ctx, mirror); err != nil {
			return err
		}
		mirrorID := mirror.ID
		task.SinkItemID = &mirrorID
	}

	return tx.InsertTask(ctx, task)
}

// syncTaskFromSink handles the sink→source direction: an upsert of a
// task-manager item. Completing a task in the task manager closes the
// originating item at its source.
func (e *Engine) syncTaskFromSink(ctx context.Context, tx store.Store, res *UpsertResult, now time.Time) error {
	if res.Op == Untouched {
		return nil
	}

	task, err := tx.GetTaskBySinkItem(ctx, res.Item.ID)
	if err != nil {
		return err
	}
	if task == nil {
		// Not a mirror: an item the user created directly in the task
		// manager. It is its own source and sink.
		task, err = tx.GetTaskBySourceItem(ctx, res.Item.ID)
		if err != nil {
			return err
		}
		if task == nil {
			return e.createTaskFromSinkItem(ctx, tx, res.Item, now)
		}
	}

	done := itemDone(res.Item.Data)
	switch {
	case done && task.Status == model.TaskDone:
		return nil

	case done:
		// Sink completed first: close the originating source item,
		// then the local record.
		if err := e.completeSourceItem(ctx, tx, task, res.Item.ID); err != nil {
			return err
		}
		task.Complete(now)
		return tx.UpdateTask(ctx, task)

	case task.Status == model.TaskDone:
		if err := e.reopenSourceItem(ctx, tx, task, res.Item.ID); err != nil {
			return err
		}
		task.Status = model.TaskActive
		task.CompletedAt = nil
		task.UpdatedAt = now
		return tx.UpdateTask(ctx, task)

	default:
		if !res.Item.UpdatedAt.After(task.UpdatedAt) {
			return nil
		}
		// The sink is where the user edits scheduling, so the due
		// date flows sink→local, unlike the source direction.
		task.Title = titleFor(res.Item.Data)
		task.Priority = priorityFor(res.Item.Data)
		task.DueAt = dueAtFor(res.Item.Data)
		if d, ok := res.Item.Data.(model.TaskItemData); ok {
			task.Body = d.Description
			task.Project = d.ProjectID
			task.Tags = d.Labels
		}
		task.UpdatedAt = now
		return tx.UpdateTask(ctx, task)
	}
}

// createTaskFromSinkItem materializes a task for an item that
// originated in the task manager itself.
func (e *Engine) createTaskFromSinkItem(ctx context.Context, tx store.Store, item *model.ThirdPartyItem, now time.Time) error {
	itemID := item.ID
	task := &model.Task{
		ID:           uuid.New(),
		UserID:       item.UserID,
		Title:        titleFor(item.Data),
		Status:       model.TaskActive,
		SourceItemID: item.ID,
		SinkItemID:   &itemID,
		Priority:     priorityFor(item.Data),
		DueAt:        dueAtFor(item.Data),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if d, ok := item.Data.(model.TaskItemData); ok {
		task.Body = d.Description
		task.Project = d.ProjectID
		task.Tags = d.Labels
	}
	if itemDone(item.Data) {
		task.Complete(now)
	}
	return tx.InsertTask(ctx, task)
}

// completeSinkItem asks the task manager to close a task's mirror, if
// one exists.
func (e *Engine) completeSinkItem(ctx context.Context, tx store.Store, task *model.Task) error {
	sourceID, err := e.sinkItemSourceID(ctx, tx, task)
	if err != nil || sourceID == "" {
		return err
	}
	sink, err := e.Registry.Sink()
	if err != nil {
		return err
	}
	return sink.CompleteItem(ctx, sourceID)
}

// reopenSinkItem asks the task manager to reopen a task's mirror.
func (e *Engine) reopenSinkItem(ctx context.Context, tx store.Store, task *model.Task) error {
	sourceID, err := e.sinkItemSourceID(ctx, tx, task)
	if err != nil || sourceID == "" {
		return err
	}
	sink, err := e.Registry.Sink()
	if err != nil {
		return err
	}
	return sink.ReopenItem(ctx, sourceID)
}

// updateSinkItem pushes a task's current fields to its mirror in the
// task manager. A task without a mirror has nothing to push.
func (e *Engine) updateSinkItem(ctx context.Context, tx store.Store, task *model.Task) error {
	sourceID, err := e.sinkItemSourceID(ctx, tx, task)
	if err != nil || sourceID == "" {
		return err
	}
	sink, err := e.Registry.Sink()
	if err != nil {
		return err
	}
	return sink.UpdateItem(ctx, sourceID, task)
}

func (e *Engine) sinkItemSourceID(ctx context.Context, tx store.Store, task *model.Task) (string, error) {
	if task.SinkItemID == nil {
		return "", nil
	}
	mirror, err := tx.GetItemByID(ctx, *task.SinkItemID)
	if err != nil || mirror == nil {
		return "", err
	}
	return mirror.SourceID, nil
}

// completeSourceItem closes a task's originating item at its source
// provider (remove the saved marker, close the issue).
func (e *Engine) completeSourceItem(ctx context.Context, tx store.Store, task *model.Task, sinkItemID uuid.UUID) error {
	if task.SourceItemID == sinkItemID {
		// Sink-native task; there is no second side to close.
		return nil
	}
	connector, srcItem, err := e.sourceConnectorFor(ctx, tx, task)
	if err != nil || connector == nil {
		return err
	}
	return connector.CompleteItem(ctx, srcItem.SourceID)
}

// reopenSourceItem reopens a task's originating item. Providers that
// cannot reopen (mail) report a permanent error, which is logged and
// swallowed: the local reopen still stands.
func (e *Engine) reopenSourceItem(ctx context.Context, tx store.Store, task *model.Task, sinkItemID uuid.UUID) error {
	if task.SourceItemID == sinkItemID {
		return nil
	}
	connector, srcItem, err := e.sourceConnectorFor(ctx, tx, task)
	if err != nil || connector == nil {
		return err
	}
	if err := connector.ReopenItem(ctx, srcItem.SourceID); err != nil {
		if source.IsPermanent(err) {
			e.Logger.Warn("source does not support reopen",
				"provider", connector.Provider(), "source_id", srcItem.SourceID, "err", err)
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) sourceConnectorFor(ctx context.Context, tx store.Store, task *model.Task) (source.Connector, *model.ThirdPartyItem, error) {
	srcItem, err := tx.GetItemByID(ctx, task.SourceItemID)
	if err != nil || srcItem == nil {
		return nil, nil, err
	}
	conn, err := tx.GetConnection(ctx, srcItem.IntegrationConnectionID)
	if err != nil || conn == nil {
		return nil, nil, err
	}
	connector, err := e.Registry.Get(conn.Provider)
	if err != nil {
		return nil, nil, err
	}
	return connector, srcItem, nil
}

// sinkConnection finds the user's task-manager connection, if any.
func (e *Engine) sinkConnection(ctx context.Context, tx store.Store, userID uuid.UUID) (*model.IntegrationConnection, error) {
	conns, err := tx.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].UserID == userID && conns[i].Provider == model.ProviderTaskManager {
			return &conns[i], nil
		}
	}
	return nil, nil
}

// defaultProject resolves the sink project new mirrors are filed
// under. Project listings are read-heavy and change rarely, so the
// lookup goes through the short-TTL cache.
func (e *Engine) defaultProject(ctx context.Context, sink source.SinkConnector, connectionID uuid.UUID) string {
	const query = "projects"

	if cached, ok := e.Cache.Get(connectionID, query); ok {
		if projects, ok := cached.([]source.Project); ok {
			return pickInbox(projects)
		}
	}

	projects, err := sink.Projects(ctx)
	if err != nil {
		e.Logger.Warn("listing sink projects", "err", err)
		return ""
	}
	e.Cache.Set(connectionID, query, projects)
	return pickInbox(projects)
}

func pickInbox(projects []source.Project) string {
	for _, p := range projects {
		if p.Name == "Inbox" {
			return p.ID
		}
	}
	if len(projects) > 0 {
		return projects[0].ID
	}
	return ""
}
