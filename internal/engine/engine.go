// Package engine implements the synchronization and reconciliation
// core: upsert classification, notification materialization,
// bidirectional task sync, staleness reconciliation, and connection
// health tracking.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/store"
)

// ReopenPolicy decides whether an update to an unsubscribed or deleted
// notification represents a genuinely new event that should reopen it.
// The default policy never reopens; kinds register their own.
type ReopenPolicy func(old, incoming model.ItemData) bool

// Engine wires the sync core together. Safe for concurrent use by the
// scheduler's workers: all mutable state lives in the store and in
// per-cycle contexts.
type Engine struct {
	Store    store.Store
	Registry *source.Registry
	Cache    *ProviderCache
	Logger   *slog.Logger
	Config   model.SyncConfig

	// Now is injectable for tests.
	Now func() time.Time

	reopenPolicies map[model.ItemKind]ReopenPolicy
}

// New creates an engine with the built-in per-kind reopen policies
// registered.
func New(s store.Store, registry *source.Registry, cache *ProviderCache, logger *slog.Logger, cfg model.SyncConfig) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		Store:    s,
		Registry: registry,
		Cache:    cache,
		Logger:   logger,
		Config:   cfg,
		Now:      time.Now,
		reopenPolicies: map[model.ItemKind]ReopenPolicy{
			model.ItemKindMailThread: mailThreadReopenPolicy,
		},
	}
	return e
}

// RegisterReopenPolicy overrides the reopen policy for a kind.
func (e *Engine) RegisterReopenPolicy(kind model.ItemKind, policy ReopenPolicy) {
	e.reopenPolicies[kind] = policy
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// mailThreadReopenPolicy reopens an unsubscribed mail thread only when
// the new payload carries message ids the old one did not: a new reply
// is a new event, a flag or metadata refresh is not.
func mailThreadReopenPolicy(old, incoming model.ItemData) bool {
	oldThread, ok := old.(model.MailThreadData)
	if !ok {
		return false
	}
	newThread, ok := incoming.(model.MailThreadData)
	if !ok {
		return false
	}

	known := make(map[string]bool, len(oldThread.MessageIDs))
	for _, id := range oldThread.MessageIDs {
		known[id] = true
	}
	for _, id := range newThread.MessageIDs {
		if !known[id] {
			return true
		}
	}
	return false
}

// titleFor projects a feed title out of an item payload. Rendering
// beyond the title line is not the engine's business.
func titleFor(data model.ItemData) string {
	switch d := data.(type) {
	case model.TaskItemData:
		return d.Content
	case model.MailThreadData:
		return d.Subject
	case model.IssueNotificationData:
		return fmt.Sprintf("%s: %s", d.Repository, d.Subject)
	case model.CalendarEventData:
		return d.Title
	case model.SavedMessageData:
		return d.Text
	case model.MessageReactionData:
		return fmt.Sprintf(":%s: reaction", d.Emoji)
	default:
		return ""
	}
}

// itemDone reports whether a payload represents a source-side
// completed state.
func itemDone(data model.ItemData) bool {
	switch d := data.(type) {
	case model.TaskItemData:
		return d.Checked
	case model.SavedMessageData:
		return d.State == model.SavedMessageRemoved
	case model.MessageReactionData:
		return d.State == model.ReactionRemoved
	case model.IssueNotificationData:
		return d.State == "closed" || d.State == "merged"
	default:
		return false
	}
}

// priorityFor maps a payload onto a normalized task priority.
func priorityFor(data model.ItemData) int {
	if d, ok := data.(model.TaskItemData); ok {
		return d.Priority
	}
	return model.PriorityP4
}

// dueAtFor extracts a due date from payloads that carry one.
func dueAtFor(data model.ItemData) *time.Time {
	if d, ok := data.(model.TaskItemData); ok {
		return d.DueAt
	}
	return nil
}
