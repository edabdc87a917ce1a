package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/inboxsync/internal/model"
)

// ErrorClass splits connector failures into the two categories the
// health tracker cares about.
type ErrorClass int

const (
	// Transient failures (rate limit, timeout, 5xx) are retried on the
	// next scheduled cycle and feed the failure streak.
	Transient ErrorClass = iota

	// Permanent failures (revoked auth, not-found, missing scope) are
	// not retryable; the connection is marked Failing immediately.
	Permanent
)

// SourceError is the error type every connector returns for provider
// failures, tagged with its retryability class.
type SourceError struct {
	Provider model.ProviderKind
	Class    ErrorClass
	Op       string
	Message  string
	Err      error
}

func (e *SourceError) Error() string {
	class := "transient"
	if e.Class == Permanent {
		class = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (%s): %s: %v", class, e.Op, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error (%s): %s", class, e.Op, e.Provider, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewTransient builds a retryable SourceError.
func NewTransient(provider model.ProviderKind, op, message string, err error) *SourceError {
	return &SourceError{Provider: provider, Class: Transient, Op: op, Message: message, Err: err}
}

// NewPermanent builds a non-retryable SourceError.
func NewPermanent(provider model.ProviderKind, op, message string, err error) *SourceError {
	return &SourceError{Provider: provider, Class: Permanent, Op: op, Message: message, Err: err}
}

// IsTransient reports whether err (or any error in its chain) is a
// transient SourceError. Errors that are not SourceErrors at all are
// treated as transient: an unclassified failure must not permanently
// disable a connection.
func IsTransient(err error) bool {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Class == Transient
	}
	return true
}

// IsPermanent reports whether err carries a permanent SourceError.
func IsPermanent(err error) bool {
	var srcErr *SourceError
	return errors.As(err, &srcErr) && srcErr.Class == Permanent
}

// Cursor is an opaque pagination marker. Repeated ListItems calls with
// the same cursor must be idempotent.
type Cursor string

// RawItem is one normalized item as yielded by a connector, before the
// upsert engine classifies it against stored state.
type RawItem struct {
	// SourceID is the item's identifier within the provider.
	SourceID string

	// Data is the kind-specific payload. A nil or invalid payload is
	// treated as corrupt and skipped by the engine.
	Data model.ItemData

	// SourceItemSourceID, when set, names the provider-side id of the
	// item this one annotates (a reaction names its message).
	SourceItemSourceID string
}

// Page is one page of a listing.
type Page struct {
	Items []RawItem

	// NextCursor is the marker for the following page; empty when the
	// listing is drained.
	NextCursor Cursor

	// SyncToken, when set on the final page, is persisted per stream
	// and handed back as the opening cursor of the next cycle. A
	// connector whose listing from such a marker is changes-only, not
	// complete, must mark its pages Partial.
	SyncToken Cursor

	// Partial marks a listing the connector knows to be incomplete
	// (e.g., a truncated search). The reconciler refuses to close
	// anything off a partial listing.
	Partial bool
}

// Connector is the contract every provider adapter implements.
// Adapters translate provider wire formats into RawItems; everything
// past that boundary is provider-agnostic.
type Connector interface {
	// Provider returns the provider kind this connector serves.
	Provider() model.ProviderKind

	// Streams returns which sync streams this connector can feed.
	Streams() []model.SyncStream

	// Kinds returns the item kinds a stream's listings yield. The
	// reconciler closes records per kind, including kinds a cycle
	// observed zero items for, so the set must be static.
	Kinds(stream model.SyncStream) []model.ItemKind

	// RequiredScopes returns the OAuth scopes a stream needs. A
	// connection missing one is failed permanently for that stream
	// only.
	RequiredScopes(stream model.SyncStream) []string

	// ListItems fetches one page of items for a stream. The opening
	// cursor of a cycle is the stream's saved SyncToken from the last
	// cycle, or empty. The full listing, drained page by page until
	// NextCursor is empty, must be complete for the reconciler's
	// deletion-by-absence to be sound; a connector that cannot
	// guarantee that marks its pages Partial.
	ListItems(ctx context.Context, stream model.SyncStream, cursor Cursor) (*Page, error)

	// CompleteItem marks the provider-side item done (close the
	// issue, remove the saved marker, archive the thread).
	CompleteItem(ctx context.Context, sourceID string) error

	// ReopenItem undoes a completion on the provider side.
	ReopenItem(ctx context.Context, sourceID string) error
}

// Project is a sink-side container tasks can be filed under.
type Project struct {
	ID   string
	Name string
}

// SinkConnector is the extended contract for the task manager: on top
// of listing and completion it supports creating and mutating items so
// tasks can be mirrored outward.
type SinkConnector interface {
	Connector

	// CreateItem mirrors a task into the sink and returns the new
	// item's provider-side id.
	CreateItem(ctx context.Context, task *model.Task) (string, error)

	// UpdateItem pushes task field changes to an existing sink item.
	UpdateItem(ctx context.Context, sourceID string, task *model.Task) error

	// DeleteItem removes the sink item.
	DeleteItem(ctx context.Context, sourceID string) error

	// Projects lists the sink projects. Read-heavy; callers are
	// expected to cache the result.
	Projects(ctx context.Context) ([]Project, error)
}
