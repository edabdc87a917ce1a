package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/store"
	"github.com/nhle/inboxsync/tests/testutil"
)

// fakeConnector is an in-memory source.Connector whose listing is a
// fixed sequence of pages. The cursor is the page index.
type fakeConnector struct {
	provider model.ProviderKind
	streams  []model.SyncStream
	kinds    []model.ItemKind
	scopes   []string

	pages   []source.Page
	listErr error

	// syncToken, when set, is returned on the final page.
	syncToken source.Cursor

	// gotCursors records the cursor of every ListItems call.
	gotCursors []source.Cursor

	// onList, when set, runs at the start of every ListItems call.
	onList func(cursor source.Cursor)

	completed []string
	reopened  []string
	reopenErr error
}

func (f *fakeConnector) Provider() model.ProviderKind { return f.provider }

func (f *fakeConnector) Streams() []model.SyncStream { return f.streams }

func (f *fakeConnector) Kinds(model.SyncStream) []model.ItemKind { return f.kinds }

func (f *fakeConnector) RequiredScopes(model.SyncStream) []string { return f.scopes }

func (f *fakeConnector) ListItems(ctx context.Context, _ model.SyncStream, cursor source.Cursor) (*source.Page, error) {
	f.gotCursors = append(f.gotCursors, cursor)
	if f.onList != nil {
		f.onList(cursor)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	// Numeric cursors are page indexes; anything else is a saved sync
	// token, which restarts the listing.
	idx := 0
	if n, err := strconv.Atoi(string(cursor)); err == nil {
		idx = n
	}
	if idx >= len(f.pages) {
		return &source.Page{SyncToken: f.syncToken}, nil
	}
	page := f.pages[idx]
	if idx < len(f.pages)-1 {
		page.NextCursor = source.Cursor(strconv.Itoa(idx + 1))
	} else {
		page.SyncToken = f.syncToken
	}
	return &page, nil
}

func (f *fakeConnector) CompleteItem(_ context.Context, sourceID string) error {
	f.completed = append(f.completed, sourceID)
	return nil
}

func (f *fakeConnector) ReopenItem(_ context.Context, sourceID string) error {
	if f.reopenErr != nil {
		return f.reopenErr
	}
	f.reopened = append(f.reopened, sourceID)
	return nil
}

// fakeSink extends fakeConnector with the task-manager write surface.
type fakeSink struct {
	fakeConnector

	nextID   int
	created  []*model.Task
	updated  []string
	deleted  []string
	projects []source.Project
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		fakeConnector: fakeConnector{
			provider: model.ProviderTaskManager,
			streams:  []model.SyncStream{model.StreamTasks},
			kinds:    []model.ItemKind{model.ItemKindTaskItem},
		},
		projects: []source.Project{{ID: "p-inbox", Name: "Inbox"}},
	}
}

func (f *fakeSink) CreateItem(_ context.Context, task *model.Task) (string, error) {
	f.nextID++
	c := *task
	f.created = append(f.created, &c)
	return fmt.Sprintf("sink-%d", f.nextID), nil
}

func (f *fakeSink) UpdateItem(_ context.Context, sourceID string, _ *model.Task) error {
	f.updated = append(f.updated, sourceID)
	return nil
}

func (f *fakeSink) DeleteItem(_ context.Context, sourceID string) error {
	f.deleted = append(f.deleted, sourceID)
	return nil
}

func (f *fakeSink) Projects(context.Context) ([]source.Project, error) {
	return f.projects, nil
}

// testClock is an adjustable clock for deterministic timestamps.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()

	s := testutil.NewTestStore(t)
	clock := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}

	e := New(
		s,
		source.NewRegistry(),
		NewProviderCache(16, time.Minute),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		model.SyncConfig{
			Workers:                         1,
			MinNotificationsIntervalMinutes: 5,
			MinTasksIntervalMinutes:         5,
			BackoffBaseMinutes:              5,
			BackoffMaxMinutes:               360,
			FailingThreshold:                3,
		},
	)
	e.Now = clock.Now
	return e, clock
}

// insertTestConnection stores a validated connection for a provider.
func insertTestConnection(t *testing.T, e *Engine, userID uuid.UUID, provider model.ProviderKind, scopes ...string) *model.IntegrationConnection {
	t.Helper()

	conn := model.NewIntegrationConnection(userID, provider)
	conn.Status = model.ConnectionValidated
	conn.RegisteredScopes = scopes
	if err := e.Store.InsertConnection(context.Background(), conn); err != nil {
		t.Fatalf("inserting connection: %v", err)
	}
	return conn
}

// upsertInTx runs one upsert inside a transaction and returns its
// classification.
func upsertInTx(t *testing.T, e *Engine, conn *model.IntegrationConnection, raw source.RawItem) *UpsertResult {
	t.Helper()

	var res *UpsertResult
	err := e.Store.WithTx(context.Background(), func(tx store.Store) error {
		var err error
		res, err = e.upsertItem(context.Background(), tx, raw, conn.UserID, conn.ID, e.now())
		return err
	})
	if err != nil {
		t.Fatalf("upserting %q: %v", raw.SourceID, err)
	}
	return res
}
