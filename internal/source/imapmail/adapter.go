package imapmail

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
)

func errDial(addr string, err error) error {
	return source.NewTransient(model.ProviderMail, "dial", fmt.Sprintf("connecting to %s", addr), err)
}

func errAuth(username string, err error) error {
	return source.NewPermanent(model.ProviderMail, "login", fmt.Sprintf("authentication failed for %s", username), err)
}

func errTransient(op string, err error) error {
	return source.NewTransient(model.ProviderMail, op, "request failed", err)
}

// mailbox is the slice of Client the adapter needs. Tests substitute
// an in-memory implementation.
type mailbox interface {
	FetchEnvelopes(ctx context.Context) ([]Envelope, error)
	Archive(ctx context.Context, uids []uint32) error
}

var _ mailbox = (*Client)(nil)

// Adapter implements source.Connector for IMAP mail. A listing groups
// the window's messages into threads; each thread is one item.
type Adapter struct {
	client mailbox

	// uids remembers which message UIDs belong to each thread seen in
	// the last listing, so CompleteItem can archive them.
	mu   sync.Mutex
	uids map[string][]uint32
}

var _ source.Connector = (*Adapter)(nil)

// NewAdapter creates a mail connector.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		client: NewClient(cfg),
		uids:   make(map[string][]uint32),
	}
}

// Provider returns the provider kind for mail.
func (a *Adapter) Provider() model.ProviderKind {
	return model.ProviderMail
}

// Streams reports that mail feeds the notifications stream only.
func (a *Adapter) Streams() []model.SyncStream {
	return []model.SyncStream{model.StreamNotifications}
}

// Kinds reports that the notifications stream yields mail threads.
func (a *Adapter) Kinds(stream model.SyncStream) []model.ItemKind {
	if stream == model.StreamNotifications {
		return []model.ItemKind{model.ItemKindMailThread}
	}
	return nil
}

// RequiredScopes returns nil: IMAP authenticates with credentials, not
// OAuth scopes.
func (a *Adapter) RequiredScopes(model.SyncStream) []string {
	return nil
}

// ListItems lists the mailbox window as mail-thread items. IMAP has no
// server-side pagination at this granularity, so the whole listing is
// one page and the returned cursor is always empty.
func (a *Adapter) ListItems(ctx context.Context, _ model.SyncStream, _ source.Cursor) (*source.Page, error) {
	envelopes, err := a.client.FetchEnvelopes(ctx)
	if err != nil {
		return nil, err
	}

	threads := threadsFromEnvelopes(envelopes)

	a.mu.Lock()
	a.uids = make(map[string][]uint32, len(threads))
	items := make([]source.RawItem, 0, len(threads))
	for _, t := range threads {
		a.uids[t.sourceID] = t.uids
		items = append(items, source.RawItem{
			SourceID: t.sourceID,
			Data:     t.data,
		})
	}
	a.mu.Unlock()

	return &source.Page{Items: items}, nil
}

// CompleteItem archives every message of the thread. The UID memory is
// lost on restart, so an unknown thread forces a re-listing first; a
// thread still absent after that has already left the mailbox.
func (a *Adapter) CompleteItem(ctx context.Context, sourceID string) error {
	uids, known := a.threadUIDs(sourceID)
	if !known {
		if _, err := a.ListItems(ctx, model.StreamNotifications, ""); err != nil {
			return err
		}
		uids, known = a.threadUIDs(sourceID)
		if !known {
			return nil
		}
	}

	return a.client.Archive(ctx, uids)
}

func (a *Adapter) threadUIDs(sourceID string) ([]uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uids, ok := a.uids[sourceID]
	return uids, ok
}

// ReopenItem is not supported by mail: un-archiving a thread would
// need the original mailbox, which the archive discards.
func (a *Adapter) ReopenItem(_ context.Context, sourceID string) error {
	return source.NewPermanent(model.ProviderMail, "reopen",
		fmt.Sprintf("mail threads cannot be reopened (%s)", sourceID), nil)
}

// thread is an intermediate grouping of envelopes.
type thread struct {
	sourceID string
	data     model.MailThreadData
	uids     []uint32
}

// threadsFromEnvelopes groups envelopes into threads by normalized
// subject. The thread id is the oldest message's id, which stays
// stable as replies arrive.
func threadsFromEnvelopes(envelopes []Envelope) []thread {
	groups := make(map[string][]Envelope)
	var order []string
	for _, env := range envelopes {
		key := normalizeSubject(env.Subject)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], env)
	}

	threads := make([]thread, 0, len(groups))
	for _, key := range order {
		msgs := groups[key]
		sort.Slice(msgs, func(i, j int) bool {
			return msgs[i].Date.Before(msgs[j].Date)
		})

		oldest := msgs[0]
		newest := msgs[len(msgs)-1]

		data := model.MailThreadData{
			ThreadID:      oldest.MessageID,
			Subject:       newest.Subject,
			From:          newest.From,
			LastMessageAt: newest.Date.UTC(),
		}
		uids := make([]uint32, 0, len(msgs))
		for _, m := range msgs {
			data.MessageIDs = append(data.MessageIDs, m.MessageID)
			uids = append(uids, m.UID)
			if !m.Seen {
				data.Unread = true
			}
		}

		threads = append(threads, thread{
			sourceID: oldest.MessageID,
			data:     data,
			uids:     uids,
		})
	}

	return threads
}

// normalizeSubject strips reply/forward prefixes so replies land in
// the same thread as the original message.
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		trimmed := false
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			if strings.HasPrefix(lower, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				trimmed = true
				break
			}
		}
		if !trimmed {
			return strings.ToLower(s)
		}
	}
}
