// Package imapmail implements the mail connector: recent IMAP threads
// surface as mail-thread notifications, and completing one archives
// the thread's messages server-side.
package imapmail

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Client wraps go-imap v2 for connecting to and querying IMAP servers.
type Client struct {
	cfg Config
}

// NewClient creates a new IMAP client configuration.
func NewClient(cfg Config) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Window <= 0 {
		cfg.Window = 14 * 24 * time.Hour
	}
	return &Client{cfg: cfg}
}

// connect establishes a connection, authenticates, and selects the
// configured mailbox. The caller must Logout the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.cfg.Host + ":" + c.cfg.Port

	var (
		client *imapclient.Client
		err    error
	)
	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, errDial(addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, errAuth(c.cfg.Username, err)
	}

	if _, err := client.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, errTransient("select", fmt.Errorf("selecting %s: %w", c.cfg.Mailbox, err))
	}

	return client, nil
}

// FetchEnvelopes lists envelopes for all messages delivered inside the
// configured window.
func (c *Client) FetchEnvelopes(ctx context.Context) ([]Envelope, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{
		Since: time.Now().Add(-c.cfg.Window),
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, errTransient("search", fmt.Errorf("searching messages: %w", err))
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)
	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, errTransient("fetch", fmt.Errorf("fetching envelopes: %w", err))
	}

	return envelopes, nil
}

// Archive moves the given messages out of the listed mailbox. It tries
// common archive folder names and falls back to flagging the messages
// deleted.
func (c *Client) Archive(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	set := imap.UIDSet{}
	for _, uid := range uids {
		set.AddNum(imap.UID(uid))
	}

	for _, folder := range []string{"Archive", "[Gmail]/All Mail", "Archived"} {
		if _, err := client.Move(set, folder).Wait(); err == nil {
			return nil
		}
	}

	storeCmd := client.Store(set, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return errTransient("archive", fmt.Errorf("flagging messages deleted: %w", err))
	}
	return nil
}

// envelopeFromBuffer extracts the fields we keep from a fetched
// message.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{UID: uint32(buf.UID)}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			env.Seen = true
		}
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}
	}

	return env
}
