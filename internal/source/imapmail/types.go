package imapmail

import "time"

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Seen      bool
	UID       uint32
}

// Config holds the IMAP server settings for a mail connection.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool

	// Mailbox is the folder to list; defaults to INBOX.
	Mailbox string

	// Window is how far back listings reach. A thread with no message
	// inside the window is treated as gone from the source, which is
	// what closes its notification. Defaults to 14 days.
	Window time.Duration
}
