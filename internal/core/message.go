package core

import "time"

// Kind distinguishes chat messages from membership announcements.
type Kind string

const (
	KindChat Kind = "CHAT"
	KindJoin Kind = "JOIN"
)

// Message is the domain model for a chat message shown in a room.
// Values are never mutated after construction.
type Message struct {
	ID         int64
	Room       string
	Sender     string // identity used to tell own messages apart (usually an email)
	SenderID   int64
	SenderName string
	Body       string
	SentAt     time.Time // zero when the server did not send a timestamp
	Kind       Kind
}

// HasTimestamp reports whether the server supplied a send time.
func (m Message) HasTimestamp() bool {
	return !m.SentAt.IsZero()
}

// DisplayName returns the best label for the author.
func (m Message) DisplayName() string {
	if m.Sender != "" {
		return m.Sender
	}
	return m.SenderName
}

// Outbound is a locally composed message ready to be encoded for the wire.
type Outbound struct {
	Room   string
	Sender string
	Body   string
	Kind   Kind
}
