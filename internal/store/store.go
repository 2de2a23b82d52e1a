package store

import (
	"context"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Entry is one message as recorded in the local transcript.
type Entry struct {
	ID         int64 // local row id, increasing in record order
	Room       string
	MessageID  int64 // server id, 0 when the server did not send one
	Sender     string
	Body       string
	Kind       core.Kind
	SentAt     time.Time // zero when the server sent no timestamp
	RecordedAt time.Time
}

// Message converts the entry back into a domain message.
func (e Entry) Message() core.Message {
	return core.Message{
		ID:     e.MessageID,
		Room:   e.Room,
		Sender: e.Sender,
		Body:   e.Body,
		SentAt: e.SentAt,
		Kind:   e.Kind,
	}
}

// Transcript persists the messages a session delivered.
type Transcript interface {
	// Record stores messages for a room, skipping ones already recorded.
	// It returns how many were new.
	Record(ctx context.Context, room string, msgs ...core.Message) (int, error)
	// List returns the last limit entries of a room in record order. limit <= 0 means all.
	List(ctx context.Context, room string, limit int) ([]Entry, error)
	// Rooms lists the rooms that have entries.
	Rooms(ctx context.Context) ([]string, error)
	Close() error
}
