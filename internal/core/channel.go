package core

import (
	"context"

	"github.com/vovakirdan/roomchat/internal/auth"
)

// Frame is one inbound unit delivered by a subscription.
// Err is set when the channel failed; the subscription delivers nothing after it.
type Frame struct {
	Body []byte
	Err  error
}

// Subscription is the registration that delivers a room's frames.
// Frames is closed when the channel shuts down cleanly.
type Subscription interface {
	Frames() <-chan Frame
	Unsubscribe() error
}

// Channel is one live connection to the messaging server.
type Channel interface {
	Subscribe(destination string) (Subscription, error)
	Publish(destination string, body []byte) error
	Close() error
}

// Dialer opens channels. Dial blocks until the server acknowledged the connection.
type Dialer interface {
	Dial(ctx context.Context, creds auth.Credentials) (Channel, error)
}

// Codec adapts the session to one server's message shapes and destinations.
type Codec interface {
	Topic(room string) string
	Destination(room string) string
	Decode(body []byte) (Message, error)
	Encode(out Outbound) ([]byte, error)
}

// HistoryFetcher loads the messages a room already has.
type HistoryFetcher interface {
	History(ctx context.Context, room string, creds auth.Credentials) ([]Message, error)
}

// ReadMarker tells the server the user has read a room.
type ReadMarker interface {
	MarkRead(ctx context.Context, room string, creds auth.Credentials) error
}
