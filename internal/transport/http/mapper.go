package http

import (
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

// MessageResponse is the status server's view of a chat message.
type MessageResponse struct {
	ID     int64      `json:"id,omitempty"`
	Sender string     `json:"sender"`
	Body   string     `json:"body"`
	Kind   string     `json:"kind"`
	SentAt *time.Time `json:"sentAt,omitempty"`
}

func messageToResponse(m core.Message) MessageResponse {
	resp := MessageResponse{
		ID:     m.ID,
		Sender: m.DisplayName(),
		Body:   m.Body,
		Kind:   string(m.Kind),
	}
	if m.HasTimestamp() {
		ts := m.SentAt.UTC()
		resp.SentAt = &ts
	}
	return resp
}

func messagesToResponse(msgs []core.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToResponse(m))
	}
	return out
}
