package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

const (
	MessageTypeChat = "CHAT"
	MessageTypeJoin = "JOIN"
)

// ErrIncompleteRecord is returned for records with neither a sender nor a body.
var ErrIncompleteRecord = errors.New("record has no sender and no body")

// Record is a chat message as the server serialises it, in history responses
// and in topic frames. Older server builds use senderEmail/message, newer ones
// content/senderName/messageType; both are accepted.
type Record struct {
	MessageID   int64           `json:"messageId,omitempty"`
	RoomID      json.RawMessage `json:"roomId,omitempty"`
	SenderID    int64           `json:"senderId,omitempty"`
	SenderName  string          `json:"senderName,omitempty"`
	SenderEmail string          `json:"senderEmail,omitempty"`
	Content     string          `json:"content,omitempty"`
	Message     string          `json:"message,omitempty"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	MessageType string          `json:"messageType,omitempty"`
}

// HistoryEnvelope is the paged history shape some deployments return.
type HistoryEnvelope struct {
	Messages []Record `json:"messages"`
}

// AppOutbound is published to /app/chat/{room}.
type AppOutbound struct {
	MessageType string `json:"messageType"`
	RoomID      any    `json:"roomId"`
	Content     string `json:"content"`
	SenderEmail string `json:"senderEmail,omitempty"`
}

// SimpleOutbound is published to /publish/{room}.
type SimpleOutbound struct {
	SenderEmail string `json:"senderEmail"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
}

// DecodeMessage decodes one topic frame body.
func DecodeMessage(body []byte) (core.Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return core.Message{}, fmt.Errorf("frame body is not a JSON object")
	}

	var rec Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return core.Message{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec.ToMessage()
}

// DecodeHistory decodes a history response: a bare array or {"messages": [...]}.
// Records without a sender or body are skipped.
func DecodeHistory(body []byte) ([]core.Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []core.Message{}, nil
	}

	var records []Record
	if trimmed[0] == '{' {
		var env HistoryEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("unmarshal history envelope: %w", err)
		}
		records = env.Messages
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	out := make([]core.Message, 0, len(records))
	for _, rec := range records {
		msg, err := rec.ToMessage()
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// ToMessage maps a wire record onto the domain message.
func (r Record) ToMessage() (core.Message, error) {
	body := r.Message
	if body == "" {
		body = r.Content
	}
	if r.SenderEmail == "" && r.SenderName == "" && body == "" {
		return core.Message{}, ErrIncompleteRecord
	}

	kind := core.KindChat
	if strings.EqualFold(r.MessageType, MessageTypeJoin) {
		kind = core.KindJoin
	}

	return core.Message{
		ID:         r.MessageID,
		Room:       roomString(r.RoomID),
		Sender:     r.SenderEmail,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Body:       body,
		SentAt:     parseTimestamp(r.Timestamp),
		Kind:       kind,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts ISO strings with or without zone and epoch millis.
// Anything else yields the zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis).UTC()
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func roomString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// roomValue sends numeric room ids as numbers, like the web client did.
func roomValue(room string) any {
	if n, err := strconv.ParseInt(room, 10, 64); err == nil {
		return n
	}
	return room
}
