package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)

	n, err := s.Record(ctx, "42",
		core.Message{ID: 1, Sender: "a@example.com", Body: "hi", Kind: core.KindChat, SentAt: ts},
		core.Message{SenderName: "Bob", Body: "yo"},
		core.Message{Sender: "c@example.com", Kind: core.KindJoin},
	)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 new entries, got %d", n)
	}

	entries, err := s.List(ctx, "42", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Sender != "a@example.com" || !entries[0].SentAt.Equal(ts) || entries[0].MessageID != 1 {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Sender != "Bob" || entries[1].Kind != core.KindChat || !entries[1].SentAt.IsZero() {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
	if entries[2].Kind != core.KindJoin {
		t.Errorf("expected JOIN entry, got %q", entries[2].Kind)
	}
	if got := entries[0].Message(); got.Body != "hi" || got.Room != "42" {
		t.Errorf("unexpected message conversion %+v", got)
	}
}

func TestRecordSkipsKnownMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)

	history := []core.Message{
		{ID: 7, Sender: "a@example.com", Body: "hi"},
		{Sender: "b@example.com", Body: "yo", SentAt: ts},
	}
	if _, err := s.Record(ctx, "42", history...); err != nil {
		t.Fatalf("record: %v", err)
	}
	n, err := s.Record(ctx, "42", history...)
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if n != 0 {
		t.Fatalf("reloaded history must not duplicate entries, added %d", n)
	}

	// Same server id in another room is a different message.
	if n, _ := s.Record(ctx, "43", history[0]); n != 1 {
		t.Fatalf("expected entry in room 43, added %d", n)
	}
}

func TestListLimitAndRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Record(ctx, "42", core.Message{Sender: "a", Body: string(rune('a' + i))}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, err := s.Record(ctx, "7", core.Message{Sender: "b", Body: "x"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := s.List(ctx, "42", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Body != "d" || entries[1].Body != "e" {
		t.Fatalf("expected last two entries in order, got %+v", entries)
	}

	rooms, err := s.Rooms(ctx)
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0] != "7" || rooms[1] != "42" {
		t.Fatalf("unexpected rooms %v", rooms)
	}

	empty, err := s.List(ctx, "missing", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no entries, got %v %v", empty, err)
	}
}
