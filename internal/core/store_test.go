package core

import (
	"fmt"
	"testing"
)

func msg(sender, body string) Message {
	return Message{Sender: sender, Body: body, Kind: KindChat}
}

func assertMessages(t *testing.T, got []Message, want ...Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].Sender != want[i].Sender || got[i].Body != want[i].Body {
			t.Fatalf("message %d: expected %s/%q, got %s/%q", i, want[i].Sender, want[i].Body, got[i].Sender, got[i].Body)
		}
	}
}

func TestStoreAppendPreservesOrder(t *testing.T) {
	st := NewStore()
	var want []Message
	for i := 0; i < 50; i++ {
		m := msg(fmt.Sprintf("u%d", i%3), fmt.Sprintf("m%d", i))
		st.Append(m)
		want = append(want, m)
	}
	assertMessages(t, st.Snapshot(), want...)
}

func TestStoreSeedThenAppend(t *testing.T) {
	st := NewStore()
	st.Seed([]Message{msg("a", "hi")})
	st.Append(msg("b", "yo"))

	assertMessages(t, st.Snapshot(), msg("a", "hi"), msg("b", "yo"))
}

func TestStoreSeedKeepsSeededOrderUnderAppends(t *testing.T) {
	st := NewStore()
	history := []Message{msg("a", "1"), msg("b", "2"), msg("a", "3")}
	st.Seed(history)
	for i := 0; i < 10; i++ {
		st.Append(msg("c", fmt.Sprintf("live%d", i)))
	}

	snap := st.Snapshot()
	assertMessages(t, snap[:3], history...)
	if len(snap) != 13 {
		t.Fatalf("expected 13 messages, got %d", len(snap))
	}
}

func TestStoreSeedKeepsLiveMessagesThatArrivedFirst(t *testing.T) {
	st := NewStore()
	st.Append(msg("live", "early"))
	st.Seed([]Message{msg("a", "old")})

	assertMessages(t, st.Snapshot(), msg("a", "old"), msg("live", "early"))
	if !st.Seeded() {
		t.Fatalf("store should report seeded")
	}
}

func TestStoreSeedTwiceReplacesHistoryOnly(t *testing.T) {
	st := NewStore()
	st.Seed([]Message{msg("a", "old")})
	st.Append(msg("b", "live"))
	st.Seed([]Message{msg("a", "old"), msg("a", "older")})

	assertMessages(t, st.Snapshot(), msg("a", "old"), msg("a", "older"), msg("b", "live"))
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	st := NewStore()
	st.Append(msg("a", "hi"))

	snap := st.Snapshot()
	snap[0].Body = "changed"

	if st.Snapshot()[0].Body != "hi" {
		t.Fatalf("snapshot must not alias store contents")
	}
	if st.Len() != 1 {
		t.Fatalf("expected len 1, got %d", st.Len())
	}
}
