package core

import "sync"

// Store is the append-only message list of one session.
// The session loop is the only writer; views may read concurrently.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	history  int // leading entries that came from Seed
	seeded   bool
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

// Seed replaces the fetched history at the front of the store.
// Live messages appended before the history arrived are kept after it.
func (s *Store) Seed(history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.messages[s.history:]
	merged := make([]Message, 0, len(history)+len(live))
	merged = append(merged, history...)
	merged = append(merged, live...)
	s.messages = merged
	s.history = len(history)
	s.seeded = true
}

// Append adds a message to the end.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// Snapshot returns a copy of the messages in order.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Seeded reports whether history has been installed.
func (s *Store) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}
