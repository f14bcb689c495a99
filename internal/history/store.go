// Package history keeps a short in-memory transcript per chat. It backs the
// prompt when the platform's own history API is unavailable.
package history

import (
	"sync"
	"time"
)

const DefaultCapacity = 50

// Entry is one message in a chat transcript.
type Entry struct {
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	FromBot   bool      `json:"from_bot"` // written by this bot
	Timestamp time.Time `json:"timestamp"`
}

type transcript struct {
	entries []Entry
	updated time.Time
}

// Store holds the most recent Capacity entries of every chat.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]*transcript
	capacity int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		chats:    make(map[string]*transcript),
		capacity: capacity,
	}
}

// Add appends an entry to a chat, dropping the oldest beyond capacity.
func (s *Store) Add(chatID string, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.chats[chatID]
	if !ok {
		t = &transcript{entries: make([]Entry, 0, s.capacity)}
		s.chats[chatID] = t
	}
	if len(t.entries) >= s.capacity {
		n := copy(t.entries, t.entries[len(t.entries)-s.capacity+1:])
		t.entries = t.entries[:n]
	}
	t.entries = append(t.entries, e)
	t.updated = time.Now()
}

// Recent returns up to limit entries, oldest first, written before the entry
// with ID before. An empty before means the newest entries.
func (s *Store) Recent(chatID string, limit int, before string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.chats[chatID]
	if !ok {
		return nil
	}

	end := len(t.entries)
	if before != "" {
		for i := len(t.entries) - 1; i >= 0; i-- {
			if t.entries[i].MessageID == before {
				end = i
				break
			}
		}
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}

	out := make([]Entry, end-start)
	copy(out, t.entries[start:end])
	return out
}

// Find returns the entry with the given message ID.
func (s *Store) Find(chatID, messageID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.chats[chatID]
	if !ok {
		return Entry{}, false
	}
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].MessageID == messageID {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// Len reports how many entries are held for a chat.
func (s *Store) Len(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.chats[chatID]; ok {
		return len(t.entries)
	}
	return 0
}
