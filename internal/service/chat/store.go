package chat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/askislamically/backend/internal/model/chat"
)

// Store holds the ordered turns of one session. Ids are minted here and never reused.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	epoch    uint64
}

// NewStore seeds the store with the greeting.
func NewStore(greeting string) *Store {
	s := &Store{}
	s.Reset(greeting)
	return s
}

// Append adds a turn with a fresh id and returns it.
func (s *Store) Append(role chat.Role, content string) chat.Message {
	msg := chat.Message{ID: uuid.NewString(), Role: role, Content: content}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg
}

// AppendTurn appends a turn and returns it with the history that preceded it and the
// current epoch, read under one lock.
func (s *Store) AppendTurn(role chat.Role, content string) (chat.Message, []chat.Message, uint64) {
	msg := chat.Message{ID: uuid.NewString(), Role: role, Content: content}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := make([]chat.Message, len(s.messages))
	copy(before, s.messages)
	s.messages = append(s.messages, msg)
	return msg, before, s.epoch
}

// Reset replaces the history with a single assistant greeting.
func (s *Store) Reset(greeting string) chat.Message {
	msg := chat.Message{ID: uuid.NewString(), Role: chat.RoleAssistant, Content: greeting}

	s.mu.Lock()
	s.messages = make([]chat.Message, 1, 16)
	s.messages[0] = msg
	s.epoch++
	s.mu.Unlock()
	return msg
}

// Epoch changes on every Reset.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// AppendIfEpoch appends only when no Reset happened since epoch was read.
func (s *Store) AppendIfEpoch(epoch uint64, role chat.Role, content string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return chat.Message{}, false
	}
	msg := chat.Message{ID: uuid.NewString(), Role: role, Content: content}
	s.messages = append(s.messages, msg)
	return msg, true
}

// Truncate keeps messages[0..through] inclusive. The first message is never removed.
func (s *Store) Truncate(through int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if through < 0 {
		through = 0
	}
	if through >= len(s.messages)-1 {
		return
	}
	s.messages = s.messages[:through+1]
}

// Messages returns a copy of the history.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Find looks a message up by id.
func (s *Store) Find(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return chat.Message{}, false
}
