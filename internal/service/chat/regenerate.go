package chat

import (
	"context"

	"github.com/askislamically/backend/internal/model/chat"
)

// Regenerate drops everything after the last user question and asks it again with
// the history that preceded it.
func (s *Session) Regenerate(ctx context.Context) error {
	if s.store.Len() <= 1 {
		return ErrNothingToRegenerate
	}
	if !s.loading.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}

	question, history, epoch, ok := s.store.rewindToLastUser()
	if !ok {
		s.loading.Store(false)
		return ErrNothingToRegenerate
	}
	s.log.Info("regenerating reply", "question_id", question.ID)
	s.publish()

	return s.runCycle(ctx, question.Content, history, epoch)
}

// rewindToLastUser truncates the history right after the last user turn and returns
// that turn with the messages before it.
func (s *Store) rewindToLastUser() (chat.Message, []chat.Message, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) <= 1 {
		return chat.Message{}, nil, s.epoch, false
	}

	last := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == chat.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return chat.Message{}, nil, s.epoch, false
	}

	s.messages = s.messages[:last+1]
	history := make([]chat.Message, last)
	copy(history, s.messages[:last])
	return s.messages[last], history, s.epoch, true
}
