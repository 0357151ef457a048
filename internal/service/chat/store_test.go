package chat

import (
	"testing"

	"github.com/askislamically/backend/internal/model/chat"
)

func TestStoreTruncateKeepsGreeting(t *testing.T) {
	store := NewStore("hello")
	greeting := store.Messages()[0]
	q := store.Append(chat.RoleUser, "q")
	store.Append(chat.RoleAssistant, "a")

	store.Truncate(0)
	if store.Len() != 1 || store.Messages()[0] != greeting {
		t.Fatalf("truncate removed the greeting: %+v", store.Messages())
	}

	store.Append(chat.RoleUser, "q2")
	if _, ok := store.Find(q.ID); ok {
		t.Fatal("truncated message still found")
	}
}

func TestStoreMessagesIsACopy(t *testing.T) {
	store := NewStore("hello")
	messages := store.Messages()
	messages[0].Content = "changed"

	if store.Messages()[0].Content != "hello" {
		t.Fatal("caller mutated the store")
	}
}

func TestStoreEpochGuardsStaleReplies(t *testing.T) {
	store := NewStore("hello")
	_, before, epoch := store.AppendTurn(chat.RoleUser, "q")
	if len(before) != 1 {
		t.Fatalf("expected history before the turn, got %d", len(before))
	}

	store.Reset("hello again")
	if store.Epoch() == epoch {
		t.Fatal("reset must advance the epoch")
	}
	if _, ok := store.AppendIfEpoch(epoch, chat.RoleAssistant, "late"); ok {
		t.Fatal("stale reply was appended")
	}
	if store.Len() != 1 {
		t.Fatalf("expected only the new greeting, got %d", store.Len())
	}
}

func TestRewindToLastUser(t *testing.T) {
	store := NewStore("hello")
	if _, _, _, ok := store.rewindToLastUser(); ok {
		t.Fatal("greeting-only history has no question")
	}

	store.Append(chat.RoleUser, "q1")
	store.Append(chat.RoleAssistant, "a1")
	q2 := store.Append(chat.RoleUser, "q2")
	store.Append(chat.RoleAssistant, "a2")

	question, prior, _, ok := store.rewindToLastUser()
	if !ok || question.ID != q2.ID {
		t.Fatalf("expected q2, got %+v", question)
	}
	if len(prior) != 3 {
		t.Fatalf("expected three prior messages, got %d", len(prior))
	}
	if store.Len() != 4 {
		t.Fatalf("expected history to end at q2, got %d", store.Len())
	}
}
