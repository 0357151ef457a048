package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/askislamically/backend/internal/model/chat"
)

func TestClientCompleteSendsContract(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Response: "Wa alaikum assalam"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	text, err := client.Complete(context.Background(), Request{
		Message:  "What is Zakat?",
		History:  []HistoryItem{{ID: "greeting", Role: chat.RoleAssistant, Content: "hello"}},
		UserType: chat.UserTypeNonMuslim,
		UserData: &chat.UserData{Profession: "teacher"},
	})
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if text != "Wa alaikum assalam" {
		t.Fatalf("unexpected text %q", text)
	}

	if got["message"] != "What is Zakat?" {
		t.Fatalf("unexpected message field: %v", got["message"])
	}
	if got["userType"] != "non-muslim" {
		t.Fatalf("unexpected userType field: %v", got["userType"])
	}
	history, ok := got["history"].([]any)
	if !ok || len(history) != 1 {
		t.Fatalf("unexpected history field: %v", got["history"])
	}
	userData, ok := got["userData"].(map[string]any)
	if !ok || userData["profession"] != "teacher" {
		t.Fatalf("unexpected userData field: %v", got["userData"])
	}
}

func TestClientCompleteOmitsUserDataAndSendsEmptyHistory(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Response{Response: "ok"})
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).Complete(context.Background(), Request{Message: "hi"}); err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if _, present := got["userData"]; present {
		t.Fatalf("expected userData to be omitted, got %v", got["userData"])
	}
	history, ok := got["history"].([]any)
	if !ok || len(history) != 0 {
		t.Fatalf("expected empty history array, got %v", got["history"])
	}
}

func TestClientCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(Response{Error: "Error communicating with the AI API"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Complete(context.Background(), Request{Message: "hi"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", statusErr.StatusCode)
	}
	if statusErr.Message != "Error communicating with the AI API" {
		t.Fatalf("unexpected message %q", statusErr.Message)
	}
}

func TestClientCompleteEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Complete(context.Background(), Request{Message: "hi"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestHistoryFromKeepsOrder(t *testing.T) {
	history := HistoryFrom([]chat.Message{
		{ID: "1", Role: chat.RoleAssistant, Content: "a"},
		{ID: "2", Role: chat.RoleUser, Content: "b"},
	})
	if len(history) != 2 || history[0].ID != "1" || history[1].Role != chat.RoleUser {
		t.Fatalf("unexpected history %+v", history)
	}
}
