// Package gateway describes the completion request contract and provides an HTTP
// client for services that implement it.
package gateway

import (
	"context"
	"fmt"

	"github.com/askislamically/backend/internal/model/chat"
)

// HistoryItem is one prior turn sent along with a question. The id is carried for
// the caller's benefit and ignored by the server.
type HistoryItem struct {
	ID      string    `json:"id,omitempty"`
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

// Request is the body of POST /api/message.
type Request struct {
	Message  string         `json:"message"`
	History  []HistoryItem  `json:"history"`
	UserType chat.UserType  `json:"userType,omitempty"`
	UserData *chat.UserData `json:"userData,omitempty"`
}

// Response is the body returned by POST /api/message.
type Response struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Completer produces the assistant reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// StatusError reports a non-2xx answer from the gateway.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// HistoryFrom converts stored messages into request history.
func HistoryFrom(messages []chat.Message) []HistoryItem {
	history := make([]HistoryItem, 0, len(messages))
	for _, msg := range messages {
		history = append(history, HistoryItem{ID: msg.ID, Role: msg.Role, Content: msg.Content})
	}
	return history
}
