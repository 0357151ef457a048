package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/askislamically/backend/internal/config"
	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/observability"
	"github.com/askislamically/backend/internal/service/gateway"
)

// ErrEmptyQuestion is returned for a request without a message.
var ErrEmptyQuestion = errors.New("message is required")

// Service answers completion requests with the configured backend.
type Service struct {
	backend  Backend
	template prompt.ChatTemplate
	log      *log.Logger
}

// NewService builds the backend named by cfg.Provider.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewServiceWithBackend(backend), nil
}

// NewServiceWithBackend wraps an existing backend.
func NewServiceWithBackend(backend Backend) *Service {
	return &Service{
		backend: backend,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
		log: logging.For("ai"),
	}
}

// Provider names the backend in use.
func (s *Service) Provider() string {
	return s.backend.Name()
}

// Complete implements gateway.Completer: system prompt, then history, then the question.
func (s *Service) Complete(ctx context.Context, req gateway.Request) (string, error) {
	if req.Message == "" {
		return "", ErrEmptyQuestion
	}

	messages, err := s.BuildMessages(ctx, req)
	if err != nil {
		return "", err
	}

	provider := s.backend.Name()
	start := time.Now()
	reply, err := s.backend.Generate(ctx, messages)
	observability.CompletionLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CompletionRequestsTotal.WithLabelValues(provider, "error").Inc()
		s.log.Error("completion failed", "provider", provider, "err", err)
		return "", err
	}
	observability.CompletionRequestsTotal.WithLabelValues(provider, "ok").Inc()

	s.log.Debug("completion generated", "provider", provider, "history", len(req.History), "length", len(reply))
	return reply, nil
}

// BuildMessages formats the request into the message list sent to the backend.
func (s *Service) BuildMessages(ctx context.Context, req gateway.Request) ([]*schema.Message, error) {
	userType := req.UserType
	if userType == "" {
		userType = chat.UserTypeMuslim
	}

	messages, err := s.template.Format(ctx, map[string]any{
		"system":  SystemPrompt(userType, req.UserData),
		"history": historyMessages(req.History),
		"query":   req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	return messages, nil
}

func historyMessages(history []gateway.HistoryItem) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, item := range history {
		switch item.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(item.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(item.Content, nil))
		}
	}
	return out
}
