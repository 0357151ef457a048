package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	"github.com/askislamically/backend/internal/config"
)

// ErrEmptyCompletion is returned when the backend answers without any text.
var ErrEmptyCompletion = errors.New("completion backend returned no content")

// Backend produces one assistant message for a formatted conversation.
type Backend interface {
	Name() string
	Generate(ctx context.Context, messages []*schema.Message) (string, error)
}

// NewBackend picks the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.AIConfig) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewArkBackend(chatModel), nil
	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return NewOpenAIBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// OpenAIBackend calls the chat completions endpoint of an OpenAI-compatible API.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIBackend(cfg config.AIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.OpenAIModel,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (b *OpenAIBackend) Name() string { return config.ProviderOpenAI }

func (b *OpenAIBackend) Generate(ctx context.Context, messages []*schema.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai status %d: %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}

// ArkBackend runs the conversation through an eino chat model (Volcengine Ark).
type ArkBackend struct {
	chatModel model.BaseChatModel
}

func NewArkBackend(chatModel model.BaseChatModel) *ArkBackend {
	return &ArkBackend{chatModel: chatModel}
}

func (b *ArkBackend) Name() string { return config.ProviderArk }

func (b *ArkBackend) Generate(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("ark generate: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}
