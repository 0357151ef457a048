package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/askislamically/backend/internal/config"
	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/service/gateway"
)

type recordingBackend struct {
	messages []*schema.Message
	reply    string
	err      error
}

func (b *recordingBackend) Name() string { return "fake" }

func (b *recordingBackend) Generate(_ context.Context, messages []*schema.Message) (string, error) {
	b.messages = messages
	return b.reply, b.err
}

func TestSystemPromptSelection(t *testing.T) {
	muslim := SystemPrompt(chat.UserTypeMuslim, nil)
	if !strings.HasPrefix(muslim, "You are an Islamic AI assistant") {
		t.Fatalf("unexpected muslim prompt %q", muslim)
	}
	if strings.Contains(muslim, "non-confrontational") {
		t.Fatal("respect suffix belongs to the non-muslim prompt only")
	}
	if got := SystemPrompt(chat.UserTypeMuslim, &chat.UserData{Profession: "doctor"}); got != muslim {
		t.Fatal("user data must not change the muslim prompt")
	}

	nonMuslim := SystemPrompt(chat.UserTypeNonMuslim, nil)
	if !strings.HasPrefix(nonMuslim, "You are an educational AI assistant") {
		t.Fatalf("unexpected non-muslim prompt %q", nonMuslim)
	}
	if strings.Contains(nonMuslim, "The user identifies as") {
		t.Fatal("background clause added without user data")
	}
	if !strings.HasSuffix(nonMuslim, "with a focus on mutual respect and understanding.") {
		t.Fatal("missing respect suffix")
	}
}

func TestSystemPromptUserData(t *testing.T) {
	cases := []struct {
		name string
		data *chat.UserData
		want string
	}{
		{
			name: "both fields",
			data: &chat.UserData{Profession: "teacher", Beliefs: "Christian"},
			want: " The user identifies as Christian and works as a teacher.",
		},
		{
			name: "empty fields fall back",
			data: &chat.UserData{},
			want: " The user identifies as non-Muslim and works as a professional.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SystemPrompt(chat.UserTypeNonMuslim, tc.data)
			if !strings.Contains(got, tc.want) {
				t.Fatalf("prompt %q does not contain %q", got, tc.want)
			}
		})
	}
}

func TestCompleteOrdersMessages(t *testing.T) {
	backend := &recordingBackend{reply: "Peace be upon you"}
	svc := NewServiceWithBackend(backend)

	reply, err := svc.Complete(context.Background(), gateway.Request{
		Message: "What is salah?",
		History: []gateway.HistoryItem{
			{ID: "g", Role: chat.RoleAssistant, Content: "greeting"},
			{Role: chat.RoleUser, Content: "earlier question"},
		},
	})
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply != "Peace be upon you" {
		t.Fatalf("unexpected reply %q", reply)
	}

	got := backend.messages
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	wantRoles := []schema.RoleType{schema.System, schema.Assistant, schema.User, schema.User}
	for i, role := range wantRoles {
		if got[i].Role != role {
			t.Fatalf("message %d role = %s, want %s", i, got[i].Role, role)
		}
	}
	if got[0].Content != SystemPrompt(chat.UserTypeMuslim, nil) {
		t.Fatal("missing userType must select the muslim prompt")
	}
	if got[3].Content != "What is salah?" {
		t.Fatalf("unexpected question %q", got[3].Content)
	}
}

func TestCompleteRejectsEmptyMessage(t *testing.T) {
	svc := NewServiceWithBackend(&recordingBackend{reply: "x"})
	if _, err := svc.Complete(context.Background(), gateway.Request{}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestCompleteBackendError(t *testing.T) {
	svc := NewServiceWithBackend(&recordingBackend{err: errors.New("quota")})
	if _, err := svc.Complete(context.Background(), gateway.Request{Message: "hi"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestOpenAIBackendRequest(t *testing.T) {
	var captured struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Salah is the prayer."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	cfg := config.Defaults().AI
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL + "/v1"

	svc := NewServiceWithBackend(NewOpenAIBackend(cfg))
	reply, err := svc.Complete(context.Background(), gateway.Request{Message: "What is salah?", UserType: chat.UserTypeNonMuslim})
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply != "Salah is the prayer." {
		t.Fatalf("unexpected reply %q", reply)
	}

	if captured.Model != "gpt-3.5-turbo" || captured.MaxTokens != 1000 {
		t.Fatalf("unexpected model settings %+v", captured)
	}
	if captured.Temperature < 0.69 || captured.Temperature > 0.71 {
		t.Fatalf("unexpected temperature %v", captured.Temperature)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestOpenAIBackendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	cfg := config.Defaults().AI
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL + "/v1"

	_, err := NewOpenAIBackend(cfg).Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected a 429 error, got %v", err)
	}
}

func TestNewBackendRequiresCredentials(t *testing.T) {
	cfg := config.Defaults().AI
	if _, err := NewBackend(context.Background(), cfg); err == nil {
		t.Fatal("expected an error without an OpenAI key")
	}

	cfg.Provider = config.ProviderArk
	if _, err := NewBackend(context.Background(), cfg); err == nil {
		t.Fatal("expected an error without Ark credentials")
	}
}
