package config

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider names accepted by ai.provider.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	AI      AIConfig      `yaml:"ai"`
	Speech  SpeechConfig  `yaml:"speech"`
	Chat    ChatConfig    `yaml:"chat"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		AI: AIConfig{
			Provider:      ProviderOpenAI,
			OpenAIModel:   "gpt-3.5-turbo",
			OpenAIBaseURL: "https://api.openai.com/v1",
			BaseURL:       "https://ark.cn-beijing.volces.com/api/v3",
			Region:        "cn-beijing",
			Temperature:   0.7,
			MaxTokens:     1000,
		},
		Speech: SpeechConfig{
			ASRLanguage:  "en-US",
			VoiceEnglish: "en_female_anna_mars_bigtts",
			TTSFormat:    "mp3",
			TTSSpeed:     1.0,
			TTSVolume:    1.0,
			Timeout:      30 * time.Second,
		},
		Chat: ChatConfig{
			SettleDelay: time.Second,
			IdleTimeout: 30 * time.Minute,
		},
		Gateway: GatewayConfig{
			Timeout: 60 * time.Second,
		},
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level string `yaml:"level"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string `yaml:"provider"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	APIKey    string `yaml:"ark_api_key"`
	AccessKey string `yaml:"ark_access_key"`
	SecretKey string `yaml:"ark_secret_key"`
	Model     string `yaml:"ark_model"`
	BaseURL   string `yaml:"ark_base_url"`
	Region    string `yaml:"ark_region"`

	Temperature float64  `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	AppID          string        `yaml:"app_id"`
	AccessToken    string        `yaml:"access_token"`
	ASRResourceID  string        `yaml:"asr_resource_id"`
	ASRLanguage    string        `yaml:"asr_language"`
	TTSResourceID  string        `yaml:"tts_resource_id"`
	VoiceEnglish   string        `yaml:"voice_english"`
	VoiceArabic    string        `yaml:"voice_arabic"`
	TTSFormat      string        `yaml:"tts_format"`
	TTSSpeed       float32       `yaml:"tts_speed"`
	TTSVolume      float32       `yaml:"tts_volume"`
	Timeout        time.Duration `yaml:"timeout"`
	DisableCapture bool          `yaml:"disable_capture"`
	DisablePlay    bool          `yaml:"disable_playback"`
}

// ChatConfig tunes the conversation engine.
type ChatConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	// IdleTimeout closes REST sessions nobody has touched for this long; 0 disables.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// GatewayConfig points sessions at a remote completion gateway. An empty URL means
// sessions call the in-process AI service directly.
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled 表示是否提供了必需的语音凭证。
func (c SpeechConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

// Enabled 表示当前 provider 的凭证是否齐全。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.arkEnabled()
	default:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	}
}

func (c AIConfig) arkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用 Ark 配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.arkEnabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or an AK/SK pair")
	}

	temperature := float32(c.Temperature)

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens > 0 {
		val := c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}
