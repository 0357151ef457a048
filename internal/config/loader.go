package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable that points at a YAML config file.
const ConfigEnv = "ASK_CONFIG"

// Load builds the configuration in layers: defaults, an optional YAML file
// (explicit path, ASK_CONFIG, ./config.yaml), environment overrides, validation.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := strings.TrimSpace(os.Getenv(ConfigEnv)); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// loadYAMLFile leaves fields absent from the file at their current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		addr, err := parseAddr(port)
		if err != nil {
			return err
		}
		cfg.Server.Addr = addr
	}
	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)

	if err := applyAIEnv(&cfg.AI); err != nil {
		return err
	}
	if err := applySpeechEnv(&cfg.Speech); err != nil {
		return err
	}

	settle, err := parseOptionalDurationEnv("CHAT_SETTLE_DELAY")
	if err != nil {
		return err
	}
	if settle != nil {
		cfg.Chat.SettleDelay = *settle
	}
	idle, err := parseOptionalDurationEnv("CHAT_IDLE_TIMEOUT")
	if err != nil {
		return err
	}
	if idle != nil {
		cfg.Chat.IdleTimeout = *idle
	}

	cfg.Gateway.URL = getEnvOrDefault("GATEWAY_URL", cfg.Gateway.URL)
	timeout, err := parseOptionalDurationEnv("GATEWAY_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		cfg.Gateway.Timeout = *timeout
	}
	return nil
}

// parseAddr 允许用户传入 "8080"、":8080" 或 "127.0.0.1:8080"。
func parseAddr(port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func applyAIEnv(ai *AIConfig) error {
	ai.Provider = strings.ToLower(getEnvOrDefault("AI_PROVIDER", ai.Provider))

	ai.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", ai.OpenAIAPIKey)
	ai.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", ai.OpenAIModel)
	ai.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", ai.OpenAIBaseURL)

	ai.APIKey = getEnvOrDefault("ARK_API_KEY", ai.APIKey)
	ai.AccessKey = getEnvOrDefault("ARK_ACCESS_KEY", ai.AccessKey)
	ai.SecretKey = getEnvOrDefault("ARK_SECRET_KEY", ai.SecretKey)
	ai.Model = getEnvOrDefault("Model", ai.Model)
	ai.BaseURL = getEnvOrDefault("ARK_BASE_URL", ai.BaseURL)
	ai.Region = getEnvOrDefault("ARK_REGION", ai.Region)

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return err
	}
	if temperature != nil {
		ai.Temperature = *temperature
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return err
	}
	if topP != nil {
		ai.TopP = topP
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return err
	}
	if maxTokens != nil {
		ai.MaxTokens = *maxTokens
	}
	return nil
}

func applySpeechEnv(sp *SpeechConfig) error {
	sp.AppID = getEnvOrDefault("SPEECH_APP_ID", sp.AppID)
	sp.AccessToken = getEnvOrDefault("SPEECH_ACCESS_TOKEN", sp.AccessToken)
	if sp.AccessToken == "" {
		// 兼容旧配置
		sp.AccessToken = getEnvOrDefault("SPEECH_API_KEY", "")
	}
	sp.ASRResourceID = getEnvOrDefault("SPEECH_ASR_RESOURCE_ID", sp.ASRResourceID)
	sp.ASRLanguage = getEnvOrDefault("SPEECH_ASR_LANGUAGE", sp.ASRLanguage)
	sp.TTSResourceID = getEnvOrDefault("SPEECH_TTS_RESOURCE_ID", sp.TTSResourceID)
	sp.VoiceEnglish = getEnvOrDefault("SPEECH_TTS_VOICE_EN", sp.VoiceEnglish)
	sp.VoiceArabic = getEnvOrDefault("SPEECH_TTS_VOICE_AR", sp.VoiceArabic)
	sp.TTSFormat = getEnvOrDefault("SPEECH_TTS_FORMAT", sp.TTSFormat)

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return err
	}
	if speed != nil {
		sp.TTSSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return err
	}
	if volume != nil {
		sp.TTSVolume = *volume
	}

	timeout, err := parseOptionalDurationEnv("SPEECH_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		sp.Timeout = *timeout
	}

	disableCapture, err := parseBoolEnv("SPEECH_DISABLE_CAPTURE", sp.DisableCapture)
	if err != nil {
		return err
	}
	sp.DisableCapture = disableCapture

	disablePlay, err := parseBoolEnv("SPEECH_DISABLE_PLAYBACK", sp.DisablePlay)
	if err != nil {
		return err
	}
	sp.DisablePlay = disablePlay
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

// parseOptionalDurationEnv accepts Go durations ("1500ms") or bare seconds ("30").
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		d := time.Duration(seconds) * time.Second
		return &d, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
}
