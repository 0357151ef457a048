package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q: %w", c.Log.Level, err))
	}

	switch c.AI.Provider {
	case ProviderOpenAI, ProviderArk:
	default:
		errs = append(errs, fmt.Errorf("ai.provider must be %q or %q, got %q", ProviderOpenAI, ProviderArk, c.AI.Provider))
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("ai.temperature must be within [0, 2], got %v", c.AI.Temperature))
	}
	if c.AI.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("ai.max_tokens must not be negative, got %d", c.AI.MaxTokens))
	}

	if c.Speech.TTSSpeed <= 0 {
		errs = append(errs, errors.New("speech.tts_speed must be positive"))
	}
	if c.Speech.Timeout <= 0 {
		errs = append(errs, errors.New("speech.timeout must be positive"))
	}

	if c.Chat.SettleDelay < 0 {
		errs = append(errs, errors.New("chat.settle_delay must not be negative"))
	}
	if c.Chat.IdleTimeout < 0 {
		errs = append(errs, errors.New("chat.idle_timeout must not be negative"))
	}

	if c.Gateway.URL != "" {
		u, err := url.Parse(c.Gateway.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("gateway.url must be an absolute http(s) URL, got %q", c.Gateway.URL))
		}
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}

	return errors.Join(errs...)
}
