// Package logging owns the process-wide structured logger.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Config controls the root logger.
type Config struct {
	Level      string
	TimeFormat string
	ShowCaller bool
	Output     io.Writer
}

// DefaultConfig returns the settings used when Init was never called.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		TimeFormat: "15:04:05",
	}
}

var (
	mu   sync.RWMutex
	root *log.Logger
)

// Init replaces the root logger. Unknown levels fall back to info.
func Init(cfg Config) *log.Logger {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = DefaultConfig().TimeFormat
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.ShowCaller,
	})

	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	mu.Lock()
	root = logger
	mu.Unlock()
	return logger
}

// L returns the root logger, initialising it with defaults on first use.
func L() *log.Logger {
	mu.RLock()
	logger := root
	mu.RUnlock()
	if logger != nil {
		return logger
	}
	return Init(DefaultConfig())
}

// For returns a child logger tagged with the component name.
func For(component string) *log.Logger {
	return L().WithPrefix(component)
}

// Std adapts the root logger for APIs that want a *log.Logger from the standard library.
func Std() *stdlog.Logger {
	return L().StandardLog()
}
