// Command askctl drives the conversation engine and the speech adapters from a terminal.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/askislamically/backend/internal/config"
	"github.com/askislamically/backend/internal/logging"
)

type Globals struct {
	Config   string `help:"Path to a YAML config file." type:"path" env:"ASK_CONFIG"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn" name:"log-level"`
}

type cli struct {
	Globals

	Chat       chatCmd       `cmd:"" help:"Hold a conversation in the terminal."`
	Speak      speakCmd      `cmd:"" help:"Synthesize text to an audio file."`
	Transcribe transcribeCmd `cmd:"" help:"Transcribe a raw 16kHz mono PCM file."`
}

func (g *Globals) load() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: g.LogLevel})
	return cfg, nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("askctl"),
		kong.Description("Ask Islamically command line client."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&c.Globals))
}
