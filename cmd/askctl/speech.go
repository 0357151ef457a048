package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	speechModel "github.com/askislamically/backend/internal/model/speech"
	"github.com/askislamically/backend/internal/service/speech"
)

type speakCmd struct {
	Text    string        `arg:"" help:"Text to speak."`
	Out     string        `short:"o" help:"Output file; defaults to speech.<format>."`
	Voice   string        `help:"Override the voice for the detected locale."`
	Locale  string        `help:"ar-SA or en-GB; detected from the text when empty."`
	Timeout time.Duration `default:"45s"`
}

type transcribeCmd struct {
	Audio    string        `arg:"" type:"existingfile" help:"Raw 16kHz 16-bit mono PCM file."`
	Language string        `help:"Recognition language; defaults to the configured one."`
	Realtime bool          `help:"Pace chunks at real-time speed."`
	Timeout  time.Duration `default:"2m"`
}

func speechService(g *Globals) (*speech.Service, string, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, "", err
	}
	sc := cfg.Speech
	svc, err := speech.NewService(&speechModel.SpeechConfig{
		AppID:         sc.AppID,
		AccessToken:   sc.AccessToken,
		ASRResourceID: sc.ASRResourceID,
		ASRLanguage:   sc.ASRLanguage,
		TTSResourceID: sc.TTSResourceID,
		VoiceEnglish:  sc.VoiceEnglish,
		VoiceArabic:   sc.VoiceArabic,
		TTSFormat:     sc.TTSFormat,
		TTSSpeed:      sc.TTSSpeed,
		TTSVolume:     sc.TTSVolume,
		Timeout:       sc.Timeout,
	}, speech.Options{})
	return svc, sc.ASRLanguage, err
}

func (c *speakCmd) Run(g *Globals) error {
	svc, _, err := speechService(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	audio, err := svc.Synthesize(ctx, c.Text, c.Voice, c.Locale)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = "speech." + audio.Format
	}
	if err := os.WriteFile(out, audio.Data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes, %s)\n", out, len(audio.Data), audio.Duration)
	return nil
}

func (c *transcribeCmd) Run(g *Globals) error {
	svc, language, err := speechService(g)
	if err != nil {
		return err
	}
	if c.Language != "" {
		language = c.Language
	}

	f, err := os.Open(c.Audio)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	opts := speech.TranscribeOptions{
		Language: language,
		OnResult: func(r speech.Result) {
			if !r.Final {
				fmt.Fprintf(os.Stderr, "\r%s", r.Transcript())
			}
		},
	}
	if c.Realtime {
		opts.Pace = 200 * time.Millisecond
	}

	result, err := svc.TranscribeReader(ctx, f, opts)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(result.Transcript()))
	return nil
}
