package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
)

const (
	LocaleArabic  = "ar-SA"
	LocaleEnglish = "en-GB"
)

// LocaleFor picks Arabic when the text holds any rune from the Arabic block.
func LocaleFor(text string) string {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return LocaleArabic
		}
	}
	return LocaleEnglish
}

// SynthesisRequest describes one utterance.
type SynthesisRequest struct {
	Text   string
	Locale string
	Voice  string
}

// Audio is synthesized speech ready for playback.
type Audio struct {
	Data     []byte
	Format   string
	Duration time.Duration
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error)
}

// AudioSink plays audio. Play blocks until playback ends or ctx is cancelled.
type AudioSink interface {
	Play(ctx context.Context, utteranceID string, audio *Audio) error
}

// Playback reads messages aloud, one utterance at a time.
type Playback interface {
	Supported() bool
	Speaking() bool
	SpeakingID() string
	Speak(ctx context.Context, utteranceID, text string) error
	Cancel()
}

// NewPlayback picks the adapter once: a nil synthesizer yields the unsupported variant.
func NewPlayback(synth Synthesizer, sink AudioSink, host Host) Playback {
	if synth == nil || sink == nil {
		return unsupportedPlayback{host: host}
	}
	return &synthPlayback{
		synth: synth,
		sink:  sink,
		host:  host,
		log:   logging.For("playback"),
	}
}

type unsupportedPlayback struct {
	host Host
}

func (unsupportedPlayback) Supported() bool    { return false }
func (unsupportedPlayback) Speaking() bool     { return false }
func (unsupportedPlayback) SpeakingID() string { return "" }
func (unsupportedPlayback) Cancel()            {}

func (u unsupportedPlayback) Speak(context.Context, string, string) error {
	u.host.Notify(chat.NoticeSynthesisUnsupported)
	return ErrUnsupported
}

type synthPlayback struct {
	synth Synthesizer
	sink  AudioSink
	host  Host
	log   *log.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	current    string
	generation uint64
}

func (p *synthPlayback) Supported() bool { return true }

func (p *synthPlayback) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *synthPlayback) SpeakingID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Speak toggles: while an utterance is active it is cancelled and nothing new starts.
func (p *synthPlayback) Speak(ctx context.Context, utteranceID, text string) error {
	if p.stopActive() {
		p.host.Refresh()
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("nothing to speak")
	}

	p.mu.Lock()
	p.generation++
	gen := p.generation
	uctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.current = utteranceID
	p.mu.Unlock()
	p.host.Refresh()

	go p.run(uctx, gen, utteranceID, text)
	return nil
}

func (p *synthPlayback) Cancel() {
	if p.stopActive() {
		p.host.Refresh()
	}
}

func (p *synthPlayback) stopActive() bool {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.current = ""
	if cancel != nil {
		p.generation++
	}
	p.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (p *synthPlayback) run(ctx context.Context, gen uint64, utteranceID, text string) {
	locale := LocaleFor(text)
	audio, err := p.synth.Synthesize(ctx, SynthesisRequest{Text: text, Locale: locale})
	if err == nil {
		p.log.Debug("playing utterance", "id", utteranceID, "locale", locale, "bytes", len(audio.Data))
		err = p.sink.Play(ctx, utteranceID, audio)
	}
	p.finish(gen, err)
}

func (p *synthPlayback) finish(gen uint64, err error) {
	p.mu.Lock()
	if p.generation != gen {
		// Cancelled by a toggle; the canceller already went idle.
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.cancel = nil
	p.current = ""
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Error("speech playback failed", "err", err)
		p.host.Notify(chat.NoticeSynthesisFailed)
	}
	p.host.Refresh()
}
