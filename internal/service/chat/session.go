package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/observability"
	"github.com/askislamically/backend/internal/service/export"
	"github.com/askislamically/backend/internal/service/gateway"
	"github.com/askislamically/backend/internal/service/speech"
)

var (
	ErrCycleInFlight       = errors.New("a response is already being generated")
	ErrEmptyInput          = errors.New("input is empty")
	ErrListening           = errors.New("submission is disabled while listening")
	ErrNothingToRegenerate = errors.New("no question to regenerate")
	ErrMessageNotFound     = errors.New("message not found")
)

// DefaultSettleDelay is how long Start waits before sending the initial question.
const DefaultSettleDelay = time.Second

// Listener receives everything the caller needs to render a session. Calls may
// arrive from several goroutines.
type Listener interface {
	StateChanged(snapshot chat.Snapshot)
	Notify(n chat.Notification)
	ScrollToLatest()
	FocusInput()
}

// NopListener discards every event.
type NopListener struct{}

func (NopListener) StateChanged(chat.Snapshot) {}
func (NopListener) Notify(chat.Notification)   {}
func (NopListener) ScrollToLatest()            {}
func (NopListener) FocusInput()                {}

// Options tune a session. Nil engines leave the matching capability unsupported.
type Options struct {
	SettleDelay         time.Duration
	Listener            Listener
	Recognizer          speech.Recognizer
	RecognitionLanguage string
	Synthesizer         speech.Synthesizer
	AudioSink           speech.AudioSink
	Exporter            *export.Exporter
	// IdleTimeout lets Service.Sweep close the session after this long without
	// activity. Zero or NoIdleTimeout keeps it until closed explicitly.
	IdleTimeout time.Duration
}

// NoIdleTimeout opts a session out of idle sweeping, for sessions whose owner
// closes them (a WebSocket connection).
const NoIdleTimeout time.Duration = -1

// Session is the conversation engine for one chat screen activation.
type Session struct {
	id          string
	identity    chat.Identity
	completer   gateway.Completer
	store       *Store
	listener    Listener
	capture     speech.Capture
	playback    speech.Playback
	exporter    *export.Exporter
	settleDelay time.Duration
	idleTimeout time.Duration
	log         *log.Logger

	lastActive atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	loading atomic.Bool

	mu    sync.Mutex
	input string
}

// NewSession seeds the greeting and selects the speech adapters once.
func NewSession(identity chat.Identity, completer gateway.Completer, opts Options) *Session {
	if identity.UserType == "" {
		identity.UserType = chat.UserTypeMuslim
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.Exporter == nil {
		opts.Exporter = export.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          uuid.NewString(),
		identity:    identity,
		completer:   completer,
		store:       NewStore(Greeting(identity.UserType, identity.UserName)),
		listener:    opts.Listener,
		exporter:    opts.Exporter,
		settleDelay: opts.SettleDelay,
		idleTimeout: opts.IdleTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.log = logging.For("session").With("session", s.id)
	s.capture = speech.NewCapture(opts.Recognizer, s, speech.RecognitionOptions{Language: opts.RecognitionLanguage})
	s.playback = speech.NewPlayback(opts.Synthesizer, opts.AudioSink, s)
	s.touch()

	observability.SessionsActive.Inc()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() chat.Identity { return s.identity }

// Start publishes the initial state, then either sends the initial question after
// the settle delay or asks the caller to focus the input.
func (s *Session) Start(ctx context.Context) error {
	s.publish()

	question := s.identity.InitialQuestion
	if strings.TrimSpace(question) == "" {
		s.listener.FocusInput()
		return nil
	}

	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if !s.loading.CompareAndSwap(false, true) {
		s.log.Warn("initial question dropped, a cycle is already running")
		return ErrCycleInFlight
	}
	_, before, epoch := s.store.AppendTurn(chat.RoleUser, question)
	s.publish()
	return s.runCycle(ctx, question, before[:1], epoch)
}

// SetInput replaces the pending input. A late result from a stopped recognition
// no longer overwrites it.
func (s *Session) SetInput(text string) {
	s.capture.Detach()
	s.SetTranscript(text)
}

// SetTranscript is the capture adapter's way into the input slot.
func (s *Session) SetTranscript(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
	s.publish()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit sends the pending input as a new question.
func (s *Session) Submit(ctx context.Context) error {
	text := s.Input()
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if s.capture.Listening() {
		return ErrListening
	}
	if !s.loading.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}

	s.capture.Detach()
	_, before, epoch := s.store.AppendTurn(chat.RoleUser, text)
	s.mu.Lock()
	s.input = ""
	s.mu.Unlock()
	s.publish()

	return s.runCycle(ctx, text, before, epoch)
}

// Ask is SetInput followed by Submit. A request that would be rejected leaves the
// pending input untouched.
func (s *Session) Ask(ctx context.Context, text string) error {
	if s.loading.Load() {
		return ErrCycleInFlight
	}
	if s.capture.Listening() {
		return ErrListening
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	s.SetInput(text)
	return s.Submit(ctx)
}

// Reset re-seeds the history with a fresh greeting. A reply still in flight is dropped.
func (s *Session) Reset() {
	s.capture.Detach()
	s.store.Reset(Greeting(s.identity.UserType, s.identity.UserName))
	s.log.Info("conversation cleared")
	s.publish()
}

// runCycle expects the in-flight slot to be claimed and always releases it.
func (s *Session) runCycle(ctx context.Context, question string, history []chat.Message, epoch uint64) (err error) {
	defer func() {
		s.loading.Store(false)
		s.publish()
		if err == nil {
			s.listener.ScrollToLatest()
		}
	}()

	req := gateway.Request{
		Message:  question,
		History:  gateway.HistoryFrom(history),
		UserType: s.identity.UserType,
		UserData: s.identity.UserData,
	}

	start := time.Now()
	reply, err := s.completer.Complete(ctx, req)
	if err != nil {
		observability.ChatCyclesTotal.WithLabelValues("failed").Inc()
		s.log.Error("request cycle failed", "err", err, "elapsed", time.Since(start))
		s.listener.Notify(chat.NoticeGenerateFailed)
		return fmt.Errorf("request cycle: %w", err)
	}

	if _, ok := s.store.AppendIfEpoch(epoch, chat.RoleAssistant, reply); !ok {
		observability.ChatCyclesTotal.WithLabelValues("discarded").Inc()
		s.log.Info("reply discarded after reset")
		return nil
	}
	observability.ChatCyclesTotal.WithLabelValues("ok").Inc()
	s.log.Info("request cycle completed", "length", len(reply), "elapsed", time.Since(start))
	return nil
}

// Messages returns a copy of the history.
func (s *Session) Messages() []chat.Message {
	return s.store.Messages()
}

// Snapshot reports what the caller should render.
func (s *Session) Snapshot() chat.Snapshot {
	messages := s.store.Messages()
	input := s.Input()
	loading := s.loading.Load()
	listening := s.capture.Listening()

	return chat.Snapshot{
		SessionID:     s.id,
		Messages:      messages,
		Input:         input,
		Loading:       loading,
		Listening:     listening,
		Speaking:      s.playback.Speaking(),
		SpeakingID:    s.playback.SpeakingID(),
		CanSubmit:     strings.TrimSpace(input) != "" && !loading && !listening,
		CanRegenerate: len(messages) > 1 && !loading,
		CanClear:      len(messages) > 1,
		CanExport:     len(messages) > 1,
	}
}

// ToggleListening starts or stops speech capture.
func (s *Session) ToggleListening() error {
	if s.loading.Load() && !s.capture.Listening() {
		return ErrCycleInFlight
	}
	if err := s.capture.Toggle(s.ctx); err != nil && !errors.Is(err, speech.ErrUnsupported) {
		return err
	}
	return nil
}

// FeedAudio forwards a chunk of microphone audio to the running recognition.
func (s *Session) FeedAudio(audio []byte) error {
	return s.capture.Feed(audio)
}

// Speak reads a message aloud, or stops the current utterance.
func (s *Session) Speak(messageID string) error {
	msg, ok := s.store.Find(messageID)
	if !ok && !s.playback.Speaking() {
		return ErrMessageNotFound
	}
	if err := s.playback.Speak(s.ctx, msg.ID, msg.Content); err != nil && !errors.Is(err, speech.ErrUnsupported) {
		return err
	}
	return nil
}

// Copy returns the content of a message for the caller's clipboard.
func (s *Session) Copy(messageID string) (string, error) {
	msg, ok := s.store.Find(messageID)
	if !ok {
		s.listener.Notify(chat.NoticeCopyFailed)
		return "", ErrMessageNotFound
	}
	s.listener.Notify(chat.NoticeCopied)
	return msg.Content, nil
}

// Export renders the transcript.
func (s *Session) Export() (*export.Artifact, error) {
	artifact, err := s.exporter.Export(s.store.Messages())
	if errors.Is(err, export.ErrNothingToExport) {
		s.listener.Notify(chat.NoticeNothingToExport)
		return nil, err
	}
	if err != nil {
		s.log.Error("export failed", "err", err)
		return nil, fmt.Errorf("export transcript: %w", err)
	}
	s.listener.Notify(chat.NoticeExported)
	return artifact, nil
}

// Close stops speech activity and releases the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.capture.Close()
		s.playback.Cancel()
		s.cancel()
		observability.SessionsActive.Dec()
	})
}

// Notify forwards an adapter notification to the listener.
func (s *Session) Notify(n chat.Notification) {
	s.listener.Notify(n)
}

// Refresh republishes state after an adapter transition.
func (s *Session) Refresh() {
	s.publish()
}

func (s *Session) publish() {
	s.touch()
	s.listener.StateChanged(s.Snapshot())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive is the time of the latest state change or lookup.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) idleExpired(now time.Time) bool {
	if s.idleTimeout <= 0 || s.loading.Load() {
		return false
	}
	return now.Sub(s.LastActive()) > s.idleTimeout
}
