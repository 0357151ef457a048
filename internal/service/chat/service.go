package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/service/gateway"
)

var (
	ErrCompleterRequired = errors.New("completion gateway is required")
	ErrSessionNotFound   = errors.New("session not found")
)

// Service keeps the live sessions of this process so they can be looked up by id.
type Service struct {
	completer gateway.Completer
	defaults  Options
	log       *log.Logger

	mu         sync.RWMutex
	sessions   map[string]*Session
	closeHooks []func(sessionID string)
}

// NewService builds the registry. defaults supplies the engines and settle delay
// every new session starts with.
func NewService(completer gateway.Completer, defaults Options) *Service {
	return &Service{
		completer: completer,
		defaults:  defaults,
		log:       logging.For("sessions"),
		sessions:  make(map[string]*Session),
	}
}

// OnClose registers fn to run after any session is closed, whether explicitly,
// by the idle sweep or at shutdown.
func (s *Service) OnClose(fn func(sessionID string)) {
	s.mu.Lock()
	s.closeHooks = append(s.closeHooks, fn)
	s.mu.Unlock()
}

// Open creates a session. Fields set in override replace the defaults.
func (s *Service) Open(_ context.Context, identity chat.Identity, override Options) (*Session, error) {
	if s.completer == nil {
		return nil, ErrCompleterRequired
	}

	opts := s.defaults
	if override.Listener != nil {
		opts.Listener = override.Listener
	}
	if override.AudioSink != nil {
		opts.AudioSink = override.AudioSink
	}
	if override.SettleDelay > 0 {
		opts.SettleDelay = override.SettleDelay
	}
	if override.RecognitionLanguage != "" {
		opts.RecognitionLanguage = override.RecognitionLanguage
	}
	if override.IdleTimeout != 0 {
		opts.IdleTimeout = override.IdleTimeout
	}

	session := NewSession(identity, s.completer, opts)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	return session, nil
}

// Get returns a live session.
func (s *Service) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

// Close discards a session.
func (s *Service) Close(sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		s.finish(session)
	}
}

func (s *Service) finish(session *Session) {
	session.Close()

	s.mu.RLock()
	hooks := s.closeHooks
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(session.ID())
	}
}

// Sweep closes sessions that have been idle past their timeout and returns how
// many it closed. A session with a cycle in flight is never idle.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.idleExpired(now) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		s.log.Info("closing idle session", "session", session.ID(), "last_active", session.LastActive())
		s.finish(session)
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every live session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		s.finish(session)
	}
}
