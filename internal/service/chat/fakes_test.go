package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	chatmodel "github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/service/gateway"
	"github.com/askislamically/backend/internal/service/speech"
)

type fakeCompleter struct {
	mu       sync.Mutex
	requests []gateway.Request
	calls    int
	err      error
	started  chan struct{}
	release  chan struct{}
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{}
}

// blocking makes every call wait for release.
func (f *fakeCompleter) blocking() *fakeCompleter {
	f.started = make(chan struct{}, 8)
	f.release = make(chan struct{})
	return f
}

func (f *fakeCompleter) Complete(ctx context.Context, req gateway.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.calls++
	n := f.calls
	err := f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("answer %d to %s", n, req.Message), nil
}

func (f *fakeCompleter) lastRequest(t *testing.T) gateway.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("gateway was never called")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingListener struct {
	mu      sync.Mutex
	states  []chatmodel.Snapshot
	notices []chatmodel.Notification
	scrolls int
	focuses int
}

func (l *recordingListener) StateChanged(s chatmodel.Snapshot) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *recordingListener) Notify(n chatmodel.Notification) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

func (l *recordingListener) ScrollToLatest() {
	l.mu.Lock()
	l.scrolls++
	l.mu.Unlock()
}

func (l *recordingListener) FocusInput() {
	l.mu.Lock()
	l.focuses++
	l.mu.Unlock()
}

func (l *recordingListener) noticeCount(n chatmodel.Notification) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, got := range l.notices {
		if got == n {
			count++
		}
	}
	return count
}

func (l *recordingListener) totalNotices() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.notices)
}

type fakeStream struct {
	mu       sync.Mutex
	handler  speech.RecognitionHandler
	written  int
	finished bool
	aborted  bool
}

func (s *fakeStream) Write(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += len(audio)
	return nil
}

func (s *fakeStream) Finish() error {
	s.mu.Lock()
	s.finished = true
	handler := s.handler
	s.mu.Unlock()
	if handler.OnEnd != nil {
		handler.OnEnd()
	}
	return nil
}

func (s *fakeStream) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
}

func (s *fakeStream) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

type fakeRecognizer struct {
	mu      sync.Mutex
	streams []*fakeStream
	openErr error
}

func (r *fakeRecognizer) Open(_ context.Context, opts speech.RecognitionOptions, handler speech.RecognitionHandler) (speech.RecognitionStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	if !opts.Interim || !opts.Continuous {
		return nil, errors.New("recognition must be continuous with interim results")
	}
	stream := &fakeStream{handler: handler}
	r.streams = append(r.streams, stream)
	return stream, nil
}

func (r *fakeRecognizer) last() *fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[len(r.streams)-1]
}

type fakeSynth struct {
	mu      sync.Mutex
	locales []string
	err     error
}

func (f *fakeSynth) Synthesize(_ context.Context, req speech.SynthesisRequest) (*speech.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locales = append(f.locales, req.Locale)
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Audio{Data: []byte(req.Text), Format: "mp3"}, nil
}

// blockingSink plays until the test releases it or the utterance is cancelled.
type blockingSink struct {
	playing   chan string
	release   chan struct{}
	cancelled chan string
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		playing:   make(chan string, 4),
		release:   make(chan struct{}),
		cancelled: make(chan string, 4),
	}
}

func (s *blockingSink) Play(ctx context.Context, id string, _ *speech.Audio) error {
	s.playing <- id
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		s.cancelled <- id
		return ctx.Err()
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
