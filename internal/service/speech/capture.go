package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
)

var (
	// ErrUnsupported is returned by adapters whose engine is unavailable.
	ErrUnsupported = errors.New("speech capability not supported")
	// ErrNotListening is returned when audio arrives while no recognition is running.
	ErrNotListening = errors.New("speech recognition is not running")
)

// Host is the session side of a capability adapter.
type Host interface {
	// SetTranscript writes recognised text into the input slot.
	SetTranscript(text string)
	Notify(n chat.Notification)
	Refresh()
}

// Result is one recognition update. Segments hold the best alternative of every
// result recognised so far in the utterance.
type Result struct {
	Segments []string
	Final    bool
}

// Transcript joins the segments into the text shown in the input slot.
func (r Result) Transcript() string {
	return strings.Join(r.Segments, "")
}

// RecognitionOptions configures one recognition stream.
type RecognitionOptions struct {
	Language   string
	SampleRate int
	Interim    bool
	Continuous bool
}

// RecognitionHandler receives stream events. OnEnd fires once after a stream that
// did not fail has delivered its final result.
type RecognitionHandler struct {
	OnResult func(Result)
	OnError  func(error)
	OnEnd    func()
}

// RecognitionStream is a running recognition.
type RecognitionStream interface {
	Write(audio []byte) error
	Finish() error
	Abort()
}

// Recognizer opens streaming speech recognition.
type Recognizer interface {
	Open(ctx context.Context, opts RecognitionOptions, handler RecognitionHandler) (RecognitionStream, error)
}

// Capture turns microphone audio into pending input text.
type Capture interface {
	Supported() bool
	Listening() bool
	Start(ctx context.Context) error
	Stop() error
	Toggle(ctx context.Context) error
	Feed(audio []byte) error
	// Detach drops any result still in flight from a stopped stream, so the
	// input slot stays as the user left it.
	Detach()
	Close()
}

// NewCapture picks the adapter once: a nil recognizer yields the unsupported variant.
func NewCapture(recognizer Recognizer, host Host, opts RecognitionOptions) Capture {
	if recognizer == nil {
		return unsupportedCapture{host: host}
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	opts.Interim = true
	opts.Continuous = true
	return &recognizerCapture{
		recognizer: recognizer,
		host:       host,
		opts:       opts,
		log:        logging.For("capture"),
	}
}

type unsupportedCapture struct {
	host Host
}

func (unsupportedCapture) Supported() bool { return false }
func (unsupportedCapture) Listening() bool { return false }
func (unsupportedCapture) Stop() error     { return nil }
func (unsupportedCapture) Detach()         {}
func (unsupportedCapture) Close()          {}

func (u unsupportedCapture) Start(context.Context) error {
	u.host.Notify(chat.NoticeRecognitionUnsupported)
	return ErrUnsupported
}

func (u unsupportedCapture) Toggle(ctx context.Context) error {
	return u.Start(ctx)
}

func (unsupportedCapture) Feed([]byte) error {
	return ErrUnsupported
}

type recognizerCapture struct {
	recognizer Recognizer
	host       Host
	opts       RecognitionOptions
	log        *log.Logger

	mu         sync.Mutex
	stream     RecognitionStream
	opening    bool
	generation uint64
}

func (c *recognizerCapture) Supported() bool { return true }

func (c *recognizerCapture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil || c.opening
}

func (c *recognizerCapture) Toggle(ctx context.Context) error {
	if c.Listening() {
		return c.Stop()
	}
	return c.Start(ctx)
}

func (c *recognizerCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil || c.opening {
		c.mu.Unlock()
		return nil
	}
	c.opening = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	c.host.Refresh()

	stream, err := c.recognizer.Open(ctx, c.opts, c.handlerFor(gen))

	c.mu.Lock()
	c.opening = false
	if err != nil {
		c.mu.Unlock()
		c.log.Error("open recognition failed", "err", err)
		c.host.Notify(chat.NoticeRecognitionFailed)
		c.host.Refresh()
		return fmt.Errorf("open recognition: %w", err)
	}
	if c.generation != gen {
		// Closed while the stream was being opened.
		c.mu.Unlock()
		stream.Abort()
		return nil
	}
	c.stream = stream
	c.mu.Unlock()

	c.host.Notify(chat.NoticeListening)
	c.host.Refresh()
	return nil
}

// Stop ends listening right away and lets the stream deliver its final result in
// the background. The final result still lands in the input unless the session
// detaches first (edit, submit or clear).
func (c *recognizerCapture) Stop() error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}
	c.host.Refresh()

	go func() {
		if err := stream.Finish(); err != nil {
			c.log.Warn("finish recognition failed", "err", err)
		}
	}()
	return nil
}

func (c *recognizerCapture) Feed(audio []byte) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	if stream == nil {
		return ErrNotListening
	}
	return stream.Write(audio)
}

func (c *recognizerCapture) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil && !c.opening {
		c.generation++
	}
}

func (c *recognizerCapture) Close() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.generation++
	c.mu.Unlock()

	if stream != nil {
		stream.Abort()
	}
}

func (c *recognizerCapture) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *recognizerCapture) handlerFor(gen uint64) RecognitionHandler {
	return RecognitionHandler{
		OnResult: func(res Result) {
			if !c.current(gen) {
				return
			}
			c.host.SetTranscript(res.Transcript())
		},
		OnError: func(err error) {
			c.mu.Lock()
			if c.generation != gen {
				c.mu.Unlock()
				return
			}
			stream := c.stream
			c.stream = nil
			c.generation++
			c.mu.Unlock()

			if stream != nil {
				stream.Abort()
			}
			c.log.Error("recognition failed", "err", err)
			c.host.Notify(chat.NoticeRecognitionFailed)
			c.host.Refresh()
		},
		OnEnd: func() {
			c.mu.Lock()
			if c.generation != gen || c.stream == nil {
				c.mu.Unlock()
				return
			}
			c.stream = nil
			c.mu.Unlock()
			c.host.Refresh()
		},
	}
}
