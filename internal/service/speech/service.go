package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/askislamically/backend/internal/logging"
	speechmodel "github.com/askislamically/backend/internal/model/speech"
)

// pcmChunkSize is 200ms of 16kHz 16-bit mono audio.
const pcmChunkSize = 6400

// Options switch individual engines off even when credentials are present.
type Options struct {
	DisableRecognition bool
	DisableSynthesis   bool
}

// Service 语音服务：持有已配置的识别与合成引擎。An engine left nil means the
// capability is unsupported and sessions fall back to the null adapters.
type Service struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	log         *log.Logger
}

// NewService builds the Volcengine engines. Missing credentials are not an error;
// the service then reports both capabilities as unsupported.
func NewService(cfg *speechmodel.SpeechConfig, opts Options) (*Service, error) {
	s := &Service{log: logging.For("speech")}
	if _, _, err := resolveCredentials(cfg); err != nil {
		s.log.Warn("speech engines disabled", "reason", err)
		return s, nil
	}

	if !opts.DisableRecognition {
		rec, err := NewVolcengineRecognizer(cfg)
		if err != nil {
			return nil, fmt.Errorf("asr: %w", err)
		}
		s.recognizer = rec
	}
	if !opts.DisableSynthesis {
		synth, err := NewVolcengineSynthesizer(cfg)
		if err != nil {
			return nil, fmt.Errorf("tts: %w", err)
		}
		s.synthesizer = synth
	}
	return s, nil
}

// NewServiceWith wraps existing engines. Either may be nil.
func NewServiceWith(recognizer Recognizer, synthesizer Synthesizer) *Service {
	return &Service{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		log:         logging.For("speech"),
	}
}

// Recognizer returns nil when recognition is unavailable.
func (s *Service) Recognizer() Recognizer {
	if s == nil || s.recognizer == nil {
		return nil
	}
	return s.recognizer
}

// Synthesizer returns nil when synthesis is unavailable.
func (s *Service) Synthesizer() Synthesizer {
	if s == nil || s.synthesizer == nil {
		return nil
	}
	return s.synthesizer
}

func (s *Service) Health() speechmodel.HealthResponse {
	return speechmodel.HealthResponse{
		Status:      "ok",
		Recognition: s.Recognizer() != nil,
		Synthesis:   s.Synthesizer() != nil,
	}
}

// Synthesize 文字转语音；locale 为空时按文本内容选择。
func (s *Service) Synthesize(ctx context.Context, text, voice, locale string) (*Audio, error) {
	synth := s.Synthesizer()
	if synth == nil {
		return nil, ErrUnsupported
	}
	if locale == "" {
		locale = LocaleFor(text)
	}
	return synth.Synthesize(ctx, SynthesisRequest{Text: text, Locale: locale, Voice: voice})
}

// TranscribeOptions controls TranscribeReader.
type TranscribeOptions struct {
	Language string
	// Pace is the delay between chunks; real-time PCM uses 200ms.
	Pace time.Duration
	// OnResult sees every interim update.
	OnResult func(Result)
}

// TranscribeReader streams raw 16kHz PCM from r through the recognizer and returns
// the last result once the service has finalized it.
func (s *Service) TranscribeReader(ctx context.Context, r io.Reader, opts TranscribeOptions) (Result, error) {
	rec := s.Recognizer()
	if rec == nil {
		return Result{}, ErrUnsupported
	}

	var (
		mu      sync.Mutex
		last    Result
		failure error
	)
	ended := make(chan struct{})
	var endOnce sync.Once
	end := func() { endOnce.Do(func() { close(ended) }) }

	stream, err := rec.Open(ctx, RecognitionOptions{Language: opts.Language, SampleRate: 16000, Interim: true}, RecognitionHandler{
		OnResult: func(res Result) {
			mu.Lock()
			last = res
			mu.Unlock()
			if opts.OnResult != nil {
				opts.OnResult(res)
			}
		},
		OnError: func(err error) {
			mu.Lock()
			failure = err
			mu.Unlock()
			end()
		},
		OnEnd: end,
	})
	if err != nil {
		return Result{}, err
	}

	buf := make([]byte, pcmChunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := stream.Write(buf[:n]); err != nil {
				stream.Abort()
				return Result{}, fmt.Errorf("stream audio: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			stream.Abort()
			return Result{}, fmt.Errorf("read audio: %w", readErr)
		}
		if opts.Pace > 0 {
			select {
			case <-ctx.Done():
				stream.Abort()
				return Result{}, ctx.Err()
			case <-time.After(opts.Pace):
			}
		}
	}

	if err := stream.Finish(); err != nil {
		return Result{}, err
	}
	select {
	case <-ended:
	case <-ctx.Done():
		stream.Abort()
		return Result{}, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if failure != nil {
		return Result{}, failure
	}
	return last, nil
}
