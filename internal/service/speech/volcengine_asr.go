package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/askislamically/backend/internal/logging"
	speechmodel "github.com/askislamically/backend/internal/model/speech"
)

const (
	// 双向流式模式（优化版本），returns interim results while audio is still arriving.
	defaultASREndpoint   = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"
	defaultASRResourceID = "volc.bigasr.sauc.duration"

	asrCodeOK      = 20000000
	finishDeadline = 10 * time.Second
)

// ErrStreamFinished is returned when audio is written after Finish or Abort.
var ErrStreamFinished = errors.New("recognition stream already finished")

// VolcengineRecognizer streams microphone audio to the Volcengine bigmodel ASR.
type VolcengineRecognizer struct {
	config   *speechmodel.SpeechConfig
	endpoint string
	dial     DialOptions
	log      *log.Logger
}

// NewVolcengineRecognizer 创建流式识别器
func NewVolcengineRecognizer(cfg *speechmodel.SpeechConfig) (*VolcengineRecognizer, error) {
	if _, _, err := resolveCredentials(cfg); err != nil {
		return nil, err
	}
	endpoint := cfg.ASREndpoint
	if endpoint == "" {
		endpoint = defaultASREndpoint
	}
	return &VolcengineRecognizer{
		config:   cfg,
		endpoint: endpoint,
		dial:     defaultDialOptions(cfg.Timeout),
		log:      logging.For("asr"),
	}, nil
}

// asrRequest 火山引擎ASR请求结构
type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

func (r *VolcengineRecognizer) buildRequest(uid string, opts RecognitionOptions) *asrRequest {
	req := &asrRequest{}
	req.User.UID = uid

	req.Audio.Language = opts.Language
	if req.Audio.Language == "" {
		req.Audio.Language = r.config.ASRLanguage
	}
	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = opts.SampleRate
	if req.Audio.Rate == 0 {
		req.Audio.Rate = 16000
	}
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full" // 全量返回结果
	if !opts.Continuous {
		req.Request.EndWindowSize = 800 // 强制判停时间
	}
	return req
}

// Open dials the service, sends the request header and starts the receive loop.
// Results arrive on handler until the final packet, an error, or Abort.
func (r *VolcengineRecognizer) Open(ctx context.Context, opts RecognitionOptions, handler RecognitionHandler) (RecognitionStream, error) {
	appID, token, err := resolveCredentials(r.config)
	if err != nil {
		return nil, err
	}
	resourceID := r.config.ASRResourceID
	if resourceID == "" {
		resourceID = defaultASRResourceID
	}
	header, connectID := volcengineHeaders(appID, token, resourceID)

	conn, err := dialWithRetry(ctx, r.endpoint, header, r.dial)
	if err != nil {
		return nil, fmt.Errorf("connect asr: %w", err)
	}

	frame, err := newFullClientRequest(r.buildRequest(connectID, opts))
	if err == nil {
		err = conn.WriteMessage(websocket.BinaryMessage, frame.Marshal())
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("send asr request: %w", err)
	}

	// The stream outlives the caller's request context; Abort ends it.
	streamCtx, cancel := context.WithCancel(context.Background())
	s := &volcengineStream{
		conn:      conn,
		handler:   handler,
		connectID: connectID,
		seq:       1, // FullClientRequest 占用序号1，音频从2开始
		cancel:    cancel,
		done:      make(chan struct{}),
		log:       r.log,
	}
	conn.SetReadDeadline(time.Now().Add(r.dial.ReadTimeout))
	go keepAlive(streamCtx, conn, r.dial)
	go s.receive(r.dial.ReadTimeout)

	r.log.Debug("recognition opened", "connect_id", connectID, "language", opts.Language)
	return s, nil
}

type volcengineStream struct {
	conn      *websocket.Conn
	handler   RecognitionHandler
	connectID string
	cancel    context.CancelFunc
	done      chan struct{}
	log       *log.Logger

	writeMu  sync.Mutex
	seq      int32
	finished bool

	closed atomic.Bool
}

// Write sends one audio-only packet.
func (s *volcengineStream) Write(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.finished || s.closed.Load() {
		return ErrStreamFinished
	}
	s.seq++
	return s.send(audio, false)
}

// Finish sends the last packet and waits for the final transcript.
func (s *volcengineStream) Finish() error {
	s.writeMu.Lock()
	if s.finished || s.closed.Load() {
		s.writeMu.Unlock()
		return nil
	}
	s.finished = true
	s.seq++
	err := s.send(nil, true)
	s.writeMu.Unlock()

	if err != nil {
		s.Abort()
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(finishDeadline):
		s.Abort()
		return fmt.Errorf("no final asr result after %s", finishDeadline)
	}
}

func (s *volcengineStream) Abort() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
		s.conn.Close()
	}
}

func (s *volcengineStream) send(audio []byte, last bool) error {
	frame, err := newAudioFrame(audio, s.seq, last)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()); err != nil {
		return fmt.Errorf("send audio packet %d: %w", s.seq, err)
	}
	return nil
}

func (s *volcengineStream) receive(readTimeout time.Duration) {
	defer close(s.done)
	defer s.Abort()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read asr response: %w", err))
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		frame, err := ParseFrame(data)
		if err != nil {
			s.fail(err)
			return
		}

		switch frame.Type {
		case ErrorMessage:
			body, _ := frame.Body()
			s.fail(fmt.Errorf("asr error %d: %s", frame.ErrorCode, body))
			return

		case FullServerResponse:
			body, err := frame.Body()
			if err != nil {
				s.fail(err)
				return
			}
			var msg asrServerMessage
			if err := jsonAPI.Unmarshal(body, &msg); err != nil {
				s.log.Warn("skip undecodable asr response", "connect_id", s.connectID, "err", err)
				continue
			}
			if msg.Code != 0 && msg.Code != asrCodeOK {
				s.fail(fmt.Errorf("asr api error %d: %s", msg.Code, msg.Message))
				return
			}

			final := frame.IsLast() || msg.Sequence < 0
			if s.closed.Load() {
				return
			}
			if s.handler.OnResult != nil {
				s.handler.OnResult(Result{Segments: transcriptSegments(msg), Final: final})
			}
			if final {
				s.log.Debug("recognition finished", "connect_id", s.connectID, "audio_ms", msg.AudioInfo.Duration)
				if s.closed.CompareAndSwap(false, true) {
					s.cancel()
					s.conn.Close()
				}
				if s.handler.OnEnd != nil {
					s.handler.OnEnd()
				}
				return
			}
		}
	}
}

// fail reports err unless the stream was closed on purpose.
func (s *volcengineStream) fail(err error) {
	if s.closed.Load() {
		return
	}
	s.log.Error("recognition failed", "connect_id", s.connectID, "err", err)
	if s.handler.OnError != nil {
		s.handler.OnError(err)
	}
}

// transcriptSegments maps utterances to result segments. Later segments carry the
// separating space so that joining them yields readable text.
func transcriptSegments(msg asrServerMessage) []string {
	if len(msg.Result.Utterances) == 0 {
		if msg.Result.Text == "" {
			return nil
		}
		return []string{msg.Result.Text}
	}

	segments := make([]string, 0, len(msg.Result.Utterances))
	for i, u := range msg.Result.Utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		if i > 0 && len(segments) > 0 {
			text = " " + text
		}
		segments = append(segments, text)
	}
	return segments
}
