package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/askislamically/backend/internal/logging"
	speechmodel "github.com/askislamically/backend/internal/model/speech"
)

const (
	defaultTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	ttsResourceDefault = "volc.service_type.10029"
	ttsResourceMega    = "volc.megatts.default"
	ttsResourceSeed    = "seed-tts-2.0"

	ttsCodeOK         = 20000000
	ttsCodeSessionEnd = 3000
)

var (
	// ErrEmptyText is returned for a synthesis request without text.
	ErrEmptyText = errors.New("nothing to synthesize")
	// ErrEmptyAudio is returned when the service finished without sending audio.
	ErrEmptyAudio = errors.New("synthesized audio is empty")
)

// VolcengineSynthesizer 火山引擎单向流式语音合成
type VolcengineSynthesizer struct {
	config   *speechmodel.SpeechConfig
	endpoint string
	dial     DialOptions
	log      *log.Logger
}

func NewVolcengineSynthesizer(cfg *speechmodel.SpeechConfig) (*VolcengineSynthesizer, error) {
	if _, _, err := resolveCredentials(cfg); err != nil {
		return nil, err
	}
	endpoint := cfg.TTSEndpoint
	if endpoint == "" {
		endpoint = defaultTTSEndpoint
	}
	return &VolcengineSynthesizer{
		config:   cfg,
		endpoint: endpoint,
		dial:     defaultDialOptions(cfg.Timeout),
		log:      logging.For("tts"),
	}, nil
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

// VoiceFor returns the configured speaker for a locale.
func (s *VolcengineSynthesizer) VoiceFor(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "ar") && s.config.VoiceArabic != "" {
		return s.config.VoiceArabic
	}
	return s.config.VoiceEnglish
}

func (s *VolcengineSynthesizer) format() string {
	switch f := strings.TrimSpace(s.config.TTSFormat); f {
	case "", "wav":
		// 单向流式接口不支持 wav
		return "mp3"
	default:
		return f
	}
}

// Synthesize tries each speaker and resource candidate in turn, moving on only when
// the service reports that the resource does not match the speaker.
func (s *VolcengineSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	appID, token, err := resolveCredentials(s.config)
	if err != nil {
		return nil, err
	}

	locale := req.Locale
	if locale == "" {
		locale = LocaleFor(text)
	}
	speakers := resolveTTSSpeakerCandidates(req.Voice, s.VoiceFor(locale), s.config.VoiceEnglish)

	var lastMismatch error
	for _, speaker := range speakers {
		for _, resourceID := range resolveTTSResourceCandidates(s.config.TTSResourceID, speaker) {
			audio, err := s.synthesizeWith(ctx, appID, token, resourceID, speaker, text)
			if err == nil {
				return audio, nil
			}
			if !isResourceMismatchError(err) {
				return nil, err
			}
			s.log.Warn("resource mismatch, trying next candidate", "speaker", speaker, "resource", resourceID)
			lastMismatch = err
		}
	}
	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("no speaker configured for locale %s", locale)
}

func (s *VolcengineSynthesizer) synthesizeWith(ctx context.Context, appID, token, resourceID, speaker, text string) (*Audio, error) {
	header, connectID := volcengineHeaders(appID, token, resourceID)
	conn, err := dialWithRetry(ctx, s.endpoint, header, s.dial)
	if err != nil {
		return nil, fmt.Errorf("connect tts: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := &ttsRequest{}
	req.User.UID = connectID
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.AudioParams = ttsAudioParams{
		Format:          s.format(),
		SampleRate:      24000,
		EnableTimestamp: true,
	}
	if v := s.config.TTSSpeed; v > 0 && v != 1 {
		req.ReqParams.AudioParams.SpeedRatio = v
	}
	if v := s.config.TTSVolume; v > 0 && v != 1 {
		req.ReqParams.AudioParams.VolumeRatio = v
	}
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`

	raw, err := jsonAPI.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	frame := &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequenceNumber,
		Serialization: JSONSerialization,
		Payload:       raw,
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(s.dial.ReadTimeout))

	var (
		buf      bytes.Buffer
		duration time.Duration
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}
		frame, err := ParseFrame(data)
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case ErrorMessage:
			body, _ := frame.Body()
			return nil, fmt.Errorf("tts error %d: %s", frame.ErrorCode, body)

		case AudioOnlyServerResponse:
			chunk, err := frame.Body()
			if err != nil {
				return nil, err
			}
			buf.Write(chunk)

		case FullServerResponse:
			body, err := frame.Body()
			if err != nil {
				return nil, err
			}
			var msg ttsServerMessage
			if len(body) > 0 {
				if err := jsonAPI.Unmarshal(body, &msg); err != nil {
					s.log.Warn("skip undecodable tts response", "connect_id", connectID, "err", err)
				}
			}
			if msg.Code != 0 && msg.Code != ttsCodeOK && msg.Code != ttsCodeSessionEnd {
				return nil, fmt.Errorf("tts api error %d: %s", msg.Code, msg.Message)
			}
			if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
				duration = time.Duration(ms) * time.Millisecond
			}
			if msg.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					return nil, fmt.Errorf("decode audio chunk: %w", err)
				}
				buf.Write(chunk)
			}

			finished := frame.Flags&WithEvent != 0 && frame.Event == EventTypeSessionFinished
			if finished || frame.IsLast() || msg.Sequence < 0 {
				if buf.Len() == 0 {
					return nil, ErrEmptyAudio
				}
				s.log.Debug("synthesis finished", "speaker", speaker, "bytes", buf.Len())
				return &Audio{Data: buf.Bytes(), Format: s.format(), Duration: duration}, nil
			}
			if frame.Event == EventTypeSessionFailed {
				return nil, fmt.Errorf("tts session failed: %s", body)
			}
		}
	}
}

// resolveTTSResourceCandidates puts the configured resource first, then guesses
// from the speaker name.
func resolveTTSResourceCandidates(configured, voice string) []string {
	var out []string
	add := func(ids ...string) {
		for _, id := range ids {
			if id != "" && !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	add(strings.TrimSpace(configured))

	voice = strings.TrimSpace(voice)
	switch {
	case strings.HasPrefix(voice, "S_"):
		// 声音复刻
		add(ttsResourceMega)
	case isSeedVoice(voice):
		add(ttsResourceSeed, ttsResourceDefault)
	default:
		add(ttsResourceDefault, ttsResourceSeed)
	}
	return out
}

var seedHints = []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"}

func isSeedVoice(voice string) bool {
	normalized := strings.ToLower(voice)
	for _, hint := range seedHints {
		if strings.Contains(normalized, hint) {
			return true
		}
	}
	return false
}

// resolveTTSSpeakerCandidates keeps the order given and drops blanks and duplicates.
func resolveTTSSpeakerCandidates(voices ...string) []string {
	var out []string
	for _, v := range voices {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
