package session

import (
	"time"

	"github.com/bytedance/sonic"
)

var codec = sonic.ConfigStd

// Inbound frame types.
const (
	TypeInput      = "input"
	TypeSubmit     = "submit"
	TypeRegenerate = "regenerate"
	TypeClear      = "clear"
	TypeListen     = "listen"
	TypeAudio      = "audio"
	TypeSpeak      = "speak"
	TypePlayed     = "played"
	TypeCopy       = "copy"
	TypeExport     = "export"
)

// Outbound frame types. audio, copy and export reuse the inbound names.
const (
	TypeState     = "state"
	TypeNotice    = "notice"
	TypeScroll    = "scroll"
	TypeFocus     = "focus"
	TypeAudioStop = "audio_stop"
	TypeError     = "error"
)

// Inbound is a client command. Only the fields its type needs are set.
type Inbound struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
	UtteranceID string `json:"utteranceId,omitempty"`
	Audio       []byte `json:"audio,omitempty"` // base64 on the wire
}

// Outbound is a server event.
type Outbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// AudioData carries one synthesized utterance.
type AudioData struct {
	UtteranceID string `json:"utteranceId"`
	Format      string `json:"format"`
	Audio       []byte `json:"audio"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

type CopyData struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type ExportData struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

type ErrorData struct {
	Command string `json:"command,omitempty"`
	Message string `json:"message"`
}

func decodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	err := codec.Unmarshal(data, &in)
	return in, err
}

func encodeOutbound(sessionID, typ string, data any) ([]byte, error) {
	return codec.Marshal(Outbound{
		Type:      typ,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}
