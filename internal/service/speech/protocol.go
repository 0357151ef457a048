package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制协议。
//
// Every frame starts with a 4-byte header:
//
//	byte 0: protocol version | header size (in 4-byte words)
//	byte 1: message type     | message flags
//	byte 2: serialization    | compression
//	byte 3: reserved
//
// followed by an optional sequence number, optional event metadata, a big-endian
// payload size and the payload.

const protocolVersion = 0b0001

// MessageType is the high nibble of header byte 1.
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// MessageFlags is the low nibble of header byte 1.
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011 // 最后一包，序号取负
	WithEvent              MessageFlags = 0b0100

	sequenceMask MessageFlags = 0b0011
)

// EventType tags frames on the event-carrying TTS protocol.
type EventType int32

const (
	EventTypeNone               EventType = 0
	EventTypeStartConnection    EventType = 1
	EventTypeFinishConnection   EventType = 2
	EventTypeConnectionStarted  EventType = 50
	EventTypeConnectionFailed   EventType = 51
	EventTypeConnectionFinished EventType = 52
	EventTypeSessionStarted     EventType = 150
	EventTypeSessionFinished    EventType = 152
	EventTypeSessionFailed      EventType = 153
)

type Serialization uint8

const (
	NoSerialization   Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

var errShortFrame = errors.New("speech frame too short")

// Frame is one decoded protocol message.
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression

	Sequence  int32
	Event     EventType
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

// IsLast reports whether the server marked this frame as the final one.
func (f *Frame) IsLast() bool {
	switch f.Flags & sequenceMask {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	}
	return f.Sequence < 0
}

func (f *Frame) IsError() bool {
	return f.Type == ErrorMessage
}

// Body returns the payload with compression removed.
func (f *Frame) Body() ([]byte, error) {
	if f.Compression != GzipCompression || len(f.Payload) == 0 {
		return f.Payload, nil
	}
	return gunzip(f.Payload)
}

func (f *Frame) hasSequence() bool {
	switch f.Flags & sequenceMask {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	}
	return false
}

// Marshal encodes the frame with a plain 4-byte header.
func (f *Frame) Marshal() []byte {
	buf := make([]byte, 0, 16+len(f.Payload)+len(f.SessionID)+len(f.ConnectID))
	buf = append(buf,
		protocolVersion<<4|0b0001,
		uint8(f.Type)<<4|uint8(f.Flags),
		uint8(f.Serialization)<<4|uint8(f.Compression),
		0x00,
	)

	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.Flags&WithEvent != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if !eventSkipsSessionID(f.Event) {
			buf = appendString(buf, f.SessionID)
		}
		if eventHasConnectID(f.Event) {
			buf = appendString(buf, f.ConnectID)
		}
	}
	if f.Type == ErrorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// ParseFrame decodes one binary WebSocket message.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, errShortFrame
	}
	if v := data[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", v)
	}

	f := &Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         MessageFlags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0F),
	}

	headerLen := int(data[0]&0x0F) * 4
	if headerLen < 4 || len(data) < headerLen {
		return nil, errShortFrame
	}
	r := &frameReader{buf: data[headerLen:]}

	if f.hasSequence() {
		f.Sequence = int32(r.uint32())
	}
	if f.Flags&WithEvent != 0 {
		f.Event = EventType(int32(r.uint32()))
		if !eventSkipsSessionID(f.Event) {
			f.SessionID = r.string()
		}
		if eventHasConnectID(f.Event) {
			f.ConnectID = r.string()
		}
	}
	if f.Type == ErrorMessage {
		f.ErrorCode = r.uint32()
	}
	size := r.uint32()
	f.Payload = r.bytes(int(size))

	if r.err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", f.Type, r.err)
	}
	return f, nil
}

type frameReader struct {
	buf []byte
	err error
}

func (r *frameReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.buf) {
		r.err = errShortFrame
		return nil
	}
	out := r.buf[:n:n]
	r.buf = r.buf[n:]
	return out
}

func (r *frameReader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *frameReader) string() string {
	return string(r.bytes(int(r.uint32())))
}

func (t MessageType) String() string {
	switch t {
	case FullClientRequest:
		return "full-client-request"
	case AudioOnlyRequest:
		return "audio-only-request"
	case FullServerResponse:
		return "full-server-response"
	case AudioOnlyServerResponse:
		return "audio-only-response"
	case ErrorMessage:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

func eventSkipsSessionID(event EventType) bool {
	switch event {
	case EventTypeStartConnection, EventTypeFinishConnection,
		EventTypeConnectionStarted, EventTypeConnectionFailed, EventTypeConnectionFinished:
		return true
	}
	return false
}

func eventHasConnectID(event EventType) bool {
	switch event {
	case EventTypeConnectionStarted, EventTypeConnectionFailed, EventTypeConnectionFinished:
		return true
	}
	return false
}

// newFullClientRequest wraps a gzip-compressed JSON request.
func newFullClientRequest(payload any) (*Frame, error) {
	raw, err := jsonAPI.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	body, err := gzipBytes(raw)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequenceNumber,
		Serialization: JSONSerialization,
		Compression:   GzipCompression,
		Payload:       body,
	}, nil
}

// newAudioFrame builds an audio-only packet. The last packet carries the negated
// sequence number.
func newAudioFrame(audio []byte, seq int32, last bool) (*Frame, error) {
	body, err := gzipBytes(audio)
	if err != nil {
		return nil, err
	}
	flags := PositiveSequenceNumber
	if last {
		flags = NegativeSequenceNumber
		seq = -seq
	}
	return &Frame{
		Type:        AudioOnlyRequest,
		Flags:       flags,
		Compression: GzipCompression,
		Sequence:    seq,
		Payload:     body,
	}, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}
