package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	speechmodel "github.com/askislamically/backend/internal/model/speech"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSpeechConfig() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:        "app",
		AccessToken:  "token",
		ASRLanguage:  "en-US",
		VoiceEnglish: "en_voice",
		VoiceArabic:  "ar_voice",
		Timeout:      5 * time.Second,
	}
}

func gzipJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := jsonAPI.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := gzipBytes(raw)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	return out
}

func asrReply(t *testing.T, seq int32, final bool, texts ...string) []byte {
	var msg asrServerMessage
	msg.Code = asrCodeOK
	for _, text := range texts {
		msg.Result.Utterances = append(msg.Result.Utterances, asrUtterance{Text: text, Definite: final})
	}
	flags := PositiveSequenceNumber
	if final {
		flags = NegativeSequenceNumber
		seq = -seq
	}
	frame := &Frame{
		Type:          FullServerResponse,
		Flags:         flags,
		Sequence:      seq,
		Serialization: JSONSerialization,
		Compression:   GzipCompression,
		Payload:       gzipJSON(t, msg),
	}
	return frame.Marshal()
}

// fakeASR answers every audio packet with an interim result and the last one with
// the final transcript.
type fakeASR struct {
	t *testing.T

	mu        sync.Mutex
	headers   http.Header
	language  string
	sequences []int32
	audio     int
}

func (f *fakeASR) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.headers = r.Header.Clone()
	f.mu.Unlock()

	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := ParseFrame(data)
		if err != nil {
			f.t.Errorf("parse client frame: %v", err)
			return
		}
		body, err := frame.Body()
		if err != nil {
			f.t.Errorf("client body: %v", err)
			return
		}

		switch frame.Type {
		case FullClientRequest:
			var req asrRequest
			if err := jsonAPI.Unmarshal(body, &req); err != nil {
				f.t.Errorf("decode request: %v", err)
				return
			}
			f.mu.Lock()
			f.language = req.Audio.Language
			f.mu.Unlock()

		case AudioOnlyRequest:
			f.mu.Lock()
			f.sequences = append(f.sequences, frame.Sequence)
			f.audio += len(body)
			f.mu.Unlock()

			if frame.IsLast() {
				_ = conn.WriteMessage(websocket.BinaryMessage, asrReply(f.t, -frame.Sequence, true, "hello", "world"))
				return
			}
			_ = conn.WriteMessage(websocket.BinaryMessage, asrReply(f.t, frame.Sequence, false, "hello"))
		}
	}
}

func TestVolcengineRecognizerStreamsResults(t *testing.T) {
	fake := &fakeASR{t: t}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testSpeechConfig()
	cfg.ASREndpoint = wsURL(srv)
	rec, err := NewVolcengineRecognizer(cfg)
	if err != nil {
		t.Fatalf("NewVolcengineRecognizer err: %v", err)
	}
	svc := NewServiceWith(rec, nil)

	var (
		mu      sync.Mutex
		interim []string
	)
	audio := make([]byte, pcmChunkSize*2+200)
	final, err := svc.TranscribeReader(context.Background(), bytes.NewReader(audio), TranscribeOptions{
		OnResult: func(res Result) {
			mu.Lock()
			interim = append(interim, res.Transcript())
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("TranscribeReader err: %v", err)
	}

	if !final.Final || final.Transcript() != "hello world" {
		t.Fatalf("unexpected final result %+v", final)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if want := []int32{2, 3, 4, -5}; !reflect.DeepEqual(fake.sequences, want) {
		t.Fatalf("sequences = %v, want %v", fake.sequences, want)
	}
	if fake.audio != len(audio) {
		t.Fatalf("server received %d bytes, want %d", fake.audio, len(audio))
	}
	if fake.language != "en-US" {
		t.Fatalf("language = %q", fake.language)
	}
	if fake.headers.Get("X-Api-App-Key") != "app" || fake.headers.Get("X-Api-Access-Key") != "token" {
		t.Fatalf("missing auth headers: %v", fake.headers)
	}
	if fake.headers.Get("X-Api-Resource-Id") != defaultASRResourceID {
		t.Fatalf("resource id = %q", fake.headers.Get("X-Api-Resource-Id"))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(interim) != 4 || interim[0] != "hello" {
		t.Fatalf("unexpected updates %v", interim)
	}
}

func TestVolcengineRecognizerReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		frame := &Frame{Type: ErrorMessage, ErrorCode: 45000081, Payload: []byte("quota exceeded")}
		_ = conn.WriteMessage(websocket.BinaryMessage, frame.Marshal())
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testSpeechConfig()
	cfg.ASREndpoint = wsURL(srv)
	rec, err := NewVolcengineRecognizer(cfg)
	if err != nil {
		t.Fatalf("NewVolcengineRecognizer err: %v", err)
	}

	errCh := make(chan error, 1)
	stream, err := rec.Open(context.Background(), RecognitionOptions{}, RecognitionHandler{
		OnError: func(err error) { errCh <- err },
		OnEnd:   func() { t.Error("OnEnd must not fire after an error") },
	})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer stream.Abort()

	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "quota exceeded") {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestVolcengineRecognizerAbortIsSilent(t *testing.T) {
	srv := httptest.NewServer(&fakeASR{t: t})
	defer srv.Close()

	cfg := testSpeechConfig()
	cfg.ASREndpoint = wsURL(srv)
	rec, _ := NewVolcengineRecognizer(cfg)

	stream, err := rec.Open(context.Background(), RecognitionOptions{}, RecognitionHandler{
		OnError: func(err error) { t.Errorf("unexpected OnError: %v", err) },
	})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	stream.Abort()
	if err := stream.Write([]byte{1, 2}); err != ErrStreamFinished {
		t.Fatalf("Write after Abort = %v", err)
	}
	// Give the receive loop time to observe the closed socket.
	time.Sleep(50 * time.Millisecond)
}

// fakeTTS rejects resourceMismatch with the mismatch error and otherwise streams
// one binary chunk plus one base64 chunk.
type fakeTTS struct {
	t                *testing.T
	resourceMismatch string

	mu        sync.Mutex
	resources []string
	speaker   string
	text      string
}

func (f *fakeTTS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := r.Header.Get("X-Api-Resource-Id")
	f.mu.Lock()
	f.resources = append(f.resources, resource)
	f.mu.Unlock()

	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	frame, err := ParseFrame(data)
	if err != nil {
		f.t.Errorf("parse request: %v", err)
		return
	}
	var req ttsRequest
	if err := jsonAPI.Unmarshal(frame.Payload, &req); err != nil {
		f.t.Errorf("decode request: %v", err)
		return
	}
	f.mu.Lock()
	f.speaker = req.ReqParams.Speaker
	f.text = req.ReqParams.Text
	f.mu.Unlock()

	if resource == f.resourceMismatch {
		msg := &Frame{Type: ErrorMessage, ErrorCode: 45000000, Payload: []byte(`{"error":"resource ID is mismatched with speaker related resource"}`)}
		_ = conn.WriteMessage(websocket.BinaryMessage, msg.Marshal())
		return
	}

	chunk := &Frame{Type: AudioOnlyServerResponse, Flags: WithEvent, Event: 352, SessionID: "s1", Payload: []byte("ID3")}
	_ = conn.WriteMessage(websocket.BinaryMessage, chunk.Marshal())

	payload := `{"code":0,"data":"` + base64.StdEncoding.EncodeToString([]byte("-mp3")) + `","addition":{"duration":"1500"}}`
	done := &Frame{Type: FullServerResponse, Flags: WithEvent, Event: EventTypeSessionFinished, SessionID: "s1", Serialization: JSONSerialization, Payload: []byte(payload)}
	_ = conn.WriteMessage(websocket.BinaryMessage, done.Marshal())
}

func TestVolcengineSynthesizerPicksArabicVoice(t *testing.T) {
	fake := &fakeTTS{t: t}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testSpeechConfig()
	cfg.TTSEndpoint = wsURL(srv)
	synth, err := NewVolcengineSynthesizer(cfg)
	if err != nil {
		t.Fatalf("NewVolcengineSynthesizer err: %v", err)
	}

	audio, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "بسم الله"})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(audio.Data) != "ID3-mp3" {
		t.Fatalf("audio = %q", audio.Data)
	}
	if audio.Format != "mp3" || audio.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected audio meta %+v", audio)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.speaker != "ar_voice" || fake.text != "بسم الله" {
		t.Fatalf("speaker=%q text=%q", fake.speaker, fake.text)
	}
}

func TestVolcengineSynthesizerFallsBackOnResourceMismatch(t *testing.T) {
	fake := &fakeTTS{t: t, resourceMismatch: "custom.resource"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testSpeechConfig()
	cfg.TTSEndpoint = wsURL(srv)
	cfg.TTSResourceID = "custom.resource"
	synth, _ := NewVolcengineSynthesizer(cfg)

	if _, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "Peace", Locale: LocaleEnglish}); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if want := []string{"custom.resource", ttsResourceDefault}; !reflect.DeepEqual(fake.resources, want) {
		t.Fatalf("resources tried = %v, want %v", fake.resources, want)
	}
	if fake.speaker != "en_voice" {
		t.Fatalf("speaker = %q", fake.speaker)
	}
}

func TestVolcengineSynthesizerRejectsEmptyText(t *testing.T) {
	synth, _ := NewVolcengineSynthesizer(testSpeechConfig())
	if _, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "  "}); err != ErrEmptyText {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestNewEnginesRequireCredentials(t *testing.T) {
	if _, err := NewVolcengineRecognizer(&speechmodel.SpeechConfig{AppID: "app"}); err != ErrMissingCredentials {
		t.Fatalf("recognizer: %v", err)
	}
	if _, err := NewVolcengineSynthesizer(nil); err != ErrMissingCredentials {
		t.Fatalf("synthesizer: %v", err)
	}

	svc, err := NewService(&speechmodel.SpeechConfig{}, Options{})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	if svc.Recognizer() != nil || svc.Synthesizer() != nil {
		t.Fatal("engines must be nil without credentials")
	}
	if h := svc.Health(); h.Recognition || h.Synthesis {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestServiceOptionsDisableEngines(t *testing.T) {
	svc, err := NewService(testSpeechConfig(), Options{DisableRecognition: true})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	if svc.Recognizer() != nil {
		t.Fatal("recognition should be disabled")
	}
	if svc.Synthesizer() == nil {
		t.Fatal("synthesis should stay enabled")
	}
}
