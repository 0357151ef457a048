package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/askislamically/backend/internal/logging"
	speechmodel "github.com/askislamically/backend/internal/model/speech"
	speechsvc "github.com/askislamically/backend/internal/service/speech"
	"github.com/askislamically/backend/pkg/utils"
)

const maxAudioBytes = 16 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Synthesize(ctx context.Context, text, voice, locale string) (*speechsvc.Audio, error)
	TranscribeReader(ctx context.Context, r io.Reader, opts speechsvc.TranscribeOptions) (speechsvc.Result, error)
	Health() speechmodel.HealthResponse
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	log       *log.Logger
}

func New(speechSvc SpeechService) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		log:       logging.For("speech-http"),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(sr chi.Router) {
		sr.Post("/synthesize", h.handleSynthesize)
		sr.Post("/transcribe", h.handleTranscribe)
		sr.Get("/health", h.handleHealth)
	})
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// handleTranscribe takes raw 16kHz 16-bit mono PCM as the request body.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	res, err := h.speechSvc.TranscribeReader(r.Context(), io.LimitReader(r.Body, maxAudioBytes), speechsvc.TranscribeOptions{
		Language: language,
	})
	if err != nil {
		h.respondSpeechError(w, "recognition", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcribeResponse{Text: res.Transcript()})
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speechmodel.SynthesizeRequest
	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.speechSvc.Synthesize(r.Context(), req.Text, req.Voice, req.Locale)
	if err != nil {
		h.respondSpeechError(w, "synthesis", err)
		return
	}

	format := audio.Format
	if format == "" {
		format = "mpeg"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+audio.Format)
	if audio.Duration > 0 {
		w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(audio.Duration.Milliseconds(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		h.log.Warn("write audio response", "err", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.speechSvc.Health())
}

func (h *Handler) respondSpeechError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, speechsvc.ErrUnsupported) {
		utils.RespondError(w, http.StatusNotImplemented, "speech "+what+" is not configured")
		return
	}
	h.log.Error("speech request failed", "op", what, "err", err)
	utils.RespondError(w, http.StatusBadGateway, "speech "+what+" failed")
}
