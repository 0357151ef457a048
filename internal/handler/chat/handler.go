// Package chat exposes chat sessions over plain HTTP for clients that do not keep
// a WebSocket open.
package chat

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/askislamically/backend/internal/handler/stream"
	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
	chatService "github.com/askislamically/backend/internal/service/chat"
	"github.com/askislamically/backend/internal/service/export"
	"github.com/askislamically/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	events  *stream.Registry
	log     *log.Logger
}

// New builds the handler. When events is non-nil every created session publishes
// to it so GET /chat/events/{sessionID} can follow the conversation.
func New(chatSvc *chatService.Service, events *stream.Registry) *Handler {
	if events != nil {
		chatSvc.OnClose(events.Remove)
	}
	return &Handler{
		chatSvc: chatSvc,
		events:  events,
		log:     logging.For("chat-http"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat/sessions", func(sr chi.Router) {
		sr.Post("/", h.handleCreateSession)
		sr.Route("/{sessionID}", func(one chi.Router) {
			one.Get("/", h.handleGetSession)
			one.Delete("/", h.handleCloseSession)
			one.Post("/messages", h.handleAsk)
			one.Post("/regenerate", h.handleRegenerate)
			one.Post("/reset", h.handleReset)
			one.Get("/messages/{messageID}", h.handleCopy)
			one.Get("/export", h.handleExport)
		})
	})
}

type createSessionPayload struct {
	UserName        string         `json:"userName"`
	UserType        string         `json:"userType"`
	InitialQuestion string         `json:"initialQuestion"`
	UserData        *chat.UserData `json:"userData"`
}

// handleCreateSession 创建会话。The initial question, if any, is sent in the
// background after the settle delay; poll the session to see the reply.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionPayload
	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identity, err := chat.NewIdentity(payload.UserName, payload.UserType, payload.InitialQuestion, payload.UserData)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts chatService.Options
	var broadcaster *stream.Broadcaster
	if h.events != nil {
		broadcaster = stream.NewBroadcaster()
		opts.Listener = broadcaster
	}
	session, err := h.chatSvc.Open(r.Context(), identity, opts)
	if err != nil {
		h.log.Error("open session failed", "err", err)
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if broadcaster != nil {
		h.events.Register(session.ID(), broadcaster)
	}

	go func() {
		if err := session.Start(context.WithoutCancel(r.Context())); err != nil {
			h.log.Warn("initial question failed", "session", session.ID(), "err", err)
		}
	}()

	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.chatSvc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return session, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.session(w, r); ok {
		utils.RespondJSON(w, http.StatusOK, session.Snapshot())
	}
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.session(w, r); ok {
		h.chatSvc.Close(session.ID())
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleAsk runs one request cycle and answers with the resulting state.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := session.Ask(r.Context(), payload.Message); err != nil {
		h.respondCycleError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Regenerate(r.Context()); err != nil {
		h.respondCycleError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.session(w, r); ok {
		session.Reset()
		utils.RespondJSON(w, http.StatusOK, session.Snapshot())
	}
}

func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	text, err := session.Copy(chi.URLParam(r, "messageID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"content": text})
}

// handleExport serves the transcript as a download.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	artifact, err := session.Export()
	if errors.Is(err, export.ErrNothingToExport) {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	WriteArtifact(w, artifact)
}

// WriteArtifact writes an export as an attachment.
func WriteArtifact(w http.ResponseWriter, artifact *export.Artifact) {
	w.Header().Set("Content-Type", artifact.ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Body)
}

func (h *Handler) respondCycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrEmptyInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrCycleInFlight),
		errors.Is(err, chatService.ErrListening),
		errors.Is(err, chatService.ErrNothingToRegenerate):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusBadGateway, chat.NoticeGenerateFailed.Description)
	}
}
