// Package message serves the completion gateway endpoint used by chat sessions.
package message

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/service/gateway"
	"github.com/askislamically/backend/pkg/utils"
)

const (
	errMethodNotAllowed = "Method Not Allowed"
	errBackend          = "Error communicating with the AI API"

	maxBodyBytes = 1 << 20
)

// Handler answers POST /message with the configured completer.
type Handler struct {
	completer gateway.Completer
	log       *log.Logger
}

func New(completer gateway.Completer) *Handler {
	return &Handler{
		completer: completer,
		log:       logging.For("message"),
	}
}

// RegisterRoutes 注册网关路由。Every method is routed here so that anything but POST
// gets the 405 body clients expect.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/message", h.handleMessage)
}

type messagePayload struct {
	Message  string                `json:"message"`
	History  []gateway.HistoryItem `json:"history"`
	UserType string                `json:"userType"`
	UserData *chat.UserData        `json:"userData"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}

	var payload messagePayload
	if err := sonic.ConfigStd.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	userType, err := chat.ParseUserType(payload.UserType)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.completer.Complete(r.Context(), gateway.Request{
		Message:  payload.Message,
		History:  payload.History,
		UserType: userType,
		UserData: payload.UserData,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			h.log.Warn("client went away before the reply", "err", err)
		} else {
			h.log.Error("completion failed", "err", err)
		}
		utils.RespondError(w, http.StatusInternalServerError, errBackend)
		return
	}

	utils.RespondJSON(w, http.StatusOK, gateway.Response{Response: reply})
}
