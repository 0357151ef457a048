// Package stream pushes chat session events to HTTP clients as Server-Sent Events.
package stream

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler manages session event streams.
type Handler struct {
	registry  *Registry
	heartbeat time.Duration
	log       *log.Logger
}

func New(registry *Registry) *Handler {
	return &Handler{
		registry:  registry,
		heartbeat: heartbeatInterval,
		log:       logging.For("stream"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/events/{sessionID}", h.handleEvents)
}

// handleEvents sends the current state, then every event until the client leaves
// or the session closes.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	b, ok := h.registry.Lookup(sessionID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, last, cancel := b.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if last != nil {
		if err := utils.SendSSEEvent(w, flusher, EventState, last); err != nil {
			return
		}
	} else {
		_ = utils.SendSSEComment(w, flusher, "connected")
	}

	h.log.Debug("stream opened", "session", sessionID)
	defer h.log.Debug("stream closed", "session", sessionID)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "ping"); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": sessionID})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, ev.Name, ev.Data); err != nil {
				h.log.Warn("stream write failed", "session", sessionID, "err", err)
				return
			}
		}
	}
}
