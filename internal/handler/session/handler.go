// Package session serves the interactive chat screen over a WebSocket: one
// conversation engine per connection.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/askislamically/backend/internal/logging"
	"github.com/askislamically/backend/internal/model/chat"
	chatService "github.com/askislamically/backend/internal/service/chat"
	"github.com/askislamically/backend/internal/service/export"
	"github.com/askislamically/backend/internal/service/speech"
	"github.com/askislamically/backend/pkg/utils"
)

// WebSocketHandler 会话 WebSocket 处理器
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
	log      *log.Logger
}

func New(chatSvc *chatService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logging.For("ws"),
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// handleWebSocket takes the identity from the query string:
// userName, userType, initialQuestion, profession, beliefs and language.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identity, err := chat.NewIdentity(q.Get("userName"), q.Get("userType"), q.Get("initialQuestion"), &chat.UserData{
		Profession: q.Get("profession"),
		Beliefs:    q.Get("beliefs"),
	})
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	cl := newClient(conn, h.log)
	defer cl.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := h.chatSvc.Open(ctx, identity, chatService.Options{
		Listener:            cl,
		AudioSink:           cl,
		RecognitionLanguage: q.Get("language"),
		IdleTimeout:         chatService.NoIdleTimeout,
	})
	if err != nil {
		cl.sendError("open", err)
		return
	}
	defer h.chatSvc.Close(sess.ID())
	cl.bind(sess.ID())

	logger := h.log.With("session", sess.ID())
	logger.Info("connection opened", "user_type", identity.UserType)

	var wg sync.WaitGroup
	defer wg.Wait()
	// Runs before wg.Wait so cycles still running see a cancelled context.
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("initial question failed", "err", err)
		}
	}()
	go cl.pingLoop(ctx)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", "err", err)
			}
			logger.Info("connection closed")
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		in, err := decodeInbound(data)
		if err != nil {
			cl.sendError("", errors.New("malformed frame"))
			continue
		}
		h.dispatch(ctx, &wg, sess, cl, in)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, wg *sync.WaitGroup, sess *chatService.Session, cl *client, in Inbound) {
	switch in.Type {
	case TypeInput:
		sess.SetInput(in.Text)

	case TypeSubmit:
		if in.Text != "" {
			sess.SetInput(in.Text)
		}
		runCycle(ctx, wg, cl, in.Type, sess.Submit)

	case TypeRegenerate:
		runCycle(ctx, wg, cl, in.Type, sess.Regenerate)

	case TypeClear:
		sess.Reset()

	case TypeListen:
		if err := sess.ToggleListening(); err != nil {
			cl.sendError(in.Type, err)
		}

	case TypeAudio:
		if err := sess.FeedAudio(in.Audio); err != nil && !errors.Is(err, speech.ErrNotListening) {
			cl.sendError(in.Type, err)
		}

	case TypeSpeak:
		if err := sess.Speak(in.MessageID); err != nil {
			cl.sendError(in.Type, err)
		}

	case TypePlayed:
		cl.ackPlayed(in.UtteranceID)

	case TypeCopy:
		content, err := sess.Copy(in.MessageID)
		if err != nil {
			return
		}
		_ = cl.send(TypeCopy, CopyData{MessageID: in.MessageID, Content: content})

	case TypeExport:
		artifact, err := sess.Export()
		if errors.Is(err, export.ErrNothingToExport) {
			return
		}
		if err != nil {
			cl.sendError(in.Type, err)
			return
		}
		_ = cl.send(TypeExport, ExportData{
			Filename:    artifact.Filename,
			ContentType: artifact.ContentType,
			Body:        string(artifact.Body),
		})

	default:
		cl.sendError(in.Type, errors.New("unknown command"))
	}
}

// runCycle runs a request cycle off the read loop so the connection stays
// responsive. Gateway failures were already surfaced as a notice.
func runCycle(ctx context.Context, wg *sync.WaitGroup, cl *client, command string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := fn(ctx)
		switch {
		case err == nil:
		case errors.Is(err, chatService.ErrCycleInFlight),
			errors.Is(err, chatService.ErrEmptyInput),
			errors.Is(err, chatService.ErrListening),
			errors.Is(err, chatService.ErrNothingToRegenerate):
			cl.sendError(command, err)
		}
	}()
}
