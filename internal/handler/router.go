package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askislamically/backend/internal/handler/chat"
	"github.com/askislamically/backend/internal/handler/message"
	"github.com/askislamically/backend/internal/handler/session"
	"github.com/askislamically/backend/internal/handler/speech"
	"github.com/askislamically/backend/internal/handler/stream"
	middlewarePkg "github.com/askislamically/backend/internal/middleware"
	"github.com/askislamically/backend/internal/observability"
	chatService "github.com/askislamically/backend/internal/service/chat"
	"github.com/askislamically/backend/internal/service/gateway"
	speechService "github.com/askislamically/backend/internal/service/speech"
	"github.com/askislamically/backend/pkg/utils"
)

// Services bundles what the HTTP layer serves. Gateway backs POST /api/message and
// may be nil when this process only hosts sessions against a remote gateway.
type Services struct {
	Gateway gateway.Completer
	Chat    *chatService.Service
	Speech  *speechService.Service
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(observability.MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			body := map[string]any{
				"status":   "ok",
				"gateway":  svc.Gateway != nil,
				"sessions": 0,
			}
			if svc.Chat != nil {
				body["sessions"] = svc.Chat.Count()
			}
			utils.RespondJSON(w, http.StatusOK, body)
		})

		if svc.Gateway != nil {
			message.New(svc.Gateway).RegisterRoutes(api)
		}
		if svc.Chat != nil {
			events := stream.NewRegistry()
			chat.New(svc.Chat, events).RegisterRoutes(api)
			stream.New(events).RegisterRoutes(api)
			session.New(svc.Chat).RegisterRoutes(api)
		}
		if svc.Speech != nil {
			speech.New(svc.Speech).RegisterRoutes(api)
		}
	})

	return r
}
