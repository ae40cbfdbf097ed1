package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"chat-relay/internal/handlers"
	"chat-relay/internal/middleware"
)

// New builds the HTTP surface. chatHandlers is keyed by variant name; the
// defaultProvider variant is additionally served at /chat. jwtAuth may be
// nil, in which case the chat routes are open.
func New(
	logger zerolog.Logger,
	jwtAuth *middleware.JWTAuth,
	rootHandler *handlers.RootHandler,
	chatHandlers map[string]*handlers.ChatHandler,
	defaultProvider string,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/", rootHandler.Welcome)
	r.Get("/health", rootHandler.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// ──── Chat Routes ────
	if h, ok := chatHandlers[defaultProvider]; ok {
		r.Route("/chat", chatRoutes(jwtAuth, h))
	}
	for name, h := range chatHandlers {
		r.Route("/"+name+"/chat", chatRoutes(jwtAuth, h))
	}

	return r
}

func chatRoutes(jwtAuth *middleware.JWTAuth, h *handlers.ChatHandler) func(chi.Router) {
	return func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware)
		}
		r.Post("/respond", h.Respond)
	}
}
