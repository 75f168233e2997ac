package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"livepage/internal/gateway/handler"
	"livepage/internal/gateway/handler/rpc"
	"livepage/internal/gateway/middleware"
)

func NewRouter(
	wsHandler *handler.WSHandler,
	adminHandler *rpc.AdminHandler,
	traceHandler *handler.TraceHandler,
	sessions handler.SessionCounter,
	allowedOrigins []string,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/healthz", handler.Health(sessions))

	// Display surfaces
	r.Method(http.MethodGet, "/ws", wsHandler)

	// RPC Handlers
	for path, h := range adminHandler.Handlers() {
		r.Handle(path, h)
	}

	// Debug Handlers
	r.Route("/debug", func(r chi.Router) {
		r.Post("/surface-trace", traceHandler.HandleSurfaceTrace)
		r.Get("/session-log", traceHandler.HandleSessionLog)
	})
	return r
}
