package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gemini-chat-proxy/internal/handlers"
	"gemini-chat-proxy/internal/metrics"
	"gemini-chat-proxy/internal/middleware"
)

// New wires the HTTP routes. collector may be nil, in which case /metrics is
// not mounted.
func New(
	logger *zap.Logger,
	chatHandler *handlers.ChatHandler,
	modelsHandler *handlers.ModelsHandler,
	collector *metrics.Collector,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if registry := collector.Registry(); registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// All methods go to the chat handler, which answers 405 itself.
		r.Handle("/chat", chatHandler)
		r.Get("/models", modelsHandler.List)
	})

	return r
}
