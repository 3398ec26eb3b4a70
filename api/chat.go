// Package handler is the serverless entry point for hosts that map
// api/chat.go to /api/chat.
package handler

import (
	"net/http"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"gemini-chat-proxy/internal/config"
	"gemini-chat-proxy/internal/handlers"
	"gemini-chat-proxy/internal/logging"
	"gemini-chat-proxy/internal/middleware"
	"gemini-chat-proxy/internal/services"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

func sharedLogger(cfg *config.Config) *zap.Logger {
	loggerOnce.Do(func() {
		l, err := logging.New(cfg.Env, cfg.LogLevel)
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// Handler serves one chat invocation. Configuration, including the API key,
// is read on every call so a rotated secret takes effect without a cold start.
func Handler(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load()
	if err != nil {
		// A broken models file should not take the endpoint down.
		cfg = &config.Config{
			GeminiAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Env:                  "production",
			LogLevel:             "info",
			GeminiBaseURL:        config.DefaultBaseURL,
			GeminiAPIVersion:     config.DefaultAPIVersion,
			GeminiModels:         config.DefaultModels,
			FallbackStatusCodes:  config.DefaultFallbackStatusCodes,
			DisableSafetyFilters: true,
		}
		sharedLogger(cfg).Error("failed to load config, using defaults", zap.Error(err))
	}
	log := sharedLogger(cfg)

	geminiService := services.NewGeminiService(cfg, log, nil)
	chat := handlers.NewChatHandler(geminiService, cfg.GeminiAPIKey, log, nil)

	middleware.CORS(chat).ServeHTTP(w, r)
}
