package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"gemini-chat-proxy/internal/config"
	"gemini-chat-proxy/internal/handlers"
	"gemini-chat-proxy/internal/logging"
	"gemini-chat-proxy/internal/metrics"
	"gemini-chat-proxy/internal/router"
	"gemini-chat-proxy/internal/services"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// ──── Step 2: Initialize Logger ────
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Gemini chat proxy",
		zap.String("env", cfg.Env),
		zap.Strings("models", cfg.GeminiModels),
		zap.Ints("fallback_status_codes", cfg.FallbackStatusCodes),
		zap.Bool("api_key_present", cfg.GeminiAPIKey != ""))
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; chat requests will fail until it is")
	}

	// ──── Step 3: Initialize Metrics ────
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(registry)
		logger.Info("Metrics enabled on /metrics")
	}

	// ──── Step 4: Initialize Gemini Client ────
	geminiService := services.NewGeminiService(cfg, logger, collector)

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(geminiService, cfg.GeminiAPIKey, logger, collector)
	modelsHandler := handlers.NewModelsHandler(geminiService, cfg.GeminiAPIKey, logger)

	// ──── Step 5: Start HTTP Server ────
	r := router.New(logger, chatHandler, modelsHandler, collector)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: a chat request waits on up to len(models) upstream calls.
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Gemini chat proxy ready", zap.String("addr", "http://localhost:"+cfg.Port+"/api/chat"))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server error", zap.Error(err))
	}
}
