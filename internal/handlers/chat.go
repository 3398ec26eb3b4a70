package handlers

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"gemini-chat-proxy/internal/metrics"
	"gemini-chat-proxy/internal/models"
	"gemini-chat-proxy/internal/services"
)

const maxRequestBytes = 1 << 20

type replyGenerator interface {
	GenerateReply(ctx context.Context, apiKey string, body []byte) (*services.Reply, error)
}

// ChatHandler serves the chat endpoint. It answers every method itself so it
// can be mounted on a single path or used directly as a serverless function.
type ChatHandler struct {
	gemini  replyGenerator
	apiKey  string
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewChatHandler(gemini replyGenerator, apiKey string, logger *zap.Logger, collector *metrics.Collector) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		gemini:  gemini,
		apiKey:  apiKey,
		logger:  logger,
		metrics: collector,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.chat(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})
	}
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		h.fail(w, &services.ValidationError{Message: "Invalid request body"})
		return
	}

	reply, err := h.gemini.GenerateReply(r.Context(), h.apiKey, body)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.logger.Info("Chat reply generated",
		zap.String("model", reply.Model),
		zap.Int("chars", len(reply.Text)))
	h.metrics.RecordResponse("ok")
	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply.Text, Text: reply.Text})
}

func (h *ChatHandler) fail(w http.ResponseWriter, err error) {
	outcome := handleServiceError(w, err)
	h.logger.Error("Chat request failed", zap.String("outcome", outcome), zap.Error(err))
	h.metrics.RecordResponse(outcome)
}
