package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"gemini-chat-proxy/internal/models"
)

type modelLister interface {
	ListModels(ctx context.Context, apiKey string) ([]models.ModelInfo, error)
}

// ModelsHandler lists the models the configured key can use. It exists to
// diagnose 404s from the chat fallback list.
type ModelsHandler struct {
	lister modelLister
	apiKey string
	logger *zap.Logger
}

func NewModelsHandler(lister modelLister, apiKey string, logger *zap.Logger) *ModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelsHandler{lister: lister, apiKey: apiKey, logger: logger}
}

func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.lister.ListModels(r.Context(), h.apiKey)
	if err != nil {
		h.logger.Error("Listing models failed", zap.Error(err))
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.ModelInfo{}
	}

	writeJSON(w, http.StatusOK, models.ModelsResponse{Models: list})
}
