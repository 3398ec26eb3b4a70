package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gemini-chat-proxy/internal/models"
	"gemini-chat-proxy/internal/services"
)

// Error categories sent in the "error" field.
const (
	categoryServer      = "Server Error"
	categoryValidation  = "Invalid Request"
	categoryUpstream    = "Upstream Error"
	categoryUnavailable = "All Models Unavailable"
	categoryBlocked     = "Response Blocked"
	categoryMalformed   = "Malformed Response"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(category, details string) models.ErrorResponse {
	return models.ErrorResponse{Error: category, Details: details}
}

// handleServiceError writes the error body for err and returns the outcome
// label used for metrics. Every failure is a 500; the frontend only tells
// them apart by category.
func handleServiceError(w http.ResponseWriter, err error) string {
	var (
		cfgErr       *services.ConfigError
		valErr       *services.ValidationError
		exhaustedErr *services.ExhaustedError
		upErr        *services.UpstreamError
		blockedErr   *services.BlockedError
		malformedErr *services.MalformedResponseError
	)

	switch {
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryServer, cfgErr.Message))
		return "config"
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryValidation, valErr.Message))
		return "validation"
	case errors.As(err, &exhaustedErr):
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryUnavailable, upstreamDetails(exhaustedErr.Last)))
		return "exhausted"
	case errors.As(err, &upErr):
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryUpstream, upstreamDetails(upErr)))
		return "upstream"
	case errors.As(err, &blockedErr):
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryBlocked, blockedErr.Error()))
		return "blocked"
	case errors.As(err, &malformedErr):
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryMalformed, malformedErr.Error()))
		return "malformed"
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp(categoryServer, err.Error()))
		return "internal"
	}
}

// upstreamDetails rewrites quota failures into something a user can act on.
func upstreamDetails(err error) string {
	if err == nil {
		return "Unknown upstream error"
	}
	var upErr *services.UpstreamError
	if errors.As(err, &upErr) {
		if upErr.QuotaExhausted() {
			return services.QuotaExhaustedMessage
		}
		return upErr.Message
	}
	return err.Error()
}
