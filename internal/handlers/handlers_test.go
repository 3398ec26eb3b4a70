package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gemini-chat-proxy/internal/models"
)

// ─── JSON Response Tests ───

func TestJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusOK, models.ChatResponse{Reply: "Success", Text: "Success"})

	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", rr.Header().Get("Content-Type"))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result["reply"] != "Success" || result["text"] != "Success" {
		t.Errorf("Expected reply and text 'Success', got %v", result)
	}
}

func TestErrorResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusInternalServerError, errorResp(categoryServer, "Server API Key missing"))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"Server Error","details":"Server API Key missing"}` {
		t.Errorf("Unexpected error body %s", got)
	}
}

func TestErrorResponse_OmitsEmptyDetails(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})

	if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"Method Not Allowed"}` {
		t.Errorf("Unexpected error body %s", got)
	}
}

func TestUpstreamDetails_NilError(t *testing.T) {
	if got := upstreamDetails(nil); got != "Unknown upstream error" {
		t.Errorf("Expected placeholder for nil error, got %q", got)
	}
}
