package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"gemini-chat-proxy/internal/config"
	"gemini-chat-proxy/internal/metrics"
	"gemini-chat-proxy/internal/models"
	"gemini-chat-proxy/internal/services"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubReplyGenerator struct {
	reply *services.Reply
	err   error

	calls   int
	gotKey  string
	gotBody string
}

func (s *stubReplyGenerator) GenerateReply(ctx context.Context, apiKey string, body []byte) (*services.Reply, error) {
	s.calls++
	s.gotKey = apiKey
	s.gotBody = string(body)
	return s.reply, s.err
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestChatHandler_Success(t *testing.T) {
	gen := &stubReplyGenerator{reply: &services.Reply{Text: "Hi!", Model: "m"}}
	h := NewChatHandler(gen, "key-1", nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp models.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Reply != "Hi!" || resp.Text != "Hi!" {
		t.Fatalf("expected reply and text to both be %q, got %+v", "Hi!", resp)
	}
	if gen.gotKey != "key-1" || gen.gotBody != `{"message":"hello"}` {
		t.Fatalf("generator received key %q body %q", gen.gotKey, gen.gotBody)
	}
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		gen := &stubReplyGenerator{}
		h := NewChatHandler(gen, "k", nil, nil)

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/api/chat", nil))

		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rr.Code)
		}
		if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"Method Not Allowed"}` {
			t.Fatalf("%s: unexpected body %s", method, got)
		}
		if gen.calls != 0 {
			t.Fatalf("%s: generator must not be called", method)
		}
	}
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantError   string
		wantDetails string
		wantOutcome string
	}{
		{
			"missing key",
			&services.ConfigError{Message: "Server API Key missing"},
			categoryServer, "Server API Key missing", "config",
		},
		{
			"empty message",
			&services.ValidationError{Message: "Message is empty"},
			categoryValidation, "Message is empty", "validation",
		},
		{
			"non-fallback upstream status",
			&services.UpstreamError{Model: "m", StatusCode: 400, Message: "Invalid argument"},
			categoryUpstream, "Invalid argument", "upstream",
		},
		{
			"quota in message",
			&services.UpstreamError{Model: "m", StatusCode: 403, Message: "Quota exceeded for quota metric"},
			categoryUpstream, services.QuotaExhaustedMessage, "upstream",
		},
		{
			"exhausted on 404",
			&services.ExhaustedError{Models: []string{"a"}, Last: &services.UpstreamError{Model: "a", StatusCode: 404, Message: "model not found"}},
			categoryUnavailable, "model not found", "exhausted",
		},
		{
			"exhausted on 429",
			&services.ExhaustedError{Models: []string{"a", "b"}, Last: &services.UpstreamError{Model: "b", StatusCode: 429, Message: "Resource exhausted"}},
			categoryUnavailable, services.QuotaExhaustedMessage, "exhausted",
		},
		{
			"blocked",
			&services.BlockedError{Model: "m"},
			categoryBlocked, (&services.BlockedError{}).Error(), "blocked",
		},
		{
			"malformed",
			&services.MalformedResponseError{Model: "m", Reason: "first candidate has no reply text"},
			categoryMalformed, "The model response has an unexpected structure: first candidate has no reply text", "malformed",
		},
		{
			"unknown",
			errors.New("boom"),
			categoryServer, "boom", "internal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			collector := metrics.NewCollector(nil)
			h := NewChatHandler(&stubReplyGenerator{err: tc.err}, "k", nil, collector)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"x"}`)))

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
			}
			resp := decodeError(t, rr)
			if resp.Error != tc.wantError || resp.Details != tc.wantDetails {
				t.Fatalf("expected {%q, %q}, got {%q, %q}", tc.wantError, tc.wantDetails, resp.Error, resp.Details)
			}
			if n, err := testutil.GatherAndCount(collector.Registry(), "chatproxy_chat_responses_total"); err != nil || n != 1 {
				t.Fatalf("expected one outcome series, got %d (%v)", n, err)
			}
		})
	}
}

// fakeUpstream serves generateContent for the end-to-end tests below.
type fakeUpstream struct {
	mu        sync.Mutex
	models    []string
	bodies    []string
	responses map[string]func(w http.ResponseWriter)
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":generateContent")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.models = append(f.models, model)
	f.bodies = append(f.bodies, string(body))
	respond, ok := f.responses[model]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"not found"}}`)
		return
	}
	respond(w)
}

func (f *fakeUpstream) recorded() (models, bodies []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...), append([]string(nil), f.bodies...)
}

func respondWith(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func newEndToEndHandler(t *testing.T, upstream *fakeUpstream) *ChatHandler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	svc := services.NewGeminiService(&config.Config{
		GeminiBaseURL:        srv.URL,
		GeminiAPIVersion:     "v1beta",
		GeminiModels:         []string{"gemini-2.0-flash-exp", "gemini-flash-latest", "gemini-1.5-flash"},
		FallbackStatusCodes:  []int{404, 429},
		DisableSafetyFilters: true,
	}, nil, nil)
	return NewChatHandler(svc, "test-key", nil, nil)
}

func TestChat_FallbackFrom404ToSecondModel(t *testing.T) {
	upstream := &fakeUpstream{responses: map[string]func(http.ResponseWriter){
		"gemini-flash-latest": respondWith(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"second model says hi"}]}}]}`),
	}}
	h := newEndToEndHandler(t, upstream)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp models.ChatResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Reply != "second model says hi" || resp.Text != resp.Reply {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if called, _ := upstream.recorded(); !reflect.DeepEqual(called, []string{"gemini-2.0-flash-exp", "gemini-flash-latest"}) {
		t.Fatalf("expected exactly two upstream calls in order, got %v", called)
	}
}

func TestChat_AllModelsRateLimited(t *testing.T) {
	limited := respondWith(http.StatusTooManyRequests, `{"error":{"code":429,"message":"Quota exceeded for metric: generate_content_free_tier_requests, limit: 0"}}`)
	upstream := &fakeUpstream{responses: map[string]func(http.ResponseWriter){
		"gemini-2.0-flash-exp": limited,
		"gemini-flash-latest":  limited,
		"gemini-1.5-flash":     limited,
	}}
	h := newEndToEndHandler(t, upstream)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	resp := decodeError(t, rr)
	if !strings.Contains(resp.Details, "quota") {
		t.Fatalf("expected quota explanation, got %q", resp.Details)
	}
	if called, _ := upstream.recorded(); len(called) != 3 {
		t.Fatalf("expected every model to be tried, got %v", called)
	}
}

func TestChat_EmptyCandidates(t *testing.T) {
	upstream := &fakeUpstream{responses: map[string]func(http.ResponseWriter){
		"gemini-2.0-flash-exp": respondWith(http.StatusOK, `{"candidates":[]}`),
	}}
	h := newEndToEndHandler(t, upstream)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error != categoryBlocked || !strings.Contains(resp.Details, "safety filters") {
		t.Fatalf("expected safety filter explanation, got %+v", resp)
	}
}

func TestChat_EmptyMessageMakesNoUpstreamCalls(t *testing.T) {
	upstream := &fakeUpstream{}
	h := newEndToEndHandler(t, upstream)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":""}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if resp := decodeError(t, rr); resp.Details != "Message is empty" {
		t.Fatalf("expected empty message details, got %q", resp.Details)
	}
	if called, _ := upstream.recorded(); len(called) != 0 {
		t.Fatalf("expected zero upstream calls, got %v", called)
	}
}

func TestChat_MissingAPIKey(t *testing.T) {
	upstream := &fakeUpstream{}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	svc := services.NewGeminiService(&config.Config{
		GeminiBaseURL:    srv.URL,
		GeminiAPIVersion: "v1beta",
		GeminiModels:     []string{"m"},
	}, nil, nil)
	h := NewChatHandler(svc, "", nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if resp := decodeError(t, rr); resp.Details != "Server API Key missing" {
		t.Fatalf("expected missing key details, got %q", resp.Details)
	}
	if called, _ := upstream.recorded(); len(called) != 0 {
		t.Fatalf("expected zero upstream calls, got %v", called)
	}
}

func TestChat_HistoryForwardedWithNewTurn(t *testing.T) {
	upstream := &fakeUpstream{responses: map[string]func(http.ResponseWriter){
		"gemini-2.0-flash-exp": respondWith(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`),
	}}
	h := newEndToEndHandler(t, upstream)

	body := `{"history":[{"role":"user","parts":[{"text":"q1"}]},{"role":"model","parts":[{"text":"a1"}]}],"message":"q2"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var sent struct {
		Contents []models.ConversationTurn `json:"contents"`
	}
	_, bodies := upstream.recorded()
	if err := json.Unmarshal([]byte(bodies[0]), &sent); err != nil {
		t.Fatalf("upstream body is not JSON: %v", err)
	}
	want := []models.ConversationTurn{
		{Role: "user", Parts: []models.Part{{Text: "q1"}}},
		{Role: "model", Parts: []models.Part{{Text: "a1"}}},
		{Role: "user", Parts: []models.Part{{Text: "q2"}}},
	}
	if !reflect.DeepEqual(sent.Contents, want) {
		t.Fatalf("expected %+v, got %+v", want, sent.Contents)
	}
}
