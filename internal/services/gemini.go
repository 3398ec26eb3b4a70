package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gemini-chat-proxy/internal/config"
	"gemini-chat-proxy/internal/metrics"
	"gemini-chat-proxy/internal/models"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 10 << 20

// Reply is the text extracted from the first candidate and the model that
// produced it.
type Reply struct {
	Text  string
	Model string
}

type GeminiService struct {
	httpClient    *http.Client
	baseURL       string
	apiVersion    string
	models        []string
	fallbackCodes map[int]bool
	safety        []models.SafetySetting
	logger        *zap.Logger
	metrics       *metrics.Collector
}

func NewGeminiService(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *GeminiService {
	if logger == nil {
		logger = zap.NewNop()
	}

	codes := make(map[int]bool, len(cfg.FallbackStatusCodes))
	for _, code := range cfg.FallbackStatusCodes {
		codes[code] = true
	}

	var safety []models.SafetySetting
	if cfg.DisableSafetyFilters {
		safety = RelaxedSafetySettings()
	}

	return &GeminiService{
		// Zero Timeout means none; the request context still bounds each call.
		httpClient:    &http.Client{Timeout: cfg.UpstreamTimeout},
		baseURL:       strings.TrimRight(cfg.GeminiBaseURL, "/"),
		apiVersion:    cfg.GeminiAPIVersion,
		models:        append([]string(nil), cfg.GeminiModels...),
		fallbackCodes: codes,
		safety:        safety,
		logger:        logger,
		metrics:       collector,
	}
}

// Models returns the ordered candidate list.
func (s *GeminiService) Models() []string {
	return append([]string(nil), s.models...)
}

// GenerateReply assembles the upstream body from a raw chat request and sends
// it to each candidate model in turn until one answers.
func (s *GeminiService) GenerateReply(ctx context.Context, apiKey string, body []byte) (*Reply, error) {
	if apiKey == "" {
		s.logger.Error("Gemini API key is not configured")
		return nil, &ConfigError{Message: "Server API Key missing"}
	}
	s.logger.Debug("Gemini API key present")

	reqBody, err := BuildUpstreamRequest(body, s.safety)
	if err != nil {
		return nil, err
	}

	policy := fallbackPolicy{
		candidates: s.models,
		eligible:   s.fallbackEligible,
		onFallback: func(model, next string, err error) {
			var upErr *UpstreamError
			if errors.As(err, &upErr) {
				s.metrics.RecordFallback(model, upErr.StatusCode)
			}
			s.logger.Warn("Gemini model unavailable, switching to fallback",
				zap.String("model", model),
				zap.String("next", next),
				zap.Error(err))
		},
	}

	text, model, err := runWithFallback(ctx, policy, func(ctx context.Context, model string) (string, error) {
		return s.generateContent(ctx, apiKey, model, reqBody)
	})
	if err != nil {
		return nil, err
	}

	return &Reply{Text: text, Model: model}, nil
}

func (s *GeminiService) fallbackEligible(err error) bool {
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	return s.fallbackCodes[upErr.StatusCode]
}

func (s *GeminiService) generateContent(ctx context.Context, apiKey, model string, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		s.baseURL, s.apiVersion, url.PathEscape(model), url.QueryEscape(apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	s.logger.Info("Calling Gemini", zap.String("model", model))

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.RecordAttempt(model, 0, time.Since(start))
		// url.Error would echo the endpoint, key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", &UpstreamError{Model: model, Message: "failed to reach Gemini API: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	s.metrics.RecordAttempt(model, resp.StatusCode, time.Since(start))
	if err != nil {
		return "", &UpstreamError{Model: model, StatusCode: resp.StatusCode, Message: "failed to read Gemini response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = "API Error"
		}
		return "", &UpstreamError{Model: model, StatusCode: resp.StatusCode, Message: msg}
	}

	text, err := parseReply(model, data)
	if err != nil {
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			s.logger.Error("Gemini returned no candidates",
				zap.String("model", model),
				zap.String("promptFeedback", blocked.PromptFeedback))
		}
		return "", err
	}
	return text, nil
}

// parseReply extracts candidates[0].content.parts[0].text.
func parseReply(model string, data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", &MalformedResponseError{Model: model, Reason: "body is not valid JSON"}
	}

	resp := gjson.ParseBytes(data)
	candidates := resp.Get("candidates")
	if !candidates.IsArray() || len(candidates.Array()) == 0 {
		return "", &BlockedError{Model: model, PromptFeedback: resp.Get("promptFeedback").Raw}
	}

	text := candidates.Get("0.content.parts.0.text")
	if text.Type != gjson.String || text.Str == "" {
		return "", &MalformedResponseError{Model: model, Reason: "first candidate has no reply text"}
	}
	return text.Str, nil
}

// ListModels returns the models visible to apiKey.
func (s *GeminiService) ListModels(ctx context.Context, apiKey string) ([]models.ModelInfo, error) {
	if apiKey == "" {
		return nil, &ConfigError{Message: "Server API Key missing"}
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if s.baseURL != config.DefaultBaseURL {
		opts = append(opts, option.WithEndpoint(s.baseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	var out []models.ModelInfo
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list Gemini models: %w", err)
		}
		out = append(out, toModelInfo(m))
	}

	s.logger.Info("Listed Gemini models", zap.Int("count", len(out)))
	return out, nil
}

func toModelInfo(m *genai.ModelInfo) models.ModelInfo {
	return models.ModelInfo{
		Name:                       strings.TrimPrefix(m.Name, "models/"),
		DisplayName:                m.DisplayName,
		Description:                m.Description,
		InputTokenLimit:            m.InputTokenLimit,
		OutputTokenLimit:           m.OutputTokenLimit,
		SupportedGenerationMethods: m.SupportedGenerationMethods,
	}
}
