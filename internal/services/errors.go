package services

import (
	"fmt"
	"net/http"
	"strings"
)

// QuotaExhaustedMessage replaces upstream quota errors, which are long and
// point at billing docs the end user cannot act on.
const QuotaExhaustedMessage = "The free-tier quota of every available model is zero or has been used up."

// ConfigError means the server itself is misconfigured.
type ConfigError struct{ Message string }

func (e *ConfigError) Error() string { return e.Message }

// ValidationError means the caller's request cannot be turned into an
// upstream request.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// UpstreamError is a failed generateContent call. StatusCode is 0 when the
// request never produced an HTTP response.
type UpstreamError struct {
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Model, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Model, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// QuotaExhausted reports whether the upstream refused the call for quota or
// rate-limit reasons.
func (e *UpstreamError) QuotaExhausted() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(e.Message), "quota exceeded")
}

// ExhaustedError is returned when every candidate model failed with a
// fallback-eligible error. Last is the error of the final candidate.
type ExhaustedError struct {
	Models []string
	Last   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d candidate models failed, last error: %v", len(e.Models), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// BlockedError means the upstream answered without any candidate, which in
// practice is the safety filter dropping the reply.
type BlockedError struct {
	Model          string
	PromptFeedback string
}

func (e *BlockedError) Error() string {
	return "The model returned no content; it was most likely blocked by the safety filters even with relaxed thresholds."
}

// MalformedResponseError means a candidate exists but carries no reply text.
type MalformedResponseError struct {
	Model  string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "The model response has an unexpected structure: " + e.Reason
}
