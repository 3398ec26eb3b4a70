package models

// ErrorResponse is the body of every failed request. Error is a short
// category, Details the underlying message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
