package models

// Part is one text fragment of a conversation turn.
type Part struct {
	Text string `json:"text"`
}

// ConversationTurn represents a single message in a conversation.
// History is accepted from the caller as-is and is never re-encoded, so
// this type is only used for the turn the proxy appends itself.
type ConversationTurn struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// SafetySetting is one category/threshold pair of the upstream safetySettings block.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// ChatResponse is the reply from the AI chat. Both keys carry the same text
// for older frontends that read one or the other.
type ChatResponse struct {
	Reply string `json:"reply"`
	Text  string `json:"text"`
}

// ModelInfo describes one model available to the configured API key.
type ModelInfo struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName,omitempty"`
	Description                string   `json:"description,omitempty"`
	InputTokenLimit            int32    `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit           int32    `json:"outputTokenLimit,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty"`
}

type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}
