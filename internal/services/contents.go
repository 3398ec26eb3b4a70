package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"gemini-chat-proxy/internal/models"
)

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// RelaxedSafetySettings turns off all four harm filters. Without it role-play
// style prompts regularly come back with zero candidates.
func RelaxedSafetySettings() []models.SafetySetting {
	settings := make([]models.SafetySetting, len(harmCategories))
	for i, category := range harmCategories {
		settings[i] = models.SafetySetting{Category: category, Threshold: "BLOCK_NONE"}
	}
	return settings
}

// BuildUpstreamRequest turns a chat request body into a generateContent body.
//
// A "contents" array, empty or not, is forwarded byte for byte and "history"
// and "message" are ignored. A "contents" value that is not an array is
// ignored. Otherwise the turns of "history" (if it is an array) are copied
// unchanged and a user turn carrying "message" is appended. message must be
// a JSON string. safety, when non-empty, is attached as "safetySettings".
func BuildUpstreamRequest(body []byte, safety []models.SafetySetting) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte(`{}`)
	}
	if !gjson.ValidBytes(body) {
		return nil, &ValidationError{Message: "Invalid request body"}
	}
	req := gjson.ParseBytes(body)
	if !req.IsObject() {
		return nil, &ValidationError{Message: "Invalid request body"}
	}

	contents, err := assembleContents(req)
	if err != nil {
		return nil, err
	}

	out, err := sjson.SetRawBytes([]byte(`{}`), "contents", contents)
	if err != nil {
		return nil, fmt.Errorf("failed to set contents: %w", err)
	}

	if len(safety) > 0 {
		raw, err := json.Marshal(safety)
		if err != nil {
			return nil, fmt.Errorf("failed to encode safety settings: %w", err)
		}
		out, err = sjson.SetRawBytes(out, "safetySettings", raw)
		if err != nil {
			return nil, fmt.Errorf("failed to set safety settings: %w", err)
		}
	}

	return out, nil
}

func assembleContents(req gjson.Result) ([]byte, error) {
	if direct := req.Get("contents"); direct.IsArray() {
		return []byte(direct.Raw), nil
	}

	message := messageText(req.Get("message"))
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Message: "Message is empty"}
	}

	contents := []byte(`[]`)
	var err error

	// Non-array history is treated as no history.
	if history := req.Get("history"); history.IsArray() {
		for _, turn := range history.Array() {
			contents, err = sjson.SetRawBytes(contents, "-1", []byte(turn.Raw))
			if err != nil {
				return nil, fmt.Errorf("failed to copy history: %w", err)
			}
		}
	}

	turn, err := json.Marshal(models.ConversationTurn{
		Role:  "user",
		Parts: []models.Part{{Text: message}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode user turn: %w", err)
	}

	contents, err = sjson.SetRawBytes(contents, "-1", turn)
	if err != nil {
		return nil, fmt.Errorf("failed to append user turn: %w", err)
	}
	return contents, nil
}

// messageText returns the message when it is a JSON string. Any other type
// counts as no message.
func messageText(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
