package domain

import "encoding/json"

// GenerateRequest is the inbound body accepted by POST /api/generate.
// Both fields are optional and are forwarded upstream exactly as received:
// a missing field is omitted, a non-string value is passed through.
type GenerateRequest struct {
	UserQuery    json.RawMessage `json:"userQuery,omitempty"`
	SystemPrompt json.RawMessage `json:"systemPrompt,omitempty"`
}

// NewTextRequest builds a GenerateRequest from plain strings.
func NewTextRequest(userQuery, systemPrompt string) GenerateRequest {
	return GenerateRequest{
		UserQuery:    textValue(userQuery),
		SystemPrompt: textValue(systemPrompt),
	}
}

func textValue(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// GenerateResponse is the success body returned to the caller.
type GenerateResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is the body returned for every failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
