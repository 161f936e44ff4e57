package domain

import "encoding/json"

// Part is a single text fragment inside a Content block. Text holds the raw
// JSON value taken from the inbound request; nil omits it.
type Part struct {
	Text json.RawMessage `json:"text,omitempty"`
}

// Content wraps the parts of one turn or instruction.
type Content struct {
	Parts []Part `json:"parts"`
}

// GoogleSearch enables the search grounding tool. It carries no options.
type GoogleSearch struct{}

type Tool struct {
	GoogleSearch *GoogleSearch `json:"google_search,omitempty"`
}

// GenerateContentRequest is the upstream generateContent payload.
type GenerateContentRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction Content   `json:"systemInstruction"`
	Tools             []Tool    `json:"tools"`
}

// NewGenerateContentRequest builds the fixed upstream payload for one inbound request.
func NewGenerateContentRequest(in GenerateRequest) GenerateContentRequest {
	return GenerateContentRequest{
		Contents:          []Content{{Parts: []Part{{Text: in.UserQuery}}}},
		SystemInstruction: Content{Parts: []Part{{Text: in.SystemPrompt}}},
		Tools:             []Tool{{GoogleSearch: &GoogleSearch{}}},
	}
}

// Candidate is one generated answer. Every level is optional on the wire.
type Candidate struct {
	Content *CandidateContent `json:"content,omitempty"`
}

type CandidateContent struct {
	Parts []CandidatePart `json:"parts,omitempty"`
	Role  string          `json:"role,omitempty"`
}

type CandidatePart struct {
	Text *string `json:"text,omitempty"`
}

// GenerateContentResponse is the subset of the upstream response the proxy reads.
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Text returns candidates[0].content.parts[0].text. It reports false when any
// level is missing or the text is empty.
func (r *GenerateContentResponse) Text() (string, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return "", false
	}
	content := r.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", false
	}
	text := content.Parts[0].Text
	if text == nil || *text == "" {
		return "", false
	}
	return *text, true
}
