package models

import (
	"encoding/json"
	"strings"
)

// TurnSchema is the wire shape a provider variant uses for conversation turns.
type TurnSchema int

const (
	// ContentSchema turns look like {"role": "...", "content": "..."}.
	ContentSchema TurnSchema = iota
	// PartsSchema turns look like {"role": "...", "parts": [{"text": "..."}]}.
	PartsSchema
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleModel     = "model"
	RoleSystem    = "system"
)

// Part is one text fragment of a parts-shaped turn.
type Part struct {
	Text string `json:"text"`
}

// ChatTurn represents a single message in a conversation. It carries either
// the content shape or the parts shape, never both.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// MarshalJSON writes exactly one of content or parts. A content-shaped turn
// keeps its content key even when the text is empty.
func (t ChatTurn) MarshalJSON() ([]byte, error) {
	if t.Parts != nil {
		return json.Marshal(struct {
			Role  string `json:"role"`
			Parts []Part `json:"parts"`
		}{t.Role, t.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{t.Role, t.Content})
}

// NewTurn builds a turn in the given schema.
func NewTurn(schema TurnSchema, role, text string) ChatTurn {
	if schema == PartsSchema {
		return ChatTurn{Role: role, Parts: []Part{{Text: text}}}
	}
	return ChatTurn{Role: role, Content: text}
}

// Text returns the turn's text regardless of its shape.
func (t ChatTurn) Text() string {
	if len(t.Parts) == 0 {
		return t.Content
	}
	var b strings.Builder
	for _, p := range t.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string              `json:"message"`
	Files   []map[string]string `json:"files,omitempty"` // accepted, not forwarded
	History []ChatTurn          `json:"history"`
}

// ChatResponse is the reply plus the updated history.
type ChatResponse struct {
	Response string     `json:"response"`
	History  []ChatTurn `json:"history"`
}

// ErrorResponse is the failure body. Detail is a single human-readable sentence.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WelcomeResponse is served at the root path.
type WelcomeResponse struct {
	Message string `json:"message"`
}

// HealthResponse is served at /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Providers []string `json:"providers"`
}
