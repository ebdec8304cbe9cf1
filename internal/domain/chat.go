package domain

import "encoding/json"

// Roles in the upstream chat completions vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClientMessage is a message as the browser client sends it. The UI shape is
// {sender, text}; the wire shape {role, content} is accepted as well.
type ClientMessage struct {
	Sender  string `json:"sender,omitempty"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatRequest is a validated inbound chat request. Messages are oldest first.
type ChatRequest struct {
	Messages      []ClientMessage
	ToxicityLevel int
}

// CompletionRequest is the body posted to the upstream chat completions API.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// Completion is a successful upstream reply: the first choice's content plus
// the raw envelope it came from.
type Completion struct {
	Content  string
	Envelope json.RawMessage
}

// CompletionResult is produced once per request and never persisted.
type CompletionResult struct {
	Text         string
	UsedFallback bool
	// Envelope is the raw upstream body; empty when UsedFallback is set.
	Envelope json.RawMessage
}
