package agent

import (
	"context"
	"encoding/json"
)

// Event types emitted by the agent runtime's stream-json output. The
// variant is tagged by Type (system/assistant/user/result); result events
// are further tagged by Subtype. Any event may carry a session id.
const (
	EventTypeSystem    = "system"
	EventTypeAssistant = "assistant"
	EventTypeUser      = "user"
	EventTypeResult    = "result"

	SubtypeInit    = "init"
	SubtypeSuccess = "success"
)

// StreamEvent is one decoded line of the runtime's event stream
type StreamEvent struct {
	Type      string            `json:"type"`
	Subtype   string            `json:"subtype,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Result    string            `json:"result,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
	Message   *AssistantMessage `json:"message,omitempty"`
	Model     string            `json:"model,omitempty"`
}

// AssistantMessage is the message body of assistant/user events
type AssistantMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one piece of assistant/user message content. Text and
// tool_use blocks are the variants this router cares about; tool_result
// payloads are opaque.
type ContentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Invocation describes one agent exchange
type Invocation struct {
	Prompt         string
	SystemPrompt   string
	Model          string
	Resume         string
	AllowedTools   []string
	PermissionMode string
	WorkingDir     string
}

// Stream is a live event sequence from one invocation. Events() closes
// when the stream ends; Close() then reports the execution error, if any.
type Stream interface {
	Events() <-chan StreamEvent
	Close() error
}

// Executor runs agent invocations. The production implementation shells
// out to the agent CLI; tests inject fake streams.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Stream, error)
}
