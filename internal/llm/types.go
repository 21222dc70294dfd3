package llm

import "context"

// Role represents a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single message in a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	Name       string     `json:"name,omitempty"`         // Tool name, for tool result messages
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// JSON text exactly as accumulated from the stream; it is parsed only at
// execution time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef defines a tool advertised to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Response is the finished result of one streaming model call.
type Response struct {
	Message Message

	// TokensPerSec is the observed text throughput, or 0 when too few
	// tokens arrived to measure.
	TokensPerSec float64
}

// Handlers carries the optional observer callbacks for a streaming call.
// Both are best-effort side channels; neither may affect the data path.
type Handlers struct {
	OnToken  func(token string)
	OnStatus func(status string)
}

func (h Handlers) token(t string) {
	if h.OnToken != nil {
		h.OnToken(t)
	}
}

func (h Handlers) status(s string) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}

// Streamer is the interface the agent loop drives. Implemented by *Client.
type Streamer interface {
	Stream(ctx context.Context, messages []Message, tools []ToolDef, h Handlers) (*Response, error)
}

// Helper constructors

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func ToolResultMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: name}
}
