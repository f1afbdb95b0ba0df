package llm

import (
	"context"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleTool  Role = "tool"
)

// Provider is an interface for LLM API providers
type Provider interface {
	// Invoke makes one LLM API call
	Invoke(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider id
	Name() string
}

// ToolCall represents a tool invocation proposed by the model
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message represents a message in the conversation
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolSchema is the LLM-facing description of a callable tool
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolChoiceMode controls whether the model must call a tool.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice is a per-call tool selection hint. Name is only read for
// ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// Request contains the request parameters for one LLM call
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSchema
	ToolChoice   ToolChoice
}

// Response contains the response from LLM
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Settings are the per-provider generation parameters read from config args.
type Settings struct {
	Model          string
	Temperature    float64
	// TemperatureSet distinguishes a configured 0 from an absent key.
	TemperatureSet bool
	MaxTokens      int
	APIKey         string
	BaseURL        string
}
