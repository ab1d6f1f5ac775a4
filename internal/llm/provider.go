// Package llm defines the chat completion contract the agent loop talks to
// and its implementations: Gemini through google.golang.org/genai, any
// OpenAI-compatible endpoint, and a scripted mock for tests.
package llm

import (
	"context"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Chat sends a chat completion request. ctx bounds the whole call,
	// including transport retries.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// SupportsToolCalling reports whether tool definitions are honoured.
	SupportsToolCalling() bool

	// GetDefaultModel returns the model used when a request names none.
	GetDefaultModel() string
}

// Role represents the role of a message sender in the conversation.
type Role string

const (
	RoleSystem    Role = "system"    // System message provides context/instructions
	RoleUser      Role = "user"      // User message represents user input
	RoleAssistant Role = "assistant" // Assistant message represents model response
	RoleTool      Role = "tool"      // Tool message represents tool execution results
)

// Message represents a single message in the chat conversation.
type Message struct {
	Role    Role   `json:"role"`    // The role of the message sender
	Content string `json:"content"` // The content of the message

	// ToolCalls are the calls an assistant message requested.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name identify the call a RoleTool message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// FinishReason indicates why the model stopped generating tokens.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"       // Model reached a natural stopping point
	FinishReasonLength    FinishReason = "length"     // Model exceeded max tokens
	FinishReasonToolCalls FinishReason = "tool_calls" // Model requested tool calls
	FinishReasonError     FinishReason = "error"      // Generation stopped due to an error
)

// ToolCall represents a requested tool/function call by the model.
type ToolCall struct {
	ID   string `json:"id"`   // Unique identifier for this tool call
	Name string `json:"name"` // Name of the tool/function to call

	// Arguments is a JSON string containing the arguments for the tool call
	Arguments string `json:"arguments"`
}

// Usage tracks token usage information for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`     // Number of tokens in the prompt
	CompletionTokens int `json:"completion_tokens"` // Number of tokens in the completion
	TotalTokens      int `json:"total_tokens"`      // Total number of tokens used
}

// ChatRequest represents a request to send to the LLM provider for chat completion.
type ChatRequest struct {
	Messages    []Message `json:"messages"`    // The conversation history
	Model       string    `json:"model"`       // The model to use for completion
	Temperature float64   `json:"temperature"` // Sampling temperature (0.0-2.0)
	MaxTokens   int       `json:"max_tokens"`  // Maximum tokens to generate

	// Tools is a list of tools/functions the model can call. Only used if supported.
	Tools []ToolDefinition `json:"tools,omitempty"`
}

// ToolDefinition defines a tool that the model can call.
type ToolDefinition struct {
	Name        string `json:"name"`        // Name of the tool
	Description string `json:"description"` // Description of what the tool does

	// Parameters is a JSON Schema object describing the tool's input parameters
	Parameters map[string]any `json:"parameters"`
}

// ChatResponse represents a response from the LLM provider.
type ChatResponse struct {
	Content      string       `json:"content"`       // The model's text response
	FinishReason FinishReason `json:"finish_reason"` // Reason generation stopped
	ToolCalls    []ToolCall   `json:"tool_calls"`    // Tool calls requested by model
	Usage        Usage        `json:"usage"`         // Token usage information

	// Model is the actual model used for the completion (may differ from request)
	Model string `json:"model"`
}

// AssistantMessage converts a response into the history entry that records it.
func (r *ChatResponse) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: r.Content, ToolCalls: r.ToolCalls}
}
