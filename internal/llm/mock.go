package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider is a Provider for tests and offline runs.
type MockProvider struct {
	mu         sync.Mutex
	mode       MockMode
	responses  []string
	script     []ChatResponse
	index      int
	delay      time.Duration
	errorAfter int
	callCount  int
	requests   []ChatRequest
}

// MockMode defines the operation mode of the mock provider.
type MockMode int

const (
	// MockModeEcho returns the user's message (echo mode)
	MockModeEcho MockMode = iota

	// MockModeFixed returns a fixed response
	MockModeFixed

	// MockModeFixtures returns pre-defined responses in rotation
	MockModeFixtures

	// MockModeError always returns an error
	MockModeError

	// MockModeScript plays back full responses, tool calls included, in
	// order. The last entry repeats once the script is exhausted.
	MockModeScript
)

// MockConfig holds configuration for the mock provider.
type MockConfig struct {
	Mode       MockMode
	Responses  []string
	Script     []ChatResponse
	Delay      time.Duration // honoured with ctx cancellation
	ErrorAfter int           // successful calls before every call errors
}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	return &MockProvider{
		mode:       cfg.Mode,
		responses:  cfg.Responses,
		script:     cfg.Script,
		delay:      cfg.Delay,
		errorAfter: cfg.ErrorAfter,
	}
}

// NewEchoProvider creates a mock provider that echoes user messages.
func NewEchoProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeEcho})
}

// NewFixedProvider creates a mock provider that always returns a fixed response.
func NewFixedProvider(response string) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeFixed, Responses: []string{response}})
}

// NewErrorProvider creates a mock provider that always returns errors.
func NewErrorProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeError})
}

// NewScriptProvider creates a mock provider that plays back responses.
func NewScriptProvider(script ...ChatResponse) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeScript, Script: script})
}

// ToolCallResponse is a scripted response requesting the given calls.
func ToolCallResponse(calls ...ToolCall) ChatResponse {
	return ChatResponse{FinishReason: FinishReasonToolCalls, ToolCalls: calls}
}

// TextResponse is a scripted final text response.
func TextResponse(text string) ChatResponse {
	return ChatResponse{Content: text, FinishReason: FinishReasonStop}
}

// Chat implements the Provider interface.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.requests = append(m.requests, req)

	if m.errorAfter > 0 && m.callCount > m.errorAfter {
		return nil, fmt.Errorf("mock provider error after %d calls", m.errorAfter)
	}

	var userMessage string
	if len(req.Messages) > 0 {
		if last := req.Messages[len(req.Messages)-1]; last.Role == RoleUser {
			userMessage = last.Content
		}
	}

	var resp ChatResponse
	switch m.mode {
	case MockModeError:
		return nil, fmt.Errorf("mock provider error")
	case MockModeEcho:
		if userMessage != "" {
			resp = TextResponse("Echo: " + userMessage)
		} else {
			resp = TextResponse("Echo: (no user message)")
		}
	case MockModeFixed:
		if len(m.responses) > 0 {
			resp = TextResponse(m.responses[0])
		} else {
			resp = TextResponse("Fixed response: no responses configured")
		}
	case MockModeFixtures:
		if len(m.responses) > 0 {
			resp = TextResponse(m.responses[m.index%len(m.responses)])
			m.index++
		} else {
			resp = TextResponse("Fixtures: no responses configured")
		}
	case MockModeScript:
		if len(m.script) == 0 {
			return nil, fmt.Errorf("mock provider script is empty")
		}
		i := m.index
		if i >= len(m.script) {
			i = len(m.script) - 1
		}
		m.index++
		resp = m.script[i]
		resp.ToolCalls = append([]ToolCall(nil), resp.ToolCalls...)
	default:
		resp = TextResponse("Unknown mock mode")
	}

	resp.Model = req.Model
	resp.Usage = Usage{
		PromptTokens:     len(userMessage),
		CompletionTokens: len(resp.Content),
		TotalTokens:      len(userMessage) + len(resp.Content),
	}
	return &resp, nil
}

// SupportsToolCalling is true only when scripting.
func (m *MockProvider) SupportsToolCalling() bool {
	return m.mode == MockModeScript
}

// GetDefaultModel implements the Provider interface.
func (m *MockProvider) GetDefaultModel() string {
	return "mock-model"
}

// GetCallCount returns the number of Chat() calls made to this provider.
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request received.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}
