package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini-2024",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "list_deals", "arguments": "{}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, nil, nil)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "what's on"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "get_schedule", Arguments: `{"days":1}`}}},
			{Role: RoleTool, ToolCallID: "call_0", Name: "get_schedule", Content: "nothing"},
		},
		Temperature: 0.3,
		Tools:       []ToolDefinition{{Name: "list_deals", Description: "List deals", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, OpenAIDefaultModel, got.Model)
	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Messages, 4)
	require.Len(t, got.Messages[2].ToolCalls, 1)
	assert.Equal(t, "get_schedule", got.Messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_0", got.Messages[3].ToolCallID)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "list_deals", got.Tools[0].Function["name"])

	assert.Equal(t, FinishReasonToolCalls, resp.FinishReason)
	assert.Equal(t, []ToolCall{{ID: "call_1", Name: "list_deals", Arguments: "{}"}}, resp.ToolCalls)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
}

func TestOpenAIProvider_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, MaxRetries: 2}, nil, nil)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, int64(1), hits.Load())
}

func TestOpenAIProvider_APIErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, nil, nil)
	_, err := p.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestMapOpenAIResponse_NoChoices(t *testing.T) {
	resp := mapOpenAIResponse(&openAIResponse{Model: "m"})
	assert.Equal(t, FinishReasonError, resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)
}

func TestMapOpenAIResponse_DefaultsFinishReason(t *testing.T) {
	resp := mapOpenAIResponse(&openAIResponse{Choices: []openAIChoice{{Message: openAIMessage{Content: "hi"}}}})
	assert.Equal(t, FinishReasonStop, resp.FinishReason)
	assert.Equal(t, "hi", resp.Content)
}
