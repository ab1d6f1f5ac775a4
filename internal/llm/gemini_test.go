package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestMapGeminiRequest(t *testing.T) {
	req := ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "you are Travis"},
			{Role: RoleUser, Content: "book sharon"},
			{Role: RoleAssistant, Content: "checking", ToolCalls: []ToolCall{
				{ID: "c1", Name: "search_contacts", Arguments: `{"query":"sharon"}`},
				{ID: "c2", Name: "get_schedule", Arguments: ""},
			}},
			{Role: RoleTool, ToolCallID: "c1", Name: "search_contacts", Content: "Sharon Smith"},
			{Role: RoleTool, ToolCallID: "c2", Name: "get_schedule", Content: "free"},
			{Role: RoleUser, Content: "thanks"},
		},
		Temperature: 0.3,
		MaxTokens:   512,
		Tools:       []ToolDefinition{{Name: "search_contacts", Description: "Search", Parameters: map[string]any{"type": "object"}}},
	}

	contents, cfg, err := mapGeminiRequest(req)
	require.NoError(t, err)

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "you are Travis", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(512), cfg.MaxOutputTokens)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "search_contacts", cfg.Tools[0].FunctionDeclarations[0].Name)

	require.Len(t, contents, 4)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 3)
	assert.Equal(t, "checking", contents[1].Parts[0].Text)
	assert.Equal(t, map[string]any{"query": "sharon"}, contents[1].Parts[1].FunctionCall.Args)
	assert.Equal(t, map[string]any{}, contents[1].Parts[2].FunctionCall.Args)

	// Both tool results share one user turn.
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "search_contacts", contents[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, map[string]any{"output": "free"}, contents[2].Parts[1].FunctionResponse.Response)
	assert.Equal(t, "thanks", contents[3].Parts[0].Text)
}

func TestMapGeminiRequest_InvalidToolArguments(t *testing.T) {
	_, _, err := mapGeminiRequest(ChatRequest{Messages: []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "x", Arguments: "{not json"}}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c1")
}

func TestMapGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{Text: "internal musing", Thought: true},
				{Text: "On it. "},
				{FunctionCall: &genai.FunctionCall{Name: "list_deals", Args: map[string]any{"stage": "NEW"}}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 4, TotalTokenCount: 14},
	}

	got := mapGeminiResponse(resp, "gemini-2.0-flash-lite")
	assert.Equal(t, "On it. ", got.Content)
	assert.Equal(t, FinishReasonToolCalls, got.FinishReason)
	assert.Equal(t, "gemini-2.0-flash-lite", got.Model)
	assert.Equal(t, 14, got.Usage.TotalTokens)
	require.Len(t, got.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(got.ToolCalls[0].ID, "call_"))
	assert.Equal(t, "list_deals", got.ToolCalls[0].Name)
	assert.JSONEq(t, `{"stage":"NEW"}`, got.ToolCalls[0].Arguments)
}

func TestMapGeminiResponse_MaxTokensAndEmpty(t *testing.T) {
	got := mapGeminiResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content:      &genai.Content{Parts: []*genai.Part{{Text: "cut"}}},
		FinishReason: genai.FinishReasonMaxTokens,
	}}}, "m")
	assert.Equal(t, FinishReasonLength, got.FinishReason)

	empty := mapGeminiResponse(&genai.GenerateContentResponse{}, "m")
	assert.Equal(t, FinishReasonError, empty.FinishReason)
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), GeminiConfig{}, nil, nil)
	require.Error(t, err)
}

func TestMockProvider_Script(t *testing.T) {
	p := NewScriptProvider(
		ToolCallResponse(ToolCall{ID: "c1", Name: "list_deals", Arguments: "{}"}),
		TextResponse("done"),
	)
	assert.True(t, p.SupportsToolCalling())

	first, err := p.Chat(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, FinishReasonToolCalls, first.FinishReason)
	assert.Equal(t, "list_deals", first.ToolCalls[0].Name)

	second, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "done", second.Content)

	third, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "done", third.Content, "last entry repeats")
	assert.Equal(t, 3, p.GetCallCount())
	assert.Len(t, p.Requests(), 3)
}

func TestMockProvider_EchoAndError(t *testing.T) {
	resp, err := NewEchoProvider().Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Echo: hi", resp.Content)

	_, err = NewErrorProvider().Chat(context.Background(), ChatRequest{})
	assert.Error(t, err)

	fixed := NewMockProvider(MockConfig{Mode: MockModeFixed, Responses: []string{"ok"}, ErrorAfter: 1})
	_, err = fixed.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	_, err = fixed.Chat(context.Background(), ChatRequest{})
	assert.Error(t, err)
}

func TestChatResponse_AssistantMessage(t *testing.T) {
	r := &ChatResponse{Content: "x", ToolCalls: []ToolCall{{ID: "1"}}}
	m := r.AssistantMessage()
	assert.Equal(t, RoleAssistant, m.Role)
	assert.Equal(t, "x", m.Content)
	assert.Len(t, m.ToolCalls, 1)
}
