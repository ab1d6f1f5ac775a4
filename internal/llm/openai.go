package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/retry"
)

const (
	// OpenAIEndpoint is the default base URL for the OpenAI API
	OpenAIEndpoint = "https://api.openai.com/v1"
	// OpenAIDefaultModel is used when the config names no model
	OpenAIDefaultModel = "gpt-4o-mini"
	// OpenAIRequestTimeout is the default timeout for API requests
	OpenAIRequestTimeout = 60 * time.Second
	// OpenAIRetryDelay is the initial delay between retry attempts
	OpenAIRetryDelay = 1 * time.Second
)

// OpenAIConfig contains configuration for an OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // e.g. https://api.openai.com/v1
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIProvider implements Provider against any /chat/completions endpoint.
type OpenAIProvider struct {
	client  *http.Client
	config  OpenAIConfig
	apiURL  string
	limiter *TokenBucketRateLimiter
	logger  *logger.Logger
}

type openAIRequest struct {
	Messages    []openAIMessage `json:"messages"`
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"` // always "function"
	Function map[string]any `json:"function"`
}

type openAIResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []openAIChoice  `json:"choices"`
	Usage   openAIUsage     `json:"usage"`
	Error   *openAIAPIError `json:"error,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON encoded
	} `json:"function"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates a new OpenAIProvider instance. limiter may be nil.
func NewOpenAIProvider(cfg OpenAIConfig, limiter *TokenBucketRateLimiter, log *logger.Logger) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = OpenAIRequestTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	return &OpenAIProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		apiURL:  strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		limiter: limiter,
		logger:  log,
	}
}

// doRequest executes a single HTTP request.
func (p *OpenAIProvider) doRequest(ctx context.Context, reqBody []byte) (*openAIResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		p.logger.WarnCtx(ctx, "LLM API returned error status",
			logger.Field{Key: "status_code", Value: httpResp.StatusCode},
			logger.Field{Key: "response_body", Value: string(respBody)})
		return nil, &retry.StatusError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	var resp openAIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s (code: %s): %s", resp.Error.Type, resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

// mapChatRequest maps ChatRequest to the wire format.
func (p *OpenAIProvider) mapChatRequest(req ChatRequest) openAIRequest {
	messages := make([]openAIMessage, len(req.Messages))
	for i, msg := range req.Messages {
		m := openAIMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			var call openAIToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			m.ToolCalls = append(m.ToolCalls, call)
		}
		messages[i] = m
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	out := openAIRequest{
		Messages:    messages,
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]openAITool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = openAITool{
				Type: "function",
				Function: map[string]any{
					"name":        tool.Name,
					"description": tool.Description,
					"parameters":  tool.Parameters,
				},
			}
		}
		out.ToolChoice = "auto"
	}
	return out
}

// mapOpenAIResponse maps the wire response to ChatResponse.
func mapOpenAIResponse(resp *openAIResponse) *ChatResponse {
	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if len(resp.Choices) == 0 {
		return &ChatResponse{FinishReason: FinishReasonError, Usage: usage, Model: resp.Model}
	}

	choice := resp.Choices[0]
	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	finish := FinishReason(choice.FinishReason)
	if finish == "" {
		finish = FinishReasonStop
	}
	return &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: finish,
		ToolCalls:    toolCalls,
		Usage:        usage,
		Model:        resp.Model,
	}
}

// Chat sends a chat completion request, retrying transient failures.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.logger.DebugCtx(ctx, "Sending chat request",
		logger.Field{Key: "model", Value: req.Model},
		logger.Field{Key: "messages_count", Value: len(req.Messages)},
		logger.Field{Key: "tools_count", Value: len(req.Tools)})

	body, err := json.Marshal(p.mapChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := retry.Do(ctx, retry.Config{
		MaxAttempts:    p.config.MaxRetries + 1,
		InitialBackoff: OpenAIRetryDelay,
		Operation:      "openai_chat",
		Logger:         p.logger,
	}, func(ctx context.Context) (*openAIResponse, error) {
		return p.doRequest(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	return mapOpenAIResponse(resp), nil
}

// SupportsToolCalling implements Provider.
func (p *OpenAIProvider) SupportsToolCalling() bool {
	return true
}

// GetDefaultModel implements Provider.
func (p *OpenAIProvider) GetDefaultModel() string {
	return p.config.Model
}
