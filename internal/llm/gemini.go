package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/retry"
)

const (
	// GeminiDefaultModel is used when the config names no model
	GeminiDefaultModel = "gemini-2.0-flash-lite"
	// GeminiRequestTimeout is the default timeout for API requests
	GeminiRequestTimeout = 60 * time.Second
)

// GeminiConfig contains configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // override for tests and proxies
	Timeout    time.Duration
	MaxRetries int
}

// GeminiProvider implements Provider on top of the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	config  GeminiConfig
	limiter *TokenBucketRateLimiter
	logger  *logger.Logger
}

// NewGeminiProvider creates a Gemini provider. limiter may be nil.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, limiter *TokenBucketRateLimiter, log *logger.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = GeminiDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = GeminiRequestTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, config: cfg, limiter: limiter, logger: log}, nil
}

// Chat sends a generateContent request, retrying transient failures.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	contents, gcfg, err := mapGeminiRequest(req)
	if err != nil {
		return nil, err
	}

	p.logger.DebugCtx(ctx, "Sending chat request",
		logger.Field{Key: "model", Value: model},
		logger.Field{Key: "messages_count", Value: len(req.Messages)},
		logger.Field{Key: "tools_count", Value: len(req.Tools)})

	resp, err := retry.Do(ctx, retry.Config{
		MaxAttempts:    p.config.MaxRetries + 1,
		InitialBackoff: time.Second,
		Operation:      "gemini_chat",
		Logger:         p.logger,
	}, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		r, err := p.client.Models.GenerateContent(ctx, model, contents, gcfg)
		if err != nil {
			return nil, asStatusError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return mapGeminiResponse(resp, model), nil
}

// SupportsToolCalling implements Provider.
func (p *GeminiProvider) SupportsToolCalling() bool {
	return true
}

// GetDefaultModel implements Provider.
func (p *GeminiProvider) GetDefaultModel() string {
	return p.config.Model
}

// asStatusError exposes the API status code to the retry classifier.
func asStatusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &retry.StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &retry.StatusError{StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return err
}

// mapGeminiRequest splits system messages into the system instruction and
// groups consecutive tool results into one user turn, as the API requires
// every function response of a turn in a single content.
func mapGeminiRequest(req ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var system []string
	var contents []*genai.Content

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case RoleAssistant:
			c := &genai.Content{Role: string(genai.RoleModel)}
			if msg.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if strings.TrimSpace(tc.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("tool call %s: invalid arguments: %w", tc.ID, err)
					}
				}
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(c.Parts) > 0 {
				contents = append(contents, c)
			}
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.Name,
				Response: map[string]any{"output": msg.Content},
			}}
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{part}})
			}
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, cfg, nil
}

func isFunctionResponseTurn(c *genai.Content) bool {
	if c.Role != string(genai.RoleUser) || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func mapGeminiResponse(resp *genai.GenerateContentResponse, model string) *ChatResponse {
	out := &ChatResponse{Model: model, FinishReason: FinishReasonStop}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		out.FinishReason = FinishReasonError
		return out
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: string(args)})
			continue
		}
		text.WriteString(part.Text)
	}
	out.Content = text.String()

	switch {
	case len(out.ToolCalls) > 0:
		out.FinishReason = FinishReasonToolCalls
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		out.FinishReason = FinishReasonLength
	}
	return out
}
