// Package loop runs one user turn against the model: it sends the
// conversation, executes the tools the model asks for and repeats until the
// model answers in text or the step ceiling is reached.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

const (
	DefaultMaxSteps    = 5
	DefaultStepTimeout = 45 * time.Second
)

// ErrStepTimeout is returned when one model step exceeds the step timeout.
var ErrStepTimeout = errors.New("agent step timed out")

// TurnRecorder observes finished turns.
type TurnRecorder interface {
	RecordTurn(steps int, limitReached bool)
}

// Config holds configuration for the loop.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	MaxSteps    int
	StepTimeout time.Duration
	Logger      *logger.Logger
	Recorder    TurnRecorder
}

// Loop manages the agent's execution loop, coordinating between the LLM
// provider, the conversation session and the tools.
type Loop struct {
	provider llm.Provider
	config   Config
	logger   *logger.Logger
}

// NewLoop creates a new execution loop.
func NewLoop(provider llm.Provider, cfg Config) (*Loop, error) {
	if provider == nil {
		return nil, fmt.Errorf("LLM provider cannot be nil")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Loop{provider: provider, config: cfg, logger: cfg.Logger}, nil
}

// Turn is the input of one Run.
type Turn struct {
	SystemPrompt string
	// Session holds the history, already ending with the user's message.
	// Every message the turn produces is appended to it as it happens.
	Session    *session.Session
	Dispatcher *tools.Dispatcher
	Emitter    Emitter
}

// Run executes the turn. The returned Result is never nil and always holds
// the steps completed so far, also when an error is returned.
func (l *Loop) Run(ctx context.Context, turn Turn) (*Result, error) {
	if turn.Session == nil {
		return &Result{}, fmt.Errorf("session cannot be nil")
	}
	em := turn.Emitter
	if em == nil {
		em = NopEmitter{}
	}

	res := &Result{}
	defer func() {
		if l.config.Recorder != nil {
			l.config.Recorder.RecordTurn(len(res.Steps), res.StepLimitReached)
		}
	}()

	for i := 0; i < l.config.MaxSteps; i++ {
		step, err := l.step(ctx, i, turn, em)
		if step != nil {
			res.add(*step)
			em.StepFinished(ctx, *step)
		}
		if err != nil {
			l.logger.WarnCtx(ctx, "agent turn stopped",
				logger.Field{Key: "session_id", Value: turn.Session.ID},
				logger.Field{Key: "step", Value: i},
				logger.Field{Key: "error", Value: err.Error()})
			return res, err
		}
		if !step.HasToolCalls() {
			res.Text = step.Text
			l.logger.DebugCtx(ctx, "agent turn finished",
				logger.Field{Key: "session_id", Value: turn.Session.ID},
				logger.Field{Key: "steps", Value: len(res.Steps)},
				logger.Field{Key: "response_length", Value: len(res.Text)})
			return res, nil
		}
	}

	res.StepLimitReached = true
	l.logger.WarnCtx(ctx, "maximum agent steps reached",
		logger.Field{Key: "session_id", Value: turn.Session.ID},
		logger.Field{Key: "max_steps", Value: l.config.MaxSteps})
	return res, nil
}

// step performs one model call and executes the tools it requested.
// A nil step means the model call itself failed.
func (l *Loop) step(ctx context.Context, index int, turn Turn, em Emitter) (*Step, error) {
	stepCtx, cancel := context.WithTimeout(ctx, l.config.StepTimeout)
	defer cancel()

	req := l.request(turn)
	resp, err := l.provider.Chat(stepCtx, req)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: step %d after %v", ErrStepTimeout, index+1, l.config.StepTimeout)
		}
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	l.logger.DebugCtx(ctx, "LLM response received",
		logger.Field{Key: "finish_reason", Value: resp.FinishReason},
		logger.Field{Key: "content_length", Value: len(resp.Content)},
		logger.Field{Key: "tool_calls_count", Value: len(resp.ToolCalls)},
		logger.Field{Key: "step", Value: index})

	step := &Step{
		Index:        index,
		Text:         resp.Content,
		ToolCalls:    resp.ToolCalls,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}
	if step.Text != "" {
		em.Text(ctx, step.Text)
	}
	turn.Session.Append(resp.AssistantMessage())

	if len(resp.ToolCalls) == 0 {
		return step, nil
	}
	if turn.Dispatcher == nil {
		return step, fmt.Errorf("model requested tools but none are available")
	}

	step.FinishReason = llm.FinishReasonToolCalls
	// Tools are bounded by the dispatcher timeout, not the step deadline.
	executor := NewToolExecutor(turn.Dispatcher, em)
	step.ToolResults = executor.ProcessToolCalls(ctx, resp.ToolCalls)
	for _, r := range step.ToolResults {
		turn.Session.Append(r.Message())
	}
	return step, nil
}

func (l *Loop) request(turn Turn) llm.ChatRequest {
	history := turn.Session.History()
	messages := make([]llm.Message, 0, len(history)+1)
	if turn.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: turn.SystemPrompt})
	}
	messages = append(messages, history...)

	req := llm.ChatRequest{
		Messages:    messages,
		Model:       l.config.Model,
		Temperature: l.config.Temperature,
		MaxTokens:   l.config.MaxTokens,
	}
	if turn.Dispatcher != nil && l.provider.SupportsToolCalling() {
		req.Tools = turn.Dispatcher.Registry().ToSchema()
	}
	return req
}
