package loop

import (
	"context"

	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

// Emitter receives the progress of a turn as it happens.
type Emitter interface {
	Text(ctx context.Context, text string)
	ToolCall(ctx context.Context, call llm.ToolCall)
	ToolResult(ctx context.Context, res tools.Result)
	StepFinished(ctx context.Context, step Step)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Text(context.Context, string)            {}
func (NopEmitter) ToolCall(context.Context, llm.ToolCall)  {}
func (NopEmitter) ToolResult(context.Context, tools.Result) {}
func (NopEmitter) StepFinished(context.Context, Step)      {}

// Step is one model call and the tools it triggered.
type Step struct {
	Index        int
	Text         string
	ToolCalls    []llm.ToolCall
	ToolResults  []tools.Result
	FinishReason llm.FinishReason
	Usage        llm.Usage
}

// HasToolCalls reports whether the model asked for tools in this step.
func (s Step) HasToolCalls() bool {
	return len(s.ToolCalls) > 0
}

// Result is the outcome of a turn.
type Result struct {
	Steps []Step
	// Text is the final answer. Empty when the turn stopped early.
	Text             string
	StepLimitReached bool
	Usage            llm.Usage
}

func (r *Result) add(s Step) {
	r.Steps = append(r.Steps, s)
	r.Usage.PromptTokens += s.Usage.PromptTokens
	r.Usage.CompletionTokens += s.Usage.CompletionTokens
	r.Usage.TotalTokens += s.Usage.TotalTokens
}

// ToolResults returns every tool result of the turn in execution order.
func (r *Result) ToolResults() []tools.Result {
	var out []tools.Result
	for _, s := range r.Steps {
		out = append(out, s.ToolResults...)
	}
	return out
}
