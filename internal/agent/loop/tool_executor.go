package loop

import (
	"context"

	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

// ToolExecutor runs the tool calls of one step in order and reports each
// call and result to the emitter.
type ToolExecutor struct {
	dispatcher *tools.Dispatcher
	emitter    Emitter
}

// NewToolExecutor creates a new ToolExecutor.
func NewToolExecutor(dispatcher *tools.Dispatcher, emitter Emitter) *ToolExecutor {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &ToolExecutor{dispatcher: dispatcher, emitter: emitter}
}

// ProcessToolCalls executes all tool calls sequentially. Calls are not run
// in parallel because later calls may depend on earlier side effects.
func (te *ToolExecutor) ProcessToolCalls(ctx context.Context, calls []llm.ToolCall) []tools.Result {
	results := make([]tools.Result, 0, len(calls))
	for _, call := range calls {
		te.emitter.ToolCall(ctx, call)
		res := te.dispatcher.Execute(ctx, call)
		te.emitter.ToolResult(ctx, res)
		results = append(results, res)
	}
	return results
}
