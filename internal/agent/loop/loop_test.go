package loop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *recordingEmitter) Text(_ context.Context, text string) { e.add("text:" + text) }
func (e *recordingEmitter) ToolCall(_ context.Context, c llm.ToolCall) {
	e.add("call:" + c.Name)
}
func (e *recordingEmitter) ToolResult(_ context.Context, r tools.Result) {
	e.add(fmt.Sprintf("result:%s:%t", r.Name, r.OK()))
}
func (e *recordingEmitter) StepFinished(_ context.Context, s Step) {
	e.add(fmt.Sprintf("step:%d", s.Index))
}

type turnRecorder struct {
	steps   int
	limited bool
}

func (r *turnRecorder) RecordTurn(steps int, limitReached bool) {
	r.steps, r.limited = steps, limitReached
}

type countArgs struct{}

func counterDispatcher(n *atomic.Int64) *tools.Dispatcher {
	r := tools.NewRegistry()
	r.MustRegister(tools.New("count", "Counts calls", tools.Object(nil),
		func(context.Context, countArgs) (string, error) {
			return fmt.Sprint(n.Add(1)), nil
		}))
	return tools.NewDispatcher(r, time.Second, nil, nil)
}

func newSession(text string) *session.Session {
	s := session.NewStore(session.Options{}).Get("ws-1", "conv-1")
	s.Append(llm.Message{Role: llm.RoleUser, Content: text})
	return s
}

func countCall(id string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: "count", Arguments: "{}"}
}

func TestRunTextOnly(t *testing.T) {
	p := llm.NewScriptProvider(llm.TextResponse("G'day"))
	l, err := NewLoop(p, Config{Model: "m", Temperature: 0.3, MaxTokens: 256})
	require.NoError(t, err)

	var n atomic.Int64
	s := newSession("hi")
	res, err := l.Run(context.Background(), Turn{SystemPrompt: "be Travis", Session: s, Dispatcher: counterDispatcher(&n)})
	require.NoError(t, err)

	assert.Equal(t, "G'day", res.Text)
	assert.Len(t, res.Steps, 1)
	assert.False(t, res.StepLimitReached)

	req := p.Requests()[0]
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be Travis", req.Messages[0].Content)
	assert.Equal(t, "hi", req.Messages[1].Content)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "count", req.Tools[0].Name)
	assert.Equal(t, "m", req.Model)

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, llm.RoleAssistant, h[1].Role)
}

func TestRunExecutesToolsThenAnswers(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ChatResponse{Content: "Checking.", FinishReason: llm.FinishReasonToolCalls,
			ToolCalls: []llm.ToolCall{countCall("c1"), countCall("c2")}},
		llm.TextResponse("Done."),
	)
	l, err := NewLoop(p, Config{})
	require.NoError(t, err)

	var n atomic.Int64
	em := &recordingEmitter{}
	s := newSession("count twice")
	res, err := l.Run(context.Background(), Turn{Session: s, Dispatcher: counterDispatcher(&n), Emitter: em})
	require.NoError(t, err)

	assert.Equal(t, "Done.", res.Text)
	assert.Equal(t, int64(2), n.Load())
	require.Len(t, res.Steps, 2)
	assert.Equal(t, llm.FinishReasonToolCalls, res.Steps[0].FinishReason)
	assert.Len(t, res.ToolResults(), 2)

	assert.Equal(t, []string{
		"text:Checking.", "call:count", "result:count:true", "call:count", "result:count:true", "step:0",
		"text:Done.", "step:1",
	}, em.events)

	h := s.History()
	require.Len(t, h, 5)
	assert.Len(t, h[1].ToolCalls, 2)
	assert.Equal(t, llm.RoleTool, h[2].Role)
	assert.Equal(t, "c1", h[2].ToolCallID)
	assert.Equal(t, "1", h[2].Content)
	assert.Equal(t, "2", h[3].Content)

	second := p.Requests()[1]
	assert.Equal(t, llm.RoleTool, second.Messages[len(second.Messages)-1].Role)
}

func TestRunStopsAtStepCeiling(t *testing.T) {
	p := llm.NewScriptProvider(llm.ToolCallResponse(countCall("c")))
	rec := &turnRecorder{}
	l, err := NewLoop(p, Config{MaxSteps: 3, Recorder: rec})
	require.NoError(t, err)

	var n atomic.Int64
	s := newSession("loop forever")
	res, err := l.Run(context.Background(), Turn{Session: s, Dispatcher: counterDispatcher(&n)})
	require.NoError(t, err)

	assert.True(t, res.StepLimitReached)
	assert.Empty(t, res.Text)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, int64(3), n.Load())
	assert.Equal(t, 3, p.GetCallCount())
	assert.Equal(t, 7, s.Len(), "partial progress stays in the session")
	assert.Equal(t, turnRecorder{steps: 3, limited: true}, *rec)
}

func TestRunUnknownToolIsReportedToModel(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ToolCallResponse(llm.ToolCall{ID: "c1", Name: "delete_everything", Arguments: "{}"}),
		llm.TextResponse("Sorry, I can't do that."),
	)
	l, err := NewLoop(p, Config{})
	require.NoError(t, err)

	var n atomic.Int64
	s := newSession("delete it all")
	res, err := l.Run(context.Background(), Turn{Session: s, Dispatcher: counterDispatcher(&n)})
	require.NoError(t, err)

	assert.Equal(t, "Sorry, I can't do that.", res.Text)
	tr := res.ToolResults()
	require.Len(t, tr, 1)
	assert.False(t, tr[0].OK())
	assert.Contains(t, s.History()[2].Content, "Error: tool not found: delete_everything")
}

func TestRunStepTimeout(t *testing.T) {
	p := llm.NewMockProvider(llm.MockConfig{Mode: llm.MockModeEcho, Delay: time.Second})
	l, err := NewLoop(p, Config{StepTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	res, err := l.Run(context.Background(), Turn{Session: newSession("slow")})
	require.ErrorIs(t, err, ErrStepTimeout)
	require.NotNil(t, res)
	assert.Empty(t, res.Steps)
}

func TestRunToolsOutliveStepTimeout(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ToolCallResponse(llm.ToolCall{ID: "c1", Name: "slow", Arguments: "{}"}),
		llm.TextResponse("Done."),
	)
	l, err := NewLoop(p, Config{StepTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	r := tools.NewRegistry()
	r.MustRegister(tools.New("slow", "Takes longer than a step", tools.Object(nil),
		func(ctx context.Context, _ countArgs) (string, error) {
			select {
			case <-time.After(150 * time.Millisecond):
				return "finished", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}))

	res, err := l.Run(context.Background(), Turn{
		Session:    newSession("run the slow one"),
		Dispatcher: tools.NewDispatcher(r, time.Second, nil, nil),
	})
	require.NoError(t, err)

	tr := res.ToolResults()
	require.Len(t, tr, 1)
	assert.True(t, tr[0].OK(), tr[0].Error)
	assert.Equal(t, "finished", tr[0].Content)
	assert.Equal(t, "Done.", res.Text)
}

func TestRunProviderErrorKeepsPartialProgress(t *testing.T) {
	p := llm.NewMockProvider(llm.MockConfig{
		Mode:       llm.MockModeScript,
		Script:     []llm.ChatResponse{llm.ToolCallResponse(countCall("c1"))},
		ErrorAfter: 1,
	})
	l, err := NewLoop(p, Config{})
	require.NoError(t, err)

	var n atomic.Int64
	s := newSession("count")
	res, err := l.Run(context.Background(), Turn{Session: s, Dispatcher: counterDispatcher(&n)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM call failed")
	assert.Len(t, res.Steps, 1)
	assert.Equal(t, 3, s.Len())
}

func TestNewLoopRequiresProvider(t *testing.T) {
	_, err := NewLoop(nil, Config{})
	assert.Error(t, err)
}
