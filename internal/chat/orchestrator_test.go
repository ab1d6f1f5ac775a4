package chat

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcontext "github.com/aatumaykin/tradiecrm/internal/agent/context"
	"github.com/aatumaykin/tradiecrm/internal/agent/loop"
	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/store"
)

const (
	wsID   = "ws-sparky"
	convID = "conv-1"
)

type harness struct {
	store    *store.Store
	sessions *session.Store
	provider *llm.MockProvider
	orch     *Orchestrator
}

func newHarness(t *testing.T, provider *llm.MockProvider, maxSteps int) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.AutoMigrate(ctx))
	f, err := store.LoadFixture(filepath.Join("..", "store", "testdata", "workspace.yaml"))
	require.NoError(t, err)
	_, err = st.Seed(ctx, f)
	require.NoError(t, err)

	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	now := time.Date(2026, 2, 14, 10, 0, 0, 0, loc)

	l, err := loop.NewLoop(provider, loop.Config{MaxSteps: maxSteps, StepTimeout: 5 * time.Second})
	require.NoError(t, err)

	sessions := session.NewStore(session.Options{Now: func() time.Time { return now }})
	o, err := New(Deps{
		Assembler: agentcontext.NewAssembler(st, nil, nil),
		Sessions:  sessions,
		Backend:   st,
		Loop:      l,
		Detector:  draft.NewDetector(time.Hour),
	}, Config{
		ToolTimeout: 5 * time.Second,
		Location:    loc,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)

	return &harness{store: st, sessions: sessions, provider: provider, orch: o}
}

func (h *harness) send(t *testing.T, text string) (*Recorder, error) {
	t.Helper()
	rec := &Recorder{}
	err := h.orch.Handle(context.Background(), Request{
		WorkspaceID:    wsID,
		UserID:         "user-owner",
		ConversationID: convID,
		Message:        text,
	}, rec)
	return rec, err
}

func (h *harness) dealCount(t *testing.T) int {
	t.Helper()
	deals, err := h.store.ListDeals(context.Background(), wsID)
	require.NoError(t, err)
	return len(deals)
}

func types(rec *Recorder) []EventType {
	out := make([]EventType, 0, len(rec.Events))
	for _, ev := range rec.Events {
		out = append(out, ev.Type)
	}
	return out
}

func TestHandleOneLinerShowsDraftWithoutModel(t *testing.T) {
	h := newHarness(t, llm.NewScriptProvider(llm.TextResponse("unused")), 0)

	rec, err := h.send(t, "Sharon from 17 Alexandria St needs sink fixed quoted $200 for tomorrow 2pm")
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventAnnotation, EventText, EventFinishStep, EventFinish}, types(rec))
	assert.Equal(t, 0, h.provider.GetCallCount())
	assert.Equal(t, 3, h.dealCount(t), "a draft is not persisted")

	ann := rec.Events[0].Annotations
	require.Len(t, ann, 1)
	assert.Equal(t, ActionDraftJob, ann[0].Action)
	data, ok := ann[0].Data.(DraftData)
	require.True(t, ok)
	assert.Equal(t, "Sharon", data.Draft.ClientName)
	assert.Equal(t, "Sink Repair", data.Draft.WorkDescription)
	assert.Equal(t, "17 Alexandria Street", data.Draft.Address)
	assert.Contains(t, data.Draft.Schedule, "2:00 PM")
	assert.NotEmpty(t, data.Draft.Warnings, "the fixture has a job at the same time")

	assert.Contains(t, rec.Text(), "Here's the job for Sharon: Sink Repair")

	s, ok := h.sessions.Lookup(wsID, convID)
	require.True(t, ok)
	p, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, data.DraftID, p.DraftID)
	assert.False(t, p.Confirmed)
	assert.Equal(t, 2, s.Len())
}

func TestConfirmCreatesJobOnce(t *testing.T) {
	h := newHarness(t, llm.NewScriptProvider(llm.TextResponse("unused")), 0)
	rec, err := h.send(t, "Sharon from 17 Alexandria St needs sink fixed quoted $200 for tomorrow 2pm")
	require.NoError(t, err)
	draftID := rec.Events[0].Annotations[0].Data.(DraftData).DraftID

	ctx := context.Background()
	_, err = h.orch.Confirm(ctx, ConfirmRequest{WorkspaceID: wsID, ConversationID: convID, DraftID: "draft_other"})
	require.ErrorIs(t, err, session.ErrDraftMismatch)

	deal, err := h.orch.Confirm(ctx, ConfirmRequest{WorkspaceID: wsID, ConversationID: convID, DraftID: draftID})
	require.NoError(t, err)
	assert.Equal(t, "Sink Repair", deal.Title)
	assert.NotNil(t, deal.ScheduledAt)
	assert.Equal(t, 4, h.dealCount(t))

	_, err = h.orch.Confirm(ctx, ConfirmRequest{WorkspaceID: wsID, ConversationID: convID, DraftID: draftID})
	require.ErrorIs(t, err, session.ErrNotAwaitingConfirmation)
	assert.Equal(t, 4, h.dealCount(t))

	_, err = h.orch.Confirm(ctx, ConfirmRequest{WorkspaceID: wsID, ConversationID: "unknown", DraftID: draftID})
	require.ErrorIs(t, err, session.ErrNotAwaitingConfirmation)
}

func TestHandleAgentTurnStreamsToolsAndText(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ToolCallResponse(llm.ToolCall{ID: "call_1", Name: "list_deals", Arguments: `{"stage":"won"}`}),
		llm.TextResponse("You've got two tap repairs won."),
	)
	h := newHarness(t, p, 0)

	rec, err := h.send(t, "What's on the board?")
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventToolCall, EventToolResult, EventFinishStep,
		EventText, EventFinishStep, EventFinish,
	}, types(rec))

	call := rec.Events[0].ToolCall
	assert.Equal(t, "list_deals", call.ToolName)
	assert.JSONEq(t, `{"stage":"won"}`, string(call.Args))
	assert.False(t, rec.Events[1].ToolResult.IsError)
	assert.Contains(t, rec.Events[1].ToolResult.Result, `"count":2`)
	assert.Equal(t, FinishToolCalls, rec.Events[2].Finish.FinishReason)
	assert.True(t, rec.Events[2].Finish.IsContinued)
	assert.Equal(t, FinishStop, rec.Events[5].Finish.FinishReason)
	assert.Equal(t, "You've got two tap repairs won.", rec.Text())

	req := p.Requests()[0]
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.NotEmpty(t, req.Messages[0].Content)
	assert.Len(t, req.Tools, 19)
}

func TestHandleAgentDraftThenConfirm(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ToolCallResponse(llm.ToolCall{
			ID:        "call_draft",
			Name:      "show_job_draft",
			Arguments: `{"clientName":"Bob Jones","workDescription":"fix tap","schedule":"monday 9am","price":150}`,
		}),
		llm.TextResponse("Here's the draft for Bob. Confirm?"),
		llm.ToolCallResponse(llm.ToolCall{ID: "call_create", Name: "create_job", Arguments: `{}`}),
		llm.TextResponse("Booked in."),
	)
	h := newHarness(t, p, 0)

	rec, err := h.send(t, "Sort out a booking for Bob on Monday morning")
	require.NoError(t, err)
	anns := rec.Of(EventAnnotation)
	require.Len(t, anns, 1)
	data := anns[0].Annotations[0].Data.(DraftData)
	assert.Equal(t, "Bob Jones", data.Draft.ClientName)
	assert.Equal(t, 3, h.dealCount(t))

	rec, err = h.send(t, "yes")
	require.NoError(t, err)
	results := rec.Of(EventToolResult)
	require.Len(t, results, 1)
	assert.False(t, results[0].ToolResult.IsError)
	assert.Contains(t, results[0].ToolResult.Result, "Created job")
	assert.Equal(t, "Booked in.", rec.Text())
	assert.Equal(t, 4, h.dealCount(t))
}

func TestHandleStepLimitAddsNote(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ToolCallResponse(llm.ToolCall{ID: "call_1", Name: "list_deals", Arguments: `{}`}),
	)
	h := newHarness(t, p, 2)

	rec, err := h.send(t, "Keep checking the board")
	require.NoError(t, err)
	assert.Equal(t, 2, p.GetCallCount())
	assert.Len(t, rec.Of(EventToolResult), 2)
	assert.Contains(t, rec.Text(), "I've stopped after 2 steps")
	assert.Equal(t, EventFinish, rec.Events[len(rec.Events)-1].Type)
}

func TestHandleProviderFailureApologises(t *testing.T) {
	h := newHarness(t, llm.NewErrorProvider(), 0)

	rec, err := h.send(t, "What's on the board?")
	require.Error(t, err)

	assert.Equal(t, []EventType{EventText, EventError, EventFinishStep, EventFinish}, types(rec))
	assert.Equal(t, defaultErrorText, rec.Text())
	assert.Contains(t, rec.Events[1].Error, "LLM call failed")
	assert.Equal(t, FinishError, rec.Events[3].Finish.FinishReason)
}

func TestHandleCancelClearsDraft(t *testing.T) {
	p := llm.NewScriptProvider(llm.TextResponse("No worries, scrapped."))
	h := newHarness(t, p, 0)

	_, err := h.send(t, "Sharon from 17 Alexandria St needs sink fixed quoted $200 for tomorrow 2pm")
	require.NoError(t, err)

	rec, err := h.send(t, "cancel")
	require.NoError(t, err)
	assert.Equal(t, "No worries, scrapped.", rec.Text())

	s, _ := h.sessions.Lookup(wsID, convID)
	_, pending := s.Pending()
	assert.False(t, pending)
}

func TestHandleMixedRefusalNeverCreatesJob(t *testing.T) {
	p := llm.NewScriptProvider(
		llm.ToolCallResponse(llm.ToolCall{ID: "call_create", Name: "create_job", Arguments: `{}`}),
		llm.TextResponse("Okay."),
	)
	h := newHarness(t, p, 0)

	_, err := h.send(t, "Sharon from 17 Alexandria St needs sink fixed quoted $200 for tomorrow 2pm")
	require.NoError(t, err)

	rec, err := h.send(t, "ok cancel it")
	require.NoError(t, err)

	s, _ := h.sessions.Lookup(wsID, convID)
	_, pending := s.Pending()
	assert.False(t, pending)
	assert.Equal(t, 3, h.dealCount(t))

	results := rec.Of(EventToolResult)
	require.Len(t, results, 1)
	assert.True(t, results[0].ToolResult.IsError)
}

func TestHandleEmptyMessage(t *testing.T) {
	h := newHarness(t, llm.NewEchoProvider(), 0)
	rec, err := h.send(t, "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, rec.Events)
}
