// Package chat handles one inbound chat message end to end. A message that
// reads like a job one-liner becomes a job draft without calling the model;
// anything else runs the agent loop with workspace context, memory and the
// CRM toolset, streaming events to a Sink as they happen.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	agentcontext "github.com/aatumaykin/tradiecrm/internal/agent/context"
	"github.com/aatumaykin/tradiecrm/internal/agent/loop"
	"github.com/aatumaykin/tradiecrm/internal/agent/memory"
	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/intake"
	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/metrics"
	"github.com/aatumaykin/tradiecrm/internal/tools"
	crmtools "github.com/aatumaykin/tradiecrm/internal/tools/crm"
)

// ErrEmptyMessage is returned when a request carries no user text.
var ErrEmptyMessage = errors.New("no user message")

// Request is one inbound user message.
type Request struct {
	WorkspaceID    string
	UserID         string
	ConversationID string
	AuthEmail      string
	Message        string
}

// ConfirmRequest confirms a shown draft from outside the conversation,
// typically a button in the UI.
type ConfirmRequest struct {
	WorkspaceID    string
	ConversationID string
	DraftID        string
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Parser    *intake.Parser
	Assembler *agentcontext.Assembler
	Memory    *memory.Fetcher
	Sessions  *session.Store
	Backend   crmtools.Backend
	Loop      *loop.Loop
	Detector  *draft.Detector
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// Config tunes the orchestrator.
type Config struct {
	ToolTimeout              time.Duration
	IncludeHistoricalPricing bool
	// Location is the business timezone relative schedules resolve in.
	Location *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Orchestrator routes chat messages to the one-liner path or the agent loop.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	drafts *crmtools.Drafter
	logger *logger.Logger
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("CRM backend cannot be nil")
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("context assembler cannot be nil")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("agent loop cannot be nil")
	}
	if deps.Parser == nil {
		deps.Parser = intake.NewParser()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = tools.DefaultTimeout
	}

	o := &Orchestrator{deps: deps, cfg: cfg, logger: deps.Logger}
	o.drafts = crmtools.NewDrafter(deps.Backend, deps.Detector, o.now, deps.Logger)
	return o, nil
}

func (o *Orchestrator) now() time.Time {
	if o.cfg.Now != nil {
		return o.cfg.Now().In(o.cfg.Location)
	}
	return time.Now().In(o.cfg.Location)
}

// Handle processes req and streams the response to sink. The stream always
// ends with a finish event. The returned error is informational: the sink
// has already received an apology when it is not nil.
func (o *Orchestrator) Handle(ctx context.Context, req Request, sink Sink) error {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ErrEmptyMessage
	}
	out := &stream{sink: sink, logger: o.logger, ctx: ctx}

	s := o.deps.Sessions.Get(req.WorkspaceID, req.ConversationID)
	reply := s.ApplyUserReply(text)
	if reply != session.ReplyOther {
		o.logger.DebugCtx(ctx, "draft gate updated by user reply",
			logger.Field{Key: "session_id", Value: s.ID},
			logger.Field{Key: "reply", Value: reply.String()})
	}

	if reply == session.ReplyOther {
		if intent, ok := o.deps.Parser.Parse(text); ok {
			o.deps.Metrics.RecordParse(true)
			o.handleOneLiner(ctx, req, s, intent, out)
			return nil
		}
		o.deps.Metrics.RecordParse(false)
	}

	if err := o.runAgent(ctx, req, s, text, out); err != nil {
		o.logger.ErrorCtx(ctx, "chat turn failed", err,
			logger.Field{Key: "workspace_id", Value: req.WorkspaceID},
			logger.Field{Key: "session_id", Value: s.ID})
		out.fail(err)
		return err
	}
	return nil
}

// handleOneLiner shows a draft for a parsed one-liner and arms the gate.
// Nothing is persisted until the draft is confirmed.
func (o *Orchestrator) handleOneLiner(ctx context.Context, req Request, s *session.Session, in intake.Intent, out *stream) {
	d := o.drafts.Prepare(ctx, req.WorkspaceID, in)
	draftID := crmtools.NewDraftID()
	s.Arm(session.Pending{DraftID: draftID, WorkspaceID: req.WorkspaceID, Draft: d})

	msg := draftMessage(d)
	// The model sees the exchange on the next turn and can finish the job
	// with create_job once the user confirms.
	s.Append(
		llm.Message{Role: llm.RoleUser, Content: req.Message},
		llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("%s (draftId %s)", msg, draftID)},
	)

	o.logger.InfoCtx(ctx, "job draft prepared from one-liner",
		logger.Field{Key: "workspace_id", Value: req.WorkspaceID},
		logger.Field{Key: "draft_id", Value: draftID},
		logger.Field{Key: "warnings", Value: len(d.Warnings)})

	out.send(draftEvent(draftID, d))
	out.send(textEvent(msg))
	out.send(finishStepEvent(FinishStop, llm.Usage{}, false))
	out.send(finishEvent(FinishStop, llm.Usage{}))
}

func draftMessage(d draft.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the job for %s: %s", d.ClientName, d.WorkDescription)
	if d.Schedule != "" {
		fmt.Fprintf(&b, " at %s", d.Schedule)
	}
	if d.Price != "" && d.PriceValue() > 0 {
		fmt.Fprintf(&b, " for $%s", d.Price)
	}
	b.WriteString(". Confirm to create it or tell me what to change.")
	for _, w := range d.Warnings {
		b.WriteString("\n⚠️ ")
		b.WriteString(w)
	}
	return b.String()
}

func (o *Orchestrator) runAgent(ctx context.Context, req Request, s *session.Session, text string, out *stream) error {
	ac, err := o.deps.Assembler.Build(ctx, req.WorkspaceID, req.UserID, agentcontext.Options{
		AuthEmail:                req.AuthEmail,
		IncludeHistoricalPricing: o.cfg.IncludeHistoricalPricing,
	})
	if err != nil {
		return fmt.Errorf("failed to build agent context: %w", err)
	}
	mem := o.deps.Memory.Fetch(ctx, req.UserID, text)

	registry := crmtools.NewToolset(crmtools.BindingFor(ac, req.ConversationID), crmtools.Deps{
		Backend: o.deps.Backend,
		Session: s,
		Drafts:  o.drafts,
		Now:     o.now,
		Logger:  o.logger,
	})
	dispatcher := tools.NewDispatcher(registry, o.cfg.ToolTimeout, o.deps.Metrics, o.logger)

	s.Append(llm.Message{Role: llm.RoleUser, Content: text})
	res, err := o.deps.Loop.Run(ctx, loop.Turn{
		SystemPrompt: ac.SystemPrompt(mem),
		Session:      s,
		Dispatcher:   dispatcher,
		Emitter:      &loopEmitter{out: out, session: s},
	})
	if err != nil {
		return err
	}

	if res.StepLimitReached {
		note := fmt.Sprintf("I've stopped after %d steps. Tell me to keep going if there's more to do.", len(res.Steps))
		s.Append(llm.Message{Role: llm.RoleAssistant, Content: note})
		out.send(textEvent(note))
	}
	out.send(finishEvent(FinishStop, res.Usage))
	return nil
}

// Confirm confirms the pending draft and creates the job.
func (o *Orchestrator) Confirm(ctx context.Context, req ConfirmRequest) (*crm.Deal, error) {
	s, ok := o.deps.Sessions.Lookup(req.WorkspaceID, req.ConversationID)
	if !ok {
		return nil, session.ErrNotAwaitingConfirmation
	}
	if _, err := s.Confirm(req.DraftID); err != nil {
		return nil, err
	}
	deal, _, err := crmtools.CommitDraft(ctx, o.deps.Backend, s, req.DraftID)
	if err != nil {
		return nil, err
	}

	s.Append(llm.Message{
		Role:    llm.RoleAssistant,
		Content: fmt.Sprintf("Created job %q for %s (id %s).", deal.Title, deal.ContactName, deal.ID),
	})
	o.logger.InfoCtx(ctx, "job created from confirmed draft",
		logger.Field{Key: "workspace_id", Value: req.WorkspaceID},
		logger.Field{Key: "draft_id", Value: req.DraftID},
		logger.Field{Key: "deal_id", Value: deal.ID})
	return deal, nil
}

// stream forwards events to the sink. After the first write error the
// client is gone and the remaining events are dropped.
type stream struct {
	ctx    context.Context
	sink   Sink
	logger *logger.Logger
	broken bool
}

func (st *stream) send(ev Event) {
	if st.broken {
		return
	}
	if err := st.sink.Send(ev); err != nil {
		st.broken = true
		st.logger.DebugCtx(st.ctx, "chat stream closed",
			logger.Field{Key: "event", Value: string(ev.Type)},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (st *stream) fail(err error) {
	st.send(textEvent(defaultErrorText))
	st.send(Event{Type: EventError, Error: err.Error()})
	st.send(finishStepEvent(FinishError, llm.Usage{}, false))
	st.send(finishEvent(FinishError, llm.Usage{}))
}

// loopEmitter turns loop progress into protocol events.
type loopEmitter struct {
	out     *stream
	session *session.Session
}

func (e *loopEmitter) Text(_ context.Context, text string) {
	e.out.send(textEvent(text))
}

func (e *loopEmitter) ToolCall(_ context.Context, call llm.ToolCall) {
	e.out.send(Event{Type: EventToolCall, ToolCall: &ToolCallEvent{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Args:       toolArgs(call.Arguments),
	}})
}

func (e *loopEmitter) ToolResult(_ context.Context, res tools.Result) {
	e.out.send(Event{Type: EventToolResult, ToolResult: &ToolResultEvent{
		ToolCallID: res.ToolCallID,
		Result:     res.ModelContent(),
		IsError:    !res.OK(),
	}})
	if res.Name != crmtools.ShowJobDraftTool || !res.OK() {
		return
	}
	if p, ok := e.session.Pending(); ok && p.ToolCallID == res.ToolCallID {
		e.out.send(draftEvent(p.DraftID, p.Draft))
	}
}

func (e *loopEmitter) StepFinished(_ context.Context, step loop.Step) {
	reason := FinishStop
	switch {
	case step.HasToolCalls():
		reason = FinishToolCalls
	case step.FinishReason == llm.FinishReasonLength:
		reason = FinishLength
	}
	e.out.send(finishStepEvent(reason, step.Usage, step.HasToolCalls()))
}
