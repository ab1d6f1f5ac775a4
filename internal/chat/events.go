package chat

import (
	"encoding/json"

	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/llm"
)

// EventType identifies a chat protocol event.
type EventType string

const (
	EventText        EventType = "text"
	EventAnnotation  EventType = "annotation"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventError       EventType = "error"
	EventFinishStep  EventType = "finish_step"
	EventFinish      EventType = "finish"
	ActionDraftJob             = "draft_job"
	defaultErrorText           = "Sorry, I'm having trouble connecting right now."
)

// Finish reasons as the chat UI understands them.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool-calls"
	FinishLength    = "length"
	FinishError     = "error"
)

// Event is one unit of a streamed chat response.
type Event struct {
	Type        EventType        `json:"type"`
	Text        string           `json:"text,omitempty"`
	Annotations []Annotation     `json:"annotations,omitempty"`
	ToolCall    *ToolCallEvent   `json:"toolCall,omitempty"`
	ToolResult  *ToolResultEvent `json:"toolResult,omitempty"`
	Error       string           `json:"error,omitempty"`
	Finish      *Finish          `json:"finish,omitempty"`
}

// Annotation carries a structured action for the UI next to the text.
type Annotation struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// DraftData is the payload of a draft_job annotation.
type DraftData struct {
	Draft   draft.Draft `json:"draft"`
	DraftID string      `json:"draftId"`
}

// ToolCallEvent announces a tool the model decided to call.
type ToolCallEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

// ToolResultEvent is what a tool returned to the model.
type ToolResultEvent struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
	IsError    bool   `json:"isError,omitempty"`
}

// Usage is the token usage reported in finish events.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Finish closes a step or the whole message.
type Finish struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued,omitempty"`
}

// Sink receives the events of one response in order.
type Sink interface {
	Send(ev Event) error
}

// Recorder collects events in memory. Useful for tests and for callers that
// need the whole response before answering.
type Recorder struct {
	Events []Event
}

// Send appends ev.
func (r *Recorder) Send(ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}

// Text returns all streamed text joined together.
func (r *Recorder) Text() string {
	var out string
	for _, ev := range r.Events {
		if ev.Type == EventText {
			out += ev.Text
		}
	}
	return out
}

// Of returns the events of type t.
func (r *Recorder) Of(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func textEvent(text string) Event {
	return Event{Type: EventText, Text: text}
}

func draftEvent(draftID string, d draft.Draft) Event {
	return Event{Type: EventAnnotation, Annotations: []Annotation{{
		Action: ActionDraftJob,
		Data:   DraftData{Draft: d, DraftID: draftID},
	}}}
}

func finishStepEvent(reason string, u llm.Usage, continued bool) Event {
	return Event{Type: EventFinishStep, Finish: &Finish{
		FinishReason: reason,
		Usage:        usageOf(u),
		IsContinued:  continued,
	}}
}

func finishEvent(reason string, u llm.Usage) Event {
	return Event{Type: EventFinish, Finish: &Finish{FinishReason: reason, Usage: usageOf(u)}}
}

func usageOf(u llm.Usage) Usage {
	return Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
}

// toolArgs keeps valid JSON arguments as they are and quotes anything else.
func toolArgs(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}
