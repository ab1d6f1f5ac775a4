package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Data stream protocol v1 headers.
const (
	DataStreamContentType = "text/plain; charset=utf-8"
	DataStreamHeader      = "X-Vercel-AI-Data-Stream"
	DataStreamVersion     = "v1"
)

// DataStreamWriter encodes events in the AI SDK data stream protocol: one
// "<code>:<json>\n" line per part.
type DataStreamWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewDataStreamWriter wraps w. When w is an http.Flusher every part is
// flushed as soon as it is written.
func NewDataStreamWriter(w io.Writer) *DataStreamWriter {
	f, _ := w.(http.Flusher)
	return &DataStreamWriter{w: w, flusher: f}
}

type streamToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type streamToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type streamFinishStep struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

type streamFinish struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// Send writes ev as a protocol part.
func (d *DataStreamWriter) Send(ev Event) error {
	code, payload, err := encodePart(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(d.w, "%s:%s\n", code, payload); err != nil {
		return fmt.Errorf("failed to write stream part: %w", err)
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
	return nil
}

func encodePart(ev Event) (string, []byte, error) {
	var (
		code string
		v    any
	)
	switch ev.Type {
	case EventText:
		code, v = "0", ev.Text
	case EventAnnotation:
		code, v = "8", ev.Annotations
	case EventToolCall:
		if ev.ToolCall == nil {
			return "", nil, fmt.Errorf("tool call event without payload")
		}
		code, v = "9", streamToolCall(*ev.ToolCall)
	case EventToolResult:
		if ev.ToolResult == nil {
			return "", nil, fmt.Errorf("tool result event without payload")
		}
		code, v = "a", streamToolResult{ToolCallID: ev.ToolResult.ToolCallID, Result: ev.ToolResult.Result}
	case EventError:
		code, v = "3", ev.Error
	case EventFinishStep:
		f := finishOrStop(ev.Finish)
		code, v = "e", streamFinishStep{FinishReason: f.FinishReason, Usage: f.Usage, IsContinued: f.IsContinued}
	case EventFinish:
		f := finishOrStop(ev.Finish)
		code, v = "d", streamFinish{FinishReason: f.FinishReason, Usage: f.Usage}
	default:
		return "", nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s part: %w", ev.Type, err)
	}
	return code, payload, nil
}

func finishOrStop(f *Finish) Finish {
	if f == nil {
		return Finish{FinishReason: FinishStop}
	}
	return *f
}
