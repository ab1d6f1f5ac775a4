package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
)

// DefaultTimeout bounds a single tool execution when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// Result statuses reported to the Recorder.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusUnknown   = "unknown_tool"
)

// Tool defines the interface that all tools must implement.
// A tool represents a function that can be called by the LLM agent.
type Tool interface {
	// Name returns the unique name of the tool used in the function calling API.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON Schema object describing the tool's input.
	Parameters() map[string]any

	// Execute runs the tool. args is the JSON-encoded argument object.
	Execute(ctx context.Context, args string) (string, error)
}

// Func is a Tool whose arguments are decoded into A before fn runs.
// Unknown argument fields are rejected.
type Func[A any] struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args A) (string, error)
}

// New creates a typed tool.
func New[A any](name, description string, parameters map[string]any, fn func(ctx context.Context, args A) (string, error)) *Func[A] {
	return &Func[A]{name: name, description: description, parameters: parameters, fn: fn}
}

func (f *Func[A]) Name() string               { return f.name }
func (f *Func[A]) Description() string        { return f.description }
func (f *Func[A]) Parameters() map[string]any { return f.parameters }

// Execute decodes args and runs the tool function.
func (f *Func[A]) Execute(ctx context.Context, args string) (string, error) {
	var a A
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if err := parseJSON(args, &a); err != nil {
		return "", NewValidationError("invalid_arguments",
			fmt.Sprintf("invalid arguments for %s: %v", f.name, err),
			map[string]any{"arguments": args})
	}
	return f.fn(ctx, a)
}

// Registry holds the tools offered to the model for one request.
// Tools are listed in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
// A tool with the same name is replaced in place.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	return nil
}

// MustRegister registers every tool and panics on an invalid one.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a tool by its name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns all registered tools in order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// ToSchema converts the registered tools to provider function definitions.
func (r *Registry) ToSchema() []llm.ToolDefinition {
	tools := r.List()
	schemas := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return schemas
}

// ToJSON converts the tool definitions to JSON.
// Useful for debugging or logging.
func (r *Registry) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r.ToSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schemas: %w", err)
	}
	return string(data), nil
}

// Result is the outcome of one tool call.
type Result struct {
	ToolCallID string        `json:"tool_call_id"`
	Name       string        `json:"name"`
	Content    string        `json:"content"`
	Error      string        `json:"error,omitempty"`
	TimedOut   bool          `json:"timed_out,omitempty"`
	Duration   time.Duration `json:"-"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

// ModelContent is the text returned to the model for this call.
func (r Result) ModelContent() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return r.Content
}

// Message renders the result as a tool message for the conversation.
func (r Result) Message() llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    r.ModelContent(),
		ToolCallID: r.ToolCallID,
		Name:       r.Name,
	}
}

// Recorder receives one observation per executed call.
type Recorder interface {
	RecordTool(tool, status string, duration time.Duration)
}

type callIDKey struct{}

// WithCallID attaches the current tool call ID to ctx.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallID returns the tool call ID carried by ctx.
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// Dispatcher executes model tool calls against a registry. Failures are
// always returned inside the Result and never as Go errors.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	recorder Recorder
	logger   *logger.Logger
}

// NewDispatcher creates a dispatcher. A non-positive timeout uses DefaultTimeout.
func NewDispatcher(registry *Registry, timeout time.Duration, recorder Recorder, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{registry: registry, timeout: timeout, recorder: recorder, logger: log}
}

// Registry returns the registry the dispatcher executes against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs one tool call with the configured timeout.
func (d *Dispatcher) Execute(ctx context.Context, tc llm.ToolCall) Result {
	start := time.Now()
	res, status := d.execute(ctx, tc)
	res.Duration = time.Since(start)

	if d.recorder != nil {
		d.recorder.RecordTool(tc.Name, status, res.Duration)
	}

	fields := []logger.Field{
		{Key: "tool_name", Value: tc.Name},
		{Key: "tool_call_id", Value: tc.ID},
		{Key: "status", Value: status},
		{Key: "duration_ms", Value: res.Duration.Milliseconds()},
	}
	if res.Error != "" {
		fields = append(fields, logger.Field{Key: "error", Value: res.Error})
	}
	d.logger.DebugCtx(ctx, "tool executed", fields...)
	return res
}

func (d *Dispatcher) execute(ctx context.Context, tc llm.ToolCall) (Result, string) {
	res := Result{ToolCallID: tc.ID, Name: tc.Name}

	tool, ok := d.registry.Get(tc.Name)
	if !ok {
		terr := NewNotFoundError("unknown_tool",
			fmt.Sprintf("tool not found: %s", tc.Name),
			"Use one of: "+strings.Join(d.registry.Names(), ", "))
		res.Error = terr.ToLLMContext()
		return res, StatusUnknown
	}

	execCtx, cancel := context.WithTimeout(WithCallID(ctx, tc.ID), d.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		content, err := tool.Execute(execCtx, tc.Arguments)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && execCtx.Err() != nil {
				res.Error = fmt.Sprintf("tool execution timed out after %v", d.timeout)
				res.TimedOut = true
				return res, StatusTimeout
			}
			res.Error = errorContext(out.err)
			return res, StatusError
		}
		res.Content = out.content
		return res, StatusOK

	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("tool execution timed out after %v", d.timeout)
			res.TimedOut = true
			return res, StatusTimeout
		}
		res.Error = fmt.Sprintf("tool execution cancelled: %v", execCtx.Err())
		return res, StatusCancelled
	}
}

func errorContext(err error) string {
	var terr *ToolError
	if errors.As(err, &terr) {
		return terr.ToLLMContext()
	}
	return err.Error()
}
