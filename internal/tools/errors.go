package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aatumaykin/tradiecrm/internal/logger"
)

// Kind classifies a tool failure.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindPermission Kind = "permission"
	KindConflict   Kind = "conflict"
)

// ToolError is a failure the model can act on: a stable code, a readable
// message and optionally what to try next.
type ToolError struct {
	Kind       Kind           `json:"kind"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

func (e *ToolError) Error() string {
	return e.Message
}

// ToLLMContext renders the error as tool output for the model. Details are
// listed in key order.
func (e *ToolError) ToLLMContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (code: %s)", e.Message, e.Code)

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggestion: %s", e.Suggestion)
	}

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, e.Details[k])
	}

	return b.String()
}

// LogFields возвращает поля для структурированного логирования
func (e *ToolError) LogFields() []logger.Field {
	fields := []logger.Field{
		{Key: "error_kind", Value: string(e.Kind)},
		{Key: "error_code", Value: e.Code},
		{Key: "error_message", Value: e.Message},
	}
	if e.Suggestion != "" {
		fields = append(fields, logger.Field{Key: "error_suggestion", Value: e.Suggestion})
	}
	return fields
}

// KindOf returns the kind of the first ToolError in err's chain, or "".
func KindOf(err error) Kind {
	var terr *ToolError
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}

// NewNotFoundError reports a record the arguments did not match.
func NewNotFoundError(code, message, suggestion string) *ToolError {
	return &ToolError{Kind: KindNotFound, Code: code, Message: message, Suggestion: suggestion}
}

// NewValidationError reports arguments the tool cannot use.
func NewValidationError(code, message string, details map[string]any) *ToolError {
	return &ToolError{Kind: KindValidation, Code: code, Message: message, Details: details}
}

// NewPermissionError reports an action the caller may not take.
func NewPermissionError(code, message string, details map[string]any) *ToolError {
	return &ToolError{Kind: KindPermission, Code: code, Message: message, Details: details}
}

// NewConflictError reports an action that is not allowed in the current state.
func NewConflictError(code, message, suggestion string) *ToolError {
	return &ToolError{Kind: KindConflict, Code: code, Message: message, Suggestion: suggestion}
}
