package tools

import (
	"encoding/json"
	"strings"
)

// parseJSON decodes tool arguments, rejecting unknown fields.
func parseJSON(jsonStr string, v any) error {
	decoder := json.NewDecoder(strings.NewReader(jsonStr))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Object builds a JSON Schema object with the given properties.
func Object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// String is a string property schema.
func String(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// Number is a number property schema.
func Number(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// Integer is an integer property schema.
func Integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// Enum is a string property restricted to values.
func Enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}
