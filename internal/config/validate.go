package config

import (
	"fmt"
	"net/url"
	"strings"
)

const minAPIKeyLength = 10

func validateAPIKey(key, fieldName string) error {
	if key == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if len(key) < minAPIKeyLength {
		return formatValidationError(fieldName,
			fmt.Sprintf("is too short (minimum %d characters, got %d)", minAPIKeyLength, len(key)), key)
	}

	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if strings.HasPrefix(path, "~") || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}

	return nil
}

func validateURL(raw, fieldName string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL (got %q)", fieldName, raw)
	}
	return nil
}
