package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Load загружает конфигурацию из TOML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data, applies defaults and expands environment references.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate проверяет валидность конфигурации
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}

	if err := validatePath(c.Store.Path, "store.path"); err != nil {
		errs = append(errs, err)
	}

	if c.Agent.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be >= 1 (got %d)", c.Agent.MaxSteps))
	}
	if c.Agent.StepTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("agent.step_timeout_seconds must be >= 1 (got %d)", c.Agent.StepTimeoutSeconds))
	}
	if c.Agent.ToolTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("agent.tool_timeout_seconds must be >= 1 (got %d)", c.Agent.ToolTimeoutSeconds))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature must be between 0 and 2 (got %g)", c.Agent.Temperature))
	}
	if _, err := c.Agent.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid agent.timezone: %s", c.Agent.Timezone))
	}

	switch c.LLM.Provider {
	case "gemini":
		if err := validateAPIKey(c.LLM.Gemini.APIKey, "llm.gemini.api_key"); err != nil {
			errs = append(errs, err)
		}
	case "openai":
		if err := validateAPIKey(c.LLM.OpenAI.APIKey, "llm.openai.api_key"); err != nil {
			errs = append(errs, err)
		}
		if err := validateURL(c.LLM.OpenAI.BaseURL, "llm.openai.base_url"); err != nil {
			errs = append(errs, err)
		}
	case "":
		errs = append(errs, fmt.Errorf("llm.provider is required"))
	default:
		errs = append(errs, fmt.Errorf("invalid llm.provider: %s (expected: gemini, openai)", c.LLM.Provider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries cannot be negative"))
	}
	if c.LLM.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("llm.requests_per_minute cannot be negative"))
	}

	if c.Memory.Enabled {
		if err := validateAPIKey(c.Memory.APIKey, "memory.api_key"); err != nil {
			errs = append(errs, err)
		}
		if err := validateURL(c.Memory.BaseURL, "memory.base_url"); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Cache.ContextTTLSeconds < 1 {
		errs = append(errs, fmt.Errorf("cache.context_ttl_seconds must be >= 1"))
	}
	if c.Cache.MemoryTTLSeconds < 1 {
		errs = append(errs, fmt.Errorf("cache.memory_ttl_seconds must be >= 1"))
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be >= 1"))
	}

	if c.Draft.ConflictWindowMinutes < 1 {
		errs = append(errs, fmt.Errorf("draft.conflict_window_minutes must be >= 1"))
	}

	if c.Cleanup.Enabled {
		if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid cleanup.schedule %q: %w", c.Cleanup.Schedule, err))
		}
	}
	if c.Cleanup.SessionIdleMinutes < 1 {
		errs = append(errs, fmt.Errorf("cleanup.session_idle_minutes must be >= 1"))
	}

	errs = append(errs, validateLogging(c.Logging)...)

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with / (got %q)", c.Metrics.Path))
	}

	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error

	if l.Level == "" {
		errs = append(errs, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(l.Level)] {
			errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", l.Level))
		}
	}

	if l.Format == "" {
		errs = append(errs, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(l.Format)] {
			errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", l.Format))
		}
	}

	if l.Output == "" {
		errs = append(errs, fmt.Errorf("logging.output is required"))
	}

	return errs
}

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = d.Server.ReadTimeoutSeconds
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = d.Server.WriteTimeoutSeconds
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = d.Server.ShutdownTimeoutSeconds
	}

	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}

	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = d.Agent.MaxSteps
	}
	if c.Agent.StepTimeoutSeconds == 0 {
		c.Agent.StepTimeoutSeconds = d.Agent.StepTimeoutSeconds
	}
	if c.Agent.ToolTimeoutSeconds == 0 {
		c.Agent.ToolTimeoutSeconds = d.Agent.ToolTimeoutSeconds
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = d.Agent.Temperature
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = d.Agent.MaxTokens
	}
	if c.Agent.Timezone == "" {
		c.Agent.Timezone = d.Agent.Timezone
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.Model = "gpt-4o-mini"
		default:
			c.LLM.Model = d.LLM.Model
		}
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = d.LLM.MaxRetries
	}
	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = d.LLM.OpenAI.BaseURL
	}
	if c.LLM.OpenAI.TimeoutSeconds == 0 {
		c.LLM.OpenAI.TimeoutSeconds = d.LLM.OpenAI.TimeoutSeconds
	}

	if c.Memory.BaseURL == "" {
		c.Memory.BaseURL = d.Memory.BaseURL
	}
	if c.Memory.Limit == 0 {
		c.Memory.Limit = d.Memory.Limit
	}
	if c.Memory.TimeoutSeconds == 0 {
		c.Memory.TimeoutSeconds = d.Memory.TimeoutSeconds
	}

	if c.Cache.ContextTTLSeconds == 0 {
		c.Cache.ContextTTLSeconds = d.Cache.ContextTTLSeconds
	}
	if c.Cache.MemoryTTLSeconds == 0 {
		c.Cache.MemoryTTLSeconds = d.Cache.MemoryTTLSeconds
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = d.Cache.MaxEntries
	}

	if c.Draft.ConflictWindowMinutes == 0 {
		c.Draft.ConflictWindowMinutes = d.Draft.ConflictWindowMinutes
	}

	if c.Cleanup.Schedule == "" {
		c.Cleanup.Schedule = d.Cleanup.Schedule
	}
	if c.Cleanup.SessionIdleMinutes == 0 {
		c.Cleanup.SessionIdleMinutes = d.Cleanup.SessionIdleMinutes
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = d.Logging.Output
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) {
	c.Server.Addr = expandEnv(c.Server.Addr)
	c.Store.Path = expandHome(expandEnv(c.Store.Path))
	c.LLM.Gemini.APIKey = expandEnv(c.LLM.Gemini.APIKey)
	c.LLM.OpenAI.APIKey = expandEnv(c.LLM.OpenAI.APIKey)
	c.LLM.OpenAI.BaseURL = expandEnv(c.LLM.OpenAI.BaseURL)
	c.Memory.APIKey = expandEnv(c.Memory.APIKey)
	c.Memory.BaseURL = expandEnv(c.Memory.BaseURL)
	c.Logging.Output = expandHome(expandEnv(c.Logging.Output))
}

// expandEnv replaces every ${VAR} or ${VAR:default} reference in s.
func expandEnv(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			b.WriteString(s)
			return b.String()
		}
		end += start

		b.WriteString(s[:start])
		content := s[start+2 : end]
		key, defaultVal, hasDefault := strings.Cut(content, ":")
		val := os.Getenv(key)
		if val == "" && hasDefault {
			val = defaultVal
		}
		b.WriteString(val)
		s = s[end+1:]
	}
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Timeouts returns the read, write and shutdown timeouts.
func (s ServerConfig) Timeouts() (read, write, shutdown time.Duration) {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second,
		time.Duration(s.WriteTimeoutSeconds) * time.Second,
		time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}
