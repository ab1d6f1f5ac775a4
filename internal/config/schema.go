// Package config provides configuration loading and validation for tradiecrm.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation that reports every problem at once.
//
// Configuration structure:
//   - [server]: HTTP listen address and timeouts
//   - [store]: SQLite database path
//   - [agent]: Step ceiling, timeouts and sampling for the tool loop
//   - [llm]: LLM provider configuration (Gemini, OpenAI-compatible)
//   - [memory]: Long-term memory search (Mem0)
//   - [cache]: TTLs and size of the context and memory caches
//   - [draft]: One-liner draft conflict window
//   - [cleanup]: Periodic sweep of idle sessions and expired cache entries
//   - [logging]: Logging level, format, and output
//   - [metrics]: Prometheus endpoint
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: api_key = "${GEMINI_API_KEY:}"
package config

import (
	"path/filepath"
	"time"
)

// Config represents the main application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Agent   AgentConfig   `toml:"agent"`
	LLM     LLMConfig     `toml:"llm"`
	Memory  MemoryConfig  `toml:"memory"`
	Cache   CacheConfig   `toml:"cache"`
	Draft   DraftConfig   `toml:"draft"`
	Cleanup CleanupConfig `toml:"cleanup"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Addr                   string   `toml:"addr"`
	ReadTimeoutSeconds     int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `toml:"allowed_origins"`
}

// StoreConfig представляет конфигурацию хранилища
type StoreConfig struct {
	Path string `toml:"path"`
}

// AgentConfig представляет конфигурацию agent loop
type AgentConfig struct {
	MaxSteps           int     `toml:"max_steps"`
	StepTimeoutSeconds int     `toml:"step_timeout_seconds"`
	ToolTimeoutSeconds int     `toml:"tool_timeout_seconds"`
	Temperature        float64 `toml:"temperature"`
	MaxTokens          int     `toml:"max_tokens"`
	Timezone           string  `toml:"timezone"`
}

// LLMConfig представляет конфигурацию LLM провайдера
type LLMConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	MaxRetries int    `toml:"max_retries"`
	// RequestsPerMinute caps model calls across the process. Zero disables the limit.
	RequestsPerMinute int          `toml:"requests_per_minute"`
	Gemini            GeminiConfig `toml:"gemini"`
	OpenAI            OpenAIConfig `toml:"openai"`
}

// GeminiConfig представляет конфигурацию Gemini провайдера
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
}

// OpenAIConfig is any OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MemoryConfig представляет конфигурацию долговременной памяти
type MemoryConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Limit          int    `toml:"limit"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CacheConfig представляет конфигурацию кэшей
type CacheConfig struct {
	ContextTTLSeconds int `toml:"context_ttl_seconds"`
	MemoryTTLSeconds  int `toml:"memory_ttl_seconds"`
	MaxEntries        int `toml:"max_entries"`
}

// DraftConfig представляет конфигурацию черновиков задач
type DraftConfig struct {
	ConflictWindowMinutes int `toml:"conflict_window_minutes"`
}

// CleanupConfig представляет конфигурацию периодической очистки
type CleanupConfig struct {
	Enabled            bool   `toml:"enabled"`
	Schedule           string `toml:"schedule"`
	SessionIdleMinutes int    `toml:"session_idle_minutes"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// MetricsConfig представляет конфигурацию Prometheus
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	Path      string `toml:"path"`
}

// StepTimeout returns the per-step model timeout.
func (a AgentConfig) StepTimeout() time.Duration {
	return time.Duration(a.StepTimeoutSeconds) * time.Second
}

// ToolTimeout returns the per-call tool timeout.
func (a AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(a.ToolTimeoutSeconds) * time.Second
}

// Location loads the configured business timezone.
func (a AgentConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

// ContextTTL returns the agent context cache TTL.
func (c CacheConfig) ContextTTL() time.Duration {
	return time.Duration(c.ContextTTLSeconds) * time.Second
}

// MemoryTTL returns the memory search cache TTL.
func (c CacheConfig) MemoryTTL() time.Duration {
	return time.Duration(c.MemoryTTLSeconds) * time.Second
}

// ConflictWindow returns the draft time clash window.
func (d DraftConfig) ConflictWindow() time.Duration {
	return time.Duration(d.ConflictWindowMinutes) * time.Minute
}

// SessionIdleTTL returns how long an untouched conversation is kept.
func (c CleanupConfig) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// StoreDir returns the directory holding the database file.
func (s StoreConfig) StoreDir() string {
	return filepath.Dir(s.Path)
}
