package config

// Default returns the configuration used for every field a file leaves unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    300,
			ShutdownTimeoutSeconds: 10,
		},
		Store: StoreConfig{
			Path: "~/.tradiecrm/crm.db",
		},
		Agent: AgentConfig{
			MaxSteps:           5,
			StepTimeoutSeconds: 45,
			ToolTimeoutSeconds: 20,
			Temperature:        0.3,
			MaxTokens:          2048,
			Timezone:           "Australia/Sydney",
		},
		LLM: LLMConfig{
			Provider:   "gemini",
			Model:      "gemini-2.0-flash-lite",
			MaxRetries: 2,
			OpenAI: OpenAIConfig{
				BaseURL:        "https://api.openai.com/v1",
				TimeoutSeconds: 60,
			},
		},
		Memory: MemoryConfig{
			BaseURL:        "https://api.mem0.ai",
			Limit:          5,
			TimeoutSeconds: 5,
		},
		Cache: CacheConfig{
			ContextTTLSeconds: 30,
			MemoryTTLSeconds:  20,
			MaxEntries:        500,
		},
		Draft: DraftConfig{
			ConflictWindowMinutes: 60,
		},
		Cleanup: CleanupConfig{
			Schedule:           "@every 5m",
			SessionIdleMinutes: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Namespace: "tradiecrm",
			Path:      "/metrics",
		},
	}
}
