package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	agentcontext "github.com/aatumaykin/tradiecrm/internal/agent/context"
	"github.com/aatumaykin/tradiecrm/internal/agent/loop"
	"github.com/aatumaykin/tradiecrm/internal/agent/memory"
	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/cache"
	"github.com/aatumaykin/tradiecrm/internal/chat"
	"github.com/aatumaykin/tradiecrm/internal/cleanup"
	"github.com/aatumaykin/tradiecrm/internal/config"
	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/httpapi"
	"github.com/aatumaykin/tradiecrm/internal/intake"
	"github.com/aatumaykin/tradiecrm/internal/llm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/metrics"
	"github.com/aatumaykin/tradiecrm/internal/store"
)

// loadConfig reads .env and the config file without validating it.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnvOptional(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func isFileStore(path string) bool {
	return path != ":memory:" && !strings.HasPrefix(path, "file:")
}

// openStore opens the SQLite store and creates its schema.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	if isFileStore(cfg.Path) {
		if err := os.MkdirAll(cfg.StoreDir(), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	st, err := store.New(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := st.AutoMigrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newProvider creates the configured LLM provider.
func newProvider(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (llm.Provider, error) {
	limiter := llm.NewPerMinuteLimiter(cfg.RequestsPerMinute)
	switch cfg.Provider {
	case "gemini":
		return llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
		}, limiter, log)
	case "openai":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.MaxRetries,
		}, limiter, log), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// application is the wired service.
type application struct {
	store   *store.Store
	handler http.Handler
	cleanup *cleanup.Scheduler
}

func (a *application) Close() error {
	a.cleanup.Stop()
	return a.store.Close()
}

// buildApplication wires every component from cfg.
func buildApplication(ctx context.Context, cfg *config.Config, provider llm.Provider, log *logger.Logger) (*application, error) {
	loc, err := cfg.Agent.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid agent.timezone: %w", err)
	}

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(cfg.Metrics.Namespace, reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	contextCache := cache.New[*agentcontext.AgentContext](cache.Options{
		Name:       agentcontext.CacheName,
		TTL:        cfg.Cache.ContextTTL(),
		MaxEntries: cfg.Cache.MaxEntries,
		Recorder:   m,
	})
	memoryCache := cache.New[string](cache.Options{
		Name:       memory.CacheName,
		TTL:        cfg.Cache.MemoryTTL(),
		MaxEntries: cfg.Cache.MaxEntries,
		Recorder:   m,
	})

	var searcher memory.Searcher
	if cfg.Memory.Enabled {
		searcher = memory.NewMem0Client(memory.Mem0Config{
			APIKey:     cfg.Memory.APIKey,
			BaseURL:    cfg.Memory.BaseURL,
			Limit:      cfg.Memory.Limit,
			Timeout:    time.Duration(cfg.Memory.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.LLM.MaxRetries,
		}, log)
	}

	agentLoop, err := loop.NewLoop(provider, loop.Config{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.Agent.MaxTokens,
		Temperature: cfg.Agent.Temperature,
		MaxSteps:    cfg.Agent.MaxSteps,
		StepTimeout: cfg.Agent.StepTimeout(),
		Logger:      log,
		Recorder:    m,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sessions := session.NewStore(session.Options{IdleTTL: cfg.Cleanup.SessionIdleTTL()})
	sweeper, err := cleanup.NewScheduler(cleanup.Config{
		Enabled:  cfg.Cleanup.Enabled,
		Schedule: cfg.Cleanup.Schedule,
	}, log,
		cleanup.Task{Name: "sessions", Run: sessions.Sweep},
		cleanup.Task{Name: agentcontext.CacheName, Run: contextCache.Purge},
		cleanup.Task{Name: memory.CacheName, Run: memoryCache.Purge},
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	orch, err := chat.New(chat.Deps{
		Parser:    intake.NewParser(),
		Assembler: agentcontext.NewAssembler(st, contextCache, log),
		Memory:    memory.NewFetcher(searcher, memoryCache, log),
		Sessions:  sessions,
		Backend:   st,
		Loop:      agentLoop,
		Detector:  draft.NewDetector(cfg.Draft.ConflictWindow()),
		Metrics:   m,
		Logger:    log,
	}, chat.Config{
		ToolTimeout:              cfg.Agent.ToolTimeout(),
		IncludeHistoricalPricing: true,
		Location:                 loc,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Chat:           orch,
		Store:          st,
		Metrics:        metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})
	return &application{store: st, handler: handler, cleanup: sweeper}, nil
}
