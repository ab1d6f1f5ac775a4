package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/version"
)

var (
	serveLogLevel string
	serveAddr     string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server (main command)",
	Long: `Start the HTTP server with the specified configuration.
This opens the store, connects the LLM provider, wires the chat orchestrator
and serves /api/chat until SIGINT or SIGTERM, then shuts down gracefully.`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "❌ Configuration validation failed:")
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
		}
		return errors.New("invalid configuration")
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)

	build := version.Fields()
	log.Info("🚀 Starting tradiecrm",
		logger.Field{Key: "version", Value: build["version"]},
		logger.Field{Key: "git_commit", Value: build["commit"]},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "store", Value: cfg.Store.Path},
		logger.Field{Key: "llm_provider", Value: cfg.LLM.Provider},
		logger.Field{Key: "model", Value: cfg.LLM.Model})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := newProvider(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize LLM provider", err)
		return err
	}

	app, err := buildApplication(ctx, cfg, provider, log)
	if err != nil {
		log.Error("Failed to build application", err)
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("Failed to close store", err)
		}
	}()

	app.cleanup.Start()

	readTimeout, writeTimeout, shutdownTimeout := cfg.Server.Timeouts()
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		ErrorLog:     slog.NewLogLogger(log.StdLogger().Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	log.Info("✅ tradiecrm is listening", logger.Field{Key: "addr", Value: cfg.Server.Addr})

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("⏳ Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", err)
		return err
	}

	log.Info("👋 tradiecrm stopped gracefully")
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override the listen address (default from [server].addr)")
}
