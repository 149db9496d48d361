package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"workspace-editor-server/internal/batch"
	"workspace-editor-server/internal/config"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/llm"
	"workspace-editor-server/internal/lock"
	"workspace-editor-server/internal/mcp"
	"workspace-editor-server/internal/mutation"
	"workspace-editor-server/internal/orchestrator"
	"workspace-editor-server/internal/service"
	"workspace-editor-server/internal/tools"
	"workspace-editor-server/internal/transport"
	"workspace-editor-server/internal/workspace"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal.
	_ = godotenv.Load(".env")

	cfg, err := config.ParseFlags()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cfg.LogFormat, cfg.LogLevel, cfg.Transport)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logEffectiveConfig(logger, cfg)

	ws, err := workspace.New(cfg.WorkingDirectory, filesystem.NewDefaultFileSystemAdapter(), workspace.Options{
		MaxFileSizeBytes: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		ExcludedDirs:     cfg.ExcludedDirs,
	})
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	lockManager := lock.NewManager(time.Duration(cfg.OperationTimeoutSec) * time.Second)
	executor := batch.NewExecutor(mutation.New(ws), lockManager, logger.With("component", "batch"))
	registry := tools.NewRegistry(cfg.BatchToolEnabled)

	var runner service.TurnRunner
	if apiKey := cfg.Provider.APIKey(); apiKey == "" {
		logger.Warn("No provider API key found; chat is disabled", "api_key_env", cfg.Provider.APIKeyEnv)
	} else {
		engine, err := llm.New(llm.Options{Type: cfg.Provider.Type, BaseURL: cfg.Provider.BaseURL, APIKey: apiKey})
		if err != nil {
			return fmt.Errorf("initialize reasoning engine: %w", err)
		}
		runner = orchestrator.New(ws, engine, executor, registry, logger.With("component", "orchestrator"), orchestrator.Options{
			Model:           cfg.Provider.Model,
			MaxOutputTokens: cfg.Provider.MaxTokens,
			Temperature:     cfg.Provider.Temperature,
			PhaseTimeout:    time.Duration(cfg.Provider.PhaseTimeoutSec) * time.Second,
		})
	}

	agentService, err := service.NewDefaultAgentService(ws, runner, executor, registry, logger.With("component", "service"))
	if err != nil {
		return fmt.Errorf("initialize agent service: %w", err)
	}
	logger.Info("Core services initialized", "workspace", ws.Root(), "chat_enabled", runner != nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case "http":
		return serveHTTP(ctx, logger, cfg, agentService)
	case "stdio":
		processor := mcp.NewMCPProcessor(agentService, version)
		handler := transport.NewStdioHandler(agentService, processor, mcp.Handles, cfg.MaxRequestSizeMB, logger.With("component", "stdio"))
		done := make(chan error, 1)
		go func() { done <- handler.Start(ctx, os.Stdin, os.Stdout) }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			// The reader stays blocked on stdin; exiting releases it.
			logger.Info("Shutdown signal received, stopping stdio transport")
			return nil
		}
	default:
		return fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}
}

func serveHTTP(ctx context.Context, logger *slog.Logger, cfg *config.Config, svc service.AgentService) error {
	handler := transport.NewHTTPHandler(svc, cfg.MaxRequestSizeMB, logger.With("component", "http"))
	// Writes cover a full two-phase turn.
	writeTimeout := 2*time.Duration(cfg.Provider.PhaseTimeoutSec)*time.Second + time.Duration(cfg.OperationTimeoutSec)*time.Second

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- handler.StartServer(fmt.Sprintf(":%d", cfg.Port), 0, writeTimeout)
	}()

	select {
	case err := <-serverDone:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.OperationTimeoutSec)*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown error", "error", err)
		return err
	}
	return <-serverDone
}

// newLogger builds the process logger. In stdio mode stdout carries
// JSON-RPC, so logs go to stderr.
func newLogger(format, level, transportType string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	out := os.Stdout
	if transportType == "stdio" {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
	return slog.New(h), nil
}

func logEffectiveConfig(logger *slog.Logger, cfg *config.Config) {
	logger.Info("Effective configuration",
		"version", version,
		"working_directory", cfg.WorkingDirectory,
		"transport", cfg.Transport,
		"port", cfg.Port,
		"max_file_size_mb", cfg.MaxFileSizeMB,
		"max_request_size_mb", cfg.MaxRequestSizeMB,
		"operation_timeout_sec", cfg.OperationTimeoutSec,
		"provider", cfg.Provider.Type,
		"model", cfg.Provider.Model,
		"base_url", cfg.Provider.BaseURL,
		"batch_tool", cfg.BatchToolEnabled,
	)
}
