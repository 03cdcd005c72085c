package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vodworks/clipper/api"
	"github.com/vodworks/clipper/internal/config"
	"github.com/vodworks/clipper/internal/mcp"
	"github.com/vodworks/clipper/internal/pipeline"
	"github.com/vodworks/clipper/internal/ratelimit"
	"github.com/vodworks/clipper/internal/server"
	"github.com/vodworks/clipper/internal/session"
	"github.com/vodworks/clipper/internal/storage"
	"github.com/vodworks/clipper/internal/task"
	"github.com/vodworks/clipper/internal/telemetry"
	"github.com/vodworks/clipper/internal/workspace"
	"github.com/vodworks/clipper/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("CLIPPER_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("clipper starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Open the session store.
	store, err := storage.Open(ctx, cfg.DBPath, storage.Options{
		MaxConns:    cfg.DBMaxConns,
		BusyTimeout: cfg.DBBusyTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Apply the schema. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so an error here is a real
	// failure and the process must not start.
	if err := store.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// The placeholder runner stands in until a real media pipeline is wired.
	runner := &pipeline.NoopRunner{StepDelay: cfg.PipelineStepDelay}

	// Create the session manager and start its keepalive heartbeat.
	manager := session.NewManager(store, workspace.NewCache(), task.NewRegistry(), runner, logger,
		session.Options{
			WorkspaceRoot:     cfg.WorkspaceRoot,
			HeartbeatInterval: cfg.HeartbeatInterval,
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		})
	manager.Start(ctx)

	// Start the periodic cleanup sweeper.
	sweeper, err := session.NewSweeper(manager, logger, cfg.CleanupInterval, cfg.SessionTTL, cfg.CleanupSchedule)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	sweeper.Start(ctx)

	// Create MCP server.
	mcpSrv := mcp.New(manager, logger, version)

	// Per-IP rate limiter, disabled unless configured.
	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitRPS > 0 {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = mem.Close() }()
		limiter = mem
	}

	// Create and start HTTP server (MCP mounted at /mcp).
	srv := server.New(server.ServerConfig{
		Manager:             manager,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		RateLimiter:         limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		OpenAPISpec:         api.OpenAPISpec,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early completion
	// doesn't steal budget from later phases. Order: (1) stop accepting new
	// HTTP requests and drain in-flight handlers, (2) stop the cleanup
	// sweeper, (3) cancel running jobs and wait for them to unwind before the
	// store closes underneath them.
	slog.Info("clipper shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	sweeper.Stop()

	mgrCtx, mgrCancel := context.WithTimeout(context.Background(), 10*time.Second)
	manager.Shutdown(mgrCtx)
	mgrCancel()

	slog.Info("clipper stopped")
	return nil
}
