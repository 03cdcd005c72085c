// Package clipper is the public API for embedding the Clipper session server.
//
// Consumers import this package to run the server with their own media
// pipeline plugged in, without forking it:
//
//	app, err := clipper.New(
//	    clipper.WithVersion(version),
//	    clipper.WithLogger(logger),
//	    clipper.WithRunner(myPipeline{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: clipper (root) imports
// internal/*, but internal/* never imports clipper (root). Public types
// (Session, Result, ProcessRequest) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package clipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/vodworks/clipper/api"
	"github.com/vodworks/clipper/internal/config"
	"github.com/vodworks/clipper/internal/mcp"
	"github.com/vodworks/clipper/internal/model"
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

// Sentinel errors returned by the App's session methods.
var (
	// ErrSessionNotFound means no persisted session exists for the id.
	ErrSessionNotFound = errors.New("clipper: session not found")

	// ErrAlreadyProcessing means a job for the session is still running.
	ErrAlreadyProcessing = errors.New("clipper: session already processing")
)

// App is the Clipper server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        *storage.Store
	manager      *session.Manager
	sweeper      *session.Sweeper
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
	started      bool
	closeOnce    sync.Once
}

// New initialises the Clipper server. It opens the session database, runs
// migrations, wires all subsystems, and returns a ready-to-run App. It does
// NOT start any goroutines or accept HTTP connections — call Run(), or
// Start() plus Handler() to mount the API into an existing server.
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("clipper: load config: %w", err)
	}
	applyOverrides(&cfg, o)

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("clipper: telemetry: %w", err)
	}

	store, err := storage.Open(ctx, cfg.DBPath, storage.Options{
		MaxConns:    cfg.DBMaxConns,
		BusyTimeout: cfg.DBBusyTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("clipper: storage: %w", err)
	}
	if err := store.RunMigrations(ctx, migrations.FS); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("clipper: migrations: %w", err)
	}

	var runner pipeline.Runner = &pipeline.NoopRunner{StepDelay: cfg.PipelineStepDelay}
	if o.runner != nil {
		runner = runnerAdapter{r: o.runner}
	}

	manager := session.NewManager(store, workspace.NewCache(), task.NewRegistry(), runner, logger,
		session.Options{
			WorkspaceRoot:     cfg.WorkspaceRoot,
			HeartbeatInterval: cfg.HeartbeatInterval,
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		})

	sweeper, err := session.NewSweeper(manager, logger, cfg.CleanupInterval, cfg.SessionTTL, cfg.CleanupSchedule)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("clipper: %w", err)
	}

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	mcpSrv := mcp.New(manager, logger, version)
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

	return &App{
		cfg:          cfg,
		store:        store,
		manager:      manager,
		sweeper:      sweeper,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// applyOverrides copies non-zero option values over the env-derived config.
func applyOverrides(cfg *config.Config, o resolvedOptions) {
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.workspaceRoot != "" {
		cfg.WorkspaceRoot = o.workspaceRoot
	}
	if o.sessionTTL > 0 {
		cfg.SessionTTL = o.sessionTTL
	}
	if o.cleanupInterval > 0 {
		cfg.CleanupInterval = o.cleanupInterval
	}
	if o.heartbeatInterval > 0 {
		cfg.HeartbeatInterval = o.heartbeatInterval
	}
	if o.maxConcurrentJobs > 0 {
		cfg.MaxConcurrentJobs = o.maxConcurrentJobs
	}
}

// Start launches the background machinery (job manager, cleanup sweeper)
// without serving HTTP. ctx is the parent of every job; cancelling it or
// calling Close stops everything. Use together with Handler when mounting
// the API into an existing server.
func (a *App) Start(ctx context.Context) {
	if a.started {
		return
	}
	a.started = true
	a.manager.Start(ctx)
	a.sweeper.Start(ctx)
}

// Handler returns the root HTTP handler (API, MCP, health) for mounting
// into an existing server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the background machinery and serves HTTP until ctx is
// cancelled, then shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.Close(context.Background())
		return err
	}

	httpCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("clipper: http shutdown", "error", err)
	}
	cancel()

	a.Close(context.Background())
	return nil
}

// Close stops the sweeper, cancels running jobs, cleans cached workspaces,
// and closes the store and telemetry. Idempotent.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		if a.started {
			a.sweeper.Stop()
		}

		mgrCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a.manager.Shutdown(mgrCtx)
		cancel()

		_ = a.limiter.Close()
		_ = a.otelShutdown(ctx)
	})
}

// CreateSession allocates a new session and returns its id.
func (a *App) CreateSession(ctx context.Context) (string, error) {
	rec, err := a.manager.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	return rec.SessionID, nil
}

// StartProcessing launches the background job for a session.
func (a *App) StartProcessing(ctx context.Context, id string, req ProcessRequest) error {
	mreq := model.ProcessRequest{
		Source:    req.Source,
		ClipCount: req.ClipCount,
		Vertical:  req.Vertical,
		Subtitles: req.Subtitles,
	}
	if err := mreq.Validate(); err != nil {
		return fmt.Errorf("clipper: %w", err)
	}
	return mapSessionErr(a.manager.StartProcessing(ctx, id, mreq))
}

// Cancel requests cooperative cancellation of a session's job and reports
// whether one was running.
func (a *App) Cancel(ctx context.Context, id string) (bool, error) {
	cancelled, err := a.manager.CancelProcessing(ctx, id)
	return cancelled, mapSessionErr(err)
}

// GetSession returns the session's current status projection.
func (a *App) GetSession(ctx context.Context, id string) (Session, error) {
	st, err := a.manager.Status(ctx, id)
	if err != nil {
		return Session{}, mapSessionErr(err)
	}
	return toPublicSession(st), nil
}

// ListSessions returns session summaries, newest first. limit <= 0 means
// all.
func (a *App) ListSessions(ctx context.Context, limit int) []SessionSummary {
	summaries := a.manager.ListSessions(ctx, limit)
	out := make([]SessionSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, SessionSummary{
			SessionID:    s.SessionID,
			Status:       string(s.Status),
			CreatedAt:    s.CreatedAt,
			ResultsCount: s.ResultsCount,
		})
	}
	return out
}

// Cleanup deletes a session: cancels any job, removes the workspace, and
// deletes the record. Reports whether the record existed.
func (a *App) Cleanup(ctx context.Context, id string) bool {
	return a.manager.CleanupSession(ctx, id)
}

// SessionCounts returns the active/processing/cached counts surface.
func (a *App) SessionCounts(ctx context.Context) Counts {
	counts := a.manager.Counts(ctx)
	return Counts{
		ActiveSessions:     counts.ActiveSessions,
		ProcessingSessions: counts.ProcessingSessions,
		CachedSessions:     counts.CachedSessions,
	}
}

// mapSessionErr rewraps internal sentinels as public ones.
func mapSessionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrProcessing):
		return ErrAlreadyProcessing
	default:
		return err
	}
}

func toPublicSession(st model.SessionStatus) Session {
	return Session{
		SessionID:      st.SessionID,
		Status:         string(st.Status),
		CreatedAt:      st.CreatedAt,
		LastActivity:   st.LastActivity,
		CurrentStep:    st.CurrentStep,
		Progress:       st.Progress,
		PartialResults: toPublicResults(st.PartialResults),
		Outputs:        toPublicResults(st.Outputs),
		Error:          st.Error,
	}
}

func toPublicResults(in []model.Result) []Result {
	if in == nil {
		return nil
	}
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = Result(r)
	}
	return out
}

// runnerAdapter bridges a public Runner into the internal pipeline
// contract. *workspace.Workspace satisfies the public Workspace interface
// directly.
type runnerAdapter struct {
	r Runner
}

func (a runnerAdapter) Run(ctx context.Context, req model.ProcessRequest, ws *workspace.Workspace, rep pipeline.Reporter) ([]model.Result, error) {
	results, err := a.r.Run(ctx,
		ProcessRequest{
			Source:    req.Source,
			ClipCount: req.ClipCount,
			Vertical:  req.Vertical,
			Subtitles: req.Subtitles,
		},
		ws,
		reporterAdapter{rep: rep},
	)
	if err != nil {
		return nil, err
	}

	out := make([]model.Result, len(results))
	for i, r := range results {
		out[i] = model.Result(r)
	}
	return out, nil
}

// reporterAdapter bridges the internal progress sink into the public
// Reporter interface a Runner sees.
type reporterAdapter struct {
	rep pipeline.Reporter
}

func (a reporterAdapter) UpdateProgress(ctx context.Context, step string, progress int) {
	a.rep.UpdateProgress(ctx, step, progress)
}

func (a reporterAdapter) AddResult(ctx context.Context, result Result) {
	a.rep.AddResult(ctx, model.Result(result))
}
