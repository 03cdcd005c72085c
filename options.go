package clipper

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port              int
	dbPath            string
	workspaceRoot     string
	logger            *slog.Logger
	version           string
	runner            Runner
	sessionTTL        time.Duration
	cleanupInterval   time.Duration
	heartbeatInterval time.Duration
	maxConcurrentJobs int64
}

// WithPort overrides the TCP port from config (CLIPPER_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDBPath overrides the session database path from config
// (CLIPPER_DB_PATH env var).
func WithDBPath(path string) Option {
	return func(o *resolvedOptions) { o.dbPath = path }
}

// WithWorkspaceRoot overrides the directory session workspaces live under
// (CLIPPER_WORKSPACE_ROOT env var).
func WithWorkspaceRoot(dir string) Option {
	return func(o *resolvedOptions) { o.workspaceRoot = dir }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithRunner replaces the placeholder pipeline with a real clip producer.
func WithRunner(r Runner) Option {
	return func(o *resolvedOptions) { o.runner = r }
}

// WithSessionTTL overrides how old a session must be before the periodic
// sweep removes it (CLIPPER_SESSION_TTL env var).
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *resolvedOptions) { o.sessionTTL = ttl }
}

// WithCleanupInterval overrides how often the sweep runs
// (CLIPPER_CLEANUP_INTERVAL env var).
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *resolvedOptions) { o.cleanupInterval = interval }
}

// WithHeartbeatInterval overrides how often a processing session re-touches
// its liveness timestamp (CLIPPER_HEARTBEAT_INTERVAL env var).
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(o *resolvedOptions) { o.heartbeatInterval = interval }
}

// WithMaxConcurrentJobs bounds how many pipelines run at once
// (CLIPPER_MAX_CONCURRENT_JOBS env var).
func WithMaxConcurrentJobs(n int64) Option {
	return func(o *resolvedOptions) { o.maxConcurrentJobs = n }
}
