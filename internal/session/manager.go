// Package session implements the session lifecycle façade: persisted
// records, cached workspaces, and the background jobs that fill them.
//
// The manager composes parts it does not create: the sqlite store, the
// workspace cache, the task registry, and the pipeline runner are injected
// at construction so ownership and lifetime are visible in one place.
// Mutable session state lives only in the store; the cache holds
// filesystem handles, never data.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/pipeline"
	"github.com/vodworks/clipper/internal/storage"
	"github.com/vodworks/clipper/internal/task"
	"github.com/vodworks/clipper/internal/workspace"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxConcurrentJobs = 4
)

// Options configure a Manager. Zero values fall back to defaults.
type Options struct {
	// WorkspaceRoot is the directory session workspaces live under.
	WorkspaceRoot string

	// HeartbeatInterval is how often a processing session re-touches
	// last_activity. Default 30s.
	HeartbeatInterval time.Duration

	// MaxConcurrentJobs bounds how many pipelines run at once. Default 4.
	MaxConcurrentJobs int64
}

// Manager is the session lifecycle façade.
type Manager struct {
	store    *storage.Store
	cache    *workspace.Cache
	registry *task.Registry
	runner   pipeline.Runner
	logger   *slog.Logger

	workspaceRoot     string
	heartbeatInterval time.Duration
	jobSlots          *semaphore.Weighted

	rebuild singleflight.Group

	jobCtx     context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup

	purgedTotal  atomic.Int64 // sessions removed by age-based cleanup
	shutdownOnce sync.Once

	now func() time.Time
}

// NewManager wires the façade. Call Start before submitting jobs and
// Shutdown on process exit.
func NewManager(store *storage.Store, cache *workspace.Cache, registry *task.Registry, runner pipeline.Runner, logger *slog.Logger, opts Options) *Manager {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}

	return &Manager{
		store:             store,
		cache:             cache,
		registry:          registry,
		runner:            runner,
		logger:            logger,
		workspaceRoot:     opts.WorkspaceRoot,
		heartbeatInterval: opts.HeartbeatInterval,
		jobSlots:          semaphore.NewWeighted(opts.MaxConcurrentJobs),
		now:               time.Now,
	}
}

// Start prepares the manager to launch jobs and registers its gauges. The
// given context is the parent of every job context; Shutdown cancels it.
func (m *Manager) Start(ctx context.Context) {
	m.jobCtx, m.cancelJobs = context.WithCancel(ctx)
	m.registerMetrics()

	counts := m.Counts(ctx)
	m.logger.Info("session: manager ready",
		"workspace_root", m.workspaceRoot,
		"active_sessions", counts.ActiveSessions,
		"processing_sessions", counts.ProcessingSessions,
	)
}

// CreateSession allocates a new session: workspace directory first, then
// the persisted row, then the cache entry. If the row cannot be persisted
// the directory is torn down again so no orphan remains; the cache is only
// populated once the record exists.
func (m *Manager) CreateSession(ctx context.Context) (model.SessionRecord, error) {
	id := uuid.NewString()

	ws, err := workspace.New(m.workspaceRoot, id)
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("session: create workspace: %w", err)
	}

	rec := model.NewSessionRecord(id, model.Epoch(m.now()))
	if !m.store.CreateSession(ctx, rec) {
		if cerr := ws.Cleanup(); cerr != nil {
			m.logger.Error("session: teardown after failed create", "session_id", id, "error", cerr)
		}
		return model.SessionRecord{}, fmt.Errorf("session: persist %s: %w", id, ErrPersistence)
	}

	m.cache.Put(id, ws)
	m.logger.Info("session: created", "session_id", id)
	return rec, nil
}

// GetSession returns the session's workspace, rebuilding it from the id on
// a cache miss. The persisted record must exist; the miss path is the
// recovery path after an eviction or a restart. Concurrent misses for one
// id collapse into a single rebuild so no divergent workspace objects are
// created. Every access refreshes last_activity.
func (m *Manager) GetSession(ctx context.Context, id string) (*workspace.Workspace, error) {
	ws, ok := m.cache.Get(id)
	if !ok {
		v, err, _ := m.rebuild.Do(id, func() (any, error) {
			if cached, ok := m.cache.Get(id); ok {
				return cached, nil
			}
			if !m.store.Exists(ctx, id) {
				return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
			}
			rebuilt, err := workspace.New(m.workspaceRoot, id)
			if err != nil {
				return nil, fmt.Errorf("session: rebuild workspace %s: %w", id, err)
			}
			m.cache.Put(id, rebuilt)
			m.logger.Debug("session: workspace rebuilt", "session_id", id)
			return rebuilt, nil
		})
		if err != nil {
			return nil, err
		}
		ws = v.(*workspace.Workspace)
	}

	m.store.TouchLastActivity(ctx, id)
	return ws, nil
}

// GetSessionData returns the persisted record. The store is authoritative;
// the cache is never consulted.
func (m *Manager) GetSessionData(ctx context.Context, id string) (model.SessionRecord, error) {
	rec, ok := m.store.GetSession(ctx, id)
	if !ok {
		return model.SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// SessionExists reports whether a persisted record exists for id.
func (m *Manager) SessionExists(ctx context.Context, id string) bool {
	return m.store.Exists(ctx, id)
}

// Status assembles the status surface for one session: the persisted row,
// plus outputs once completed or the error message once errored.
func (m *Manager) Status(ctx context.Context, id string) (model.SessionStatus, error) {
	rec, err := m.GetSessionData(ctx, id)
	if err != nil {
		return model.SessionStatus{}, err
	}

	st := model.SessionStatus{
		SessionID:      rec.SessionID,
		Status:         rec.Status,
		CreatedAt:      rec.CreatedAt,
		LastActivity:   rec.LastActivity,
		PartialResults: rec.Results,
		CurrentStep:    rec.CurrentStep,
		Progress:       rec.Progress,
	}
	switch rec.Status {
	case model.StatusCompleted:
		st.Outputs = rec.Results
	case model.StatusError:
		st.Error = "Unknown error"
		if rec.Error != nil && *rec.Error != "" {
			st.Error = *rec.Error
		}
	}
	return st, nil
}

// UpdateStatus moves a session to status and stamps activity. A non-empty
// errMsg is recorded; an empty one leaves any previous message in place.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status model.Status, errMsg string) bool {
	rec, ok := m.store.GetSession(ctx, id)
	if !ok {
		return false
	}

	rec.Status = status
	rec.LastActivity = model.Epoch(m.now())
	if errMsg != "" {
		rec.Error = &errMsg
	}
	return m.store.UpdateSession(ctx, rec)
}

// UpdateProgress records the job's current step and completion percentage.
func (m *Manager) UpdateProgress(ctx context.Context, id, step string, progress int) bool {
	rec, ok := m.store.GetSession(ctx, id)
	if !ok {
		return false
	}

	rec.CurrentStep = step
	rec.Progress = progress
	rec.LastActivity = model.Epoch(m.now())
	return m.store.UpdateSession(ctx, rec)
}

// AddResult appends one result record atomically.
func (m *Manager) AddResult(ctx context.Context, id string, result model.Result) bool {
	return m.store.AppendResult(ctx, id, result)
}

// UpdateResults replaces the whole results list.
func (m *Manager) UpdateResults(ctx context.Context, id string, results []model.Result) bool {
	rec, ok := m.store.GetSession(ctx, id)
	if !ok {
		return false
	}

	rec.Results = results
	rec.LastActivity = model.Epoch(m.now())
	return m.store.UpdateSession(ctx, rec)
}

// ListSessions projects persisted rows into summaries, most recent first.
func (m *Manager) ListSessions(ctx context.Context, limit int) []model.SessionSummary {
	recs := m.store.ListSessions(ctx, limit)

	out := make([]model.SessionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.SessionSummary{
			SessionID:    rec.SessionID,
			Status:       rec.Status,
			CreatedAt:    rec.CreatedAt,
			ResultsCount: len(rec.Results),
		})
	}
	return out
}

// Counts reports persisted active/processing totals and the cache size.
func (m *Manager) Counts(ctx context.Context) model.SessionCounts {
	return model.SessionCounts{
		ActiveSessions:     m.store.CountByStatus(ctx, model.StatusActive),
		ProcessingSessions: m.store.CountByStatus(ctx, model.StatusProcessing),
		CachedSessions:     m.cache.Len(),
	}
}

// Ping reports whether the session store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// ActiveJobs reports how many background jobs are currently registered.
func (m *Manager) ActiveJobs() int {
	return m.registry.Len()
}

// CachedWorkspaces reports how many workspaces the in-memory cache holds.
func (m *Manager) CachedWorkspaces() int {
	return m.cache.Len()
}

// CleanupSession tears one session down: cancel any registered job, remove
// the workspace, delete the persisted row, in that order. Each step is
// attempted even if an earlier one fails; reported success is whether the
// row was deleted.
func (m *Manager) CleanupSession(ctx context.Context, id string) bool {
	if m.registry.Cancel(id) {
		m.logger.Info("session: cancelled job during cleanup", "session_id", id)
	}

	m.removeWorkspace(ctx, id)

	deleted := m.store.DeleteSession(ctx, id)
	if deleted {
		m.logger.Info("session: cleaned up", "session_id", id)
	}
	return deleted
}

// CleanupOldSessions removes every session whose created_at is older than
// maxAge. Workspaces and cache entries go first so a deleted row cannot
// leave a directory behind, then the rows are removed in one statement.
// Age is measured from creation, not last activity, so a session is
// reclaimed after maxAge even if a job is still appending to it.
func (m *Manager) CleanupOldSessions(ctx context.Context, maxAge time.Duration) int {
	cutoff := model.Epoch(m.now()) - maxAge.Seconds()

	for _, rec := range m.store.ListSessions(ctx, 0) {
		if rec.CreatedAt >= cutoff {
			continue
		}
		m.registry.Cancel(rec.SessionID)
		m.removeWorkspace(ctx, rec.SessionID)
	}

	deleted := m.store.CleanupOlderThan(ctx, maxAge)
	if deleted > 0 {
		m.purgedTotal.Add(int64(deleted))
		m.logger.Info("session: purged old sessions", "deleted", deleted, "max_age", maxAge)
	}
	return deleted
}

// removeWorkspace cleans a session's directory whether or not its handle
// is cached. Uncached sessions still own a directory on disk, derived from
// the id.
func (m *Manager) removeWorkspace(ctx context.Context, id string) {
	ws, ok := m.cache.Remove(id)
	if !ok {
		if !m.store.Exists(ctx, id) {
			return
		}
		var err error
		ws, err = workspace.New(m.workspaceRoot, id)
		if err != nil {
			m.logger.Error("session: open workspace for cleanup", "session_id", id, "error", err)
			return
		}
	}
	if err := ws.Cleanup(); err != nil {
		m.logger.Error("session: cleanup workspace", "session_id", id, "error", err)
	}
}

// Shutdown cancels every running job, waits for them to drain within ctx's
// deadline, cleans all cached workspaces, and closes the store. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) {
	m.shutdownOnce.Do(func() {
		m.logger.Info("session: shutting down")

		m.registry.CancelAll()
		if m.cancelJobs != nil {
			m.cancelJobs()
		}

		drained := make(chan struct{})
		go func() {
			m.jobs.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			m.logger.Warn("session: shutdown timed out waiting for jobs")
		}

		for _, ws := range m.cache.Drain() {
			if err := ws.Cleanup(); err != nil {
				m.logger.Error("session: cleanup workspace at shutdown", "session_id", ws.ID(), "error", err)
			}
		}

		if err := m.store.Close(); err != nil {
			m.logger.Error("session: close store", "error", err)
		}
		m.logger.Info("session: shutdown complete")
	})
}
