package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/task"
)

// terminalWriteTimeout bounds the detached writes a job makes after its own
// context has been cancelled.
const terminalWriteTimeout = 5 * time.Second

// StartProcessing resets the session for a fresh run, registers a
// cancellable job, and launches it in the background. Returns ErrNotFound
// for unknown ids and ErrProcessing while a job for the session is still
// registered. Re-processing a finished session is allowed and clears the
// previous run's results.
func (m *Manager) StartProcessing(ctx context.Context, id string, req model.ProcessRequest) error {
	if !m.store.Exists(ctx, id) {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	jobCtx, cancel := context.WithCancel(m.jobCtx)
	handle := task.NewHandle(cancel)
	if !m.registry.Register(id, handle) {
		cancel()
		return fmt.Errorf("session %s: %w", id, ErrProcessing)
	}

	if !m.UpdateStatus(ctx, id, model.StatusProcessing, "") {
		m.registry.Remove(id, handle)
		cancel()
		return fmt.Errorf("session %s: %w", id, ErrPersistence)
	}
	m.UpdateResults(ctx, id, []model.Result{})

	m.jobs.Add(1)
	go m.runJob(jobCtx, handle, id, req)

	m.logger.Info("session: processing started",
		"session_id", id,
		"source", req.Source,
		"clip_count", req.ClipCount,
	)
	return nil
}

// CancelProcessing requests cooperative cancellation of the session's job
// and reports whether one was registered. The session is marked cancelled
// right away rather than when the job goroutine observes the signal.
func (m *Manager) CancelProcessing(ctx context.Context, id string) (bool, error) {
	if !m.store.Exists(ctx, id) {
		return false, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	if !m.registry.Cancel(id) {
		return false, nil
	}

	m.UpdateStatus(ctx, id, model.StatusCancelled, "")
	m.logger.Info("session: cancellation requested", "session_id", id)
	return true, nil
}

// runJob drives one pipeline run: acquire a slot, re-assert the processing
// status, keep a heartbeat alive, and translate the runner's outcome into
// a terminal status. Terminal writes use a fresh context because the job
// context is often already cancelled by then.
func (m *Manager) runJob(ctx context.Context, handle *task.Handle, id string, req model.ProcessRequest) {
	defer m.jobs.Done()
	defer handle.Finish()
	defer m.registry.Remove(id, handle)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session: job panicked", "session_id", id, "panic", r)
			m.finishJob(id, model.StatusError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := m.jobSlots.Acquire(ctx, 1); err != nil {
		m.finishJob(id, model.StatusCancelled, "")
		m.logger.Info("session: cancelled while queued", "session_id", id)
		return
	}
	defer m.jobSlots.Release(1)

	ws, err := m.GetSession(ctx, id)
	if err != nil {
		m.finishJob(id, model.StatusError, err.Error())
		m.logger.Error("session: job workspace unavailable", "session_id", id, "error", err)
		return
	}

	// The job may have sat queued behind the slot semaphore.
	m.UpdateStatus(ctx, id, model.StatusProcessing, "")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		m.heartbeat(hbCtx, id)
	}()
	defer func() {
		stopHeartbeat()
		<-hbDone
	}()

	results, err := m.runner.Run(ctx, req, ws, &reporter{m: m, id: id})
	switch {
	case err == nil:
		m.completeJob(id, results)
		m.logger.Info("session: processing completed", "session_id", id, "results", len(results))
	case errors.Is(err, context.Canceled):
		m.finishJob(id, model.StatusCancelled, "")
		m.logger.Info("session: processing cancelled", "session_id", id)
	default:
		m.finishJob(id, model.StatusError, err.Error())
		m.logger.Error("session: processing failed", "session_id", id, "error", err)
	}
}

// heartbeat keeps a processing session visibly alive: on start and then
// every interval it re-asserts the current step and progress, which
// refreshes last_activity. Exits as soon as the session disappears, leaves
// the processing status, or ctx is cancelled; never writes after a
// cancellation wake.
func (m *Manager) heartbeat(ctx context.Context, id string) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		rec, ok := m.store.GetSession(ctx, id)
		if !ok || rec.Status != model.StatusProcessing {
			return
		}
		m.UpdateProgress(ctx, id, rec.CurrentStep, rec.Progress)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// completeJob stores the final ordered results and marks the session
// completed, results first so a completed status is never visible without
// them.
func (m *Manager) completeJob(id string, results []model.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	m.UpdateResults(ctx, id, results)
	m.UpdateStatus(ctx, id, model.StatusCompleted, "")
}

// finishJob writes a terminal status. Already-appended results stay in
// place; an error status also parks progress at the error sentinel.
func (m *Manager) finishJob(id string, status model.Status, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	if status == model.StatusError {
		m.UpdateProgress(ctx, id, "failed", model.ProgressError)
	}
	m.UpdateStatus(ctx, id, status, errMsg)
}

// reporter binds pipeline progress callbacks to one session.
type reporter struct {
	m  *Manager
	id string
}

func (r *reporter) UpdateProgress(ctx context.Context, step string, progress int) {
	r.m.UpdateProgress(ctx, r.id, step, progress)
}

func (r *reporter) AddResult(ctx context.Context, result model.Result) {
	r.m.AddResult(ctx, r.id, result)
}
