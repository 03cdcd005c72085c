package server

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/session"
	"github.com/vodworks/clipper/internal/workspace"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	manager             *session.Manager
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): OpenAPISpec.
type HandlersDeps struct {
	Manager             *session.Manager
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		manager:             d.Manager,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleCreateSession handles POST /v1/sessions.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.CreateSession(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to create session", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, model.CreateSessionResponse{
		SessionID: rec.SessionID,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	})
}

// HandleListSessions handles GET /v1/sessions. Ordered newest first;
// ?limit=N caps the result, 0 or absent means all.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions := h.manager.ListSessions(r.Context(), limit)
	writeJSON(w, r, http.StatusOK, model.SessionListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// HandleGetSession handles GET /v1/sessions/{session_id}: the status surface
// clients poll during processing.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	st, err := h.manager.Status(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, r, id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// HandleStartProcessing handles POST /v1/sessions/{session_id}/process.
// Starting a job on a finished session begins a fresh run; a session with a
// registered job refuses with 409.
func (h *Handlers) HandleStartProcessing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	var req model.ProcessRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.manager.StartProcessing(r.Context(), id, req); err != nil {
		h.writeSessionError(w, r, id, err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, model.ProcessResponse{
		SessionID: id,
		Status:    model.StatusProcessing,
		Message:   "processing started, poll GET /v1/sessions/" + id + " for progress",
	})
}

// HandleCancelProcessing handles POST /v1/sessions/{session_id}/cancel.
func (h *Handlers) HandleCancelProcessing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	cancelled, err := h.manager.CancelProcessing(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, r, id, err)
		return
	}

	msg := "no active processing for session " + id
	if cancelled {
		msg = "processing for session " + id + " cancelled"
	}
	writeJSON(w, r, http.StatusOK, model.CancelResponse{
		SessionID: id,
		Cancelled: cancelled,
		Message:   msg,
	})
}

// HandleDeleteSession handles DELETE /v1/sessions/{session_id}: cancel any
// job, remove the workspace, delete the row.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	if !h.manager.CleanupSession(r.Context(), id) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, r, http.StatusOK, model.CleanupResponse{SessionID: id, Deleted: true})
}

// HandleListFiles handles GET /v1/sessions/{session_id}/files.
func (h *Handlers) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	ws, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, r, id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ws.Snapshot())
}

// HandleGetFile handles GET /v1/sessions/{session_id}/files/{filename...}.
// Serves one workspace artifact; ?download=1 switches the disposition to
// attachment. ServeFile supplies content type and range support.
func (h *Handlers) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	name := r.PathValue("filename")

	ws, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, r, id, err)
		return
	}

	path, err := ws.FilePath(name)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid file name")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "file not found: "+name)
		return
	}

	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filepath.Base(name)))
	http.ServeFile(w, r, path)
}

// HandleArchive handles GET /v1/sessions/{session_id}/archive: streams the
// whole workspace as a zip without staging it on disk.
func (h *Handlers) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	ws, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, r, id, err)
		return
	}

	files := ws.ListFiles()
	if len(files) == 0 {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no files found for session: "+id)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "clips_"+id+".zip"))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	for _, name := range files {
		if err := addArchiveEntry(zw, ws, name); err != nil {
			// Status and headers are already on the wire; log and stop streaming.
			h.logger.Error("archive write failed", "session_id", id, "file", name, "error", err)
			break
		}
	}
	if err := zw.Close(); err != nil {
		h.logger.Error("archive close failed", "session_id", id, "error", err)
	}
}

func addArchiveEntry(zw *zip.Writer, ws *workspace.Workspace, name string) error {
	path, err := ws.FilePath(name)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

// HandleCounts handles GET /v1/counts: persisted active/processing totals
// plus the workspace cache size.
func (h *Handlers) HandleCounts(w http.ResponseWriter, r *http.Request) {
	counts := h.manager.Counts(r.Context())
	writeJSON(w, r, http.StatusOK, model.CountsResponse{
		Status:        "alive",
		Timestamp:     model.Epoch(time.Now()),
		SessionCounts: counts,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.manager.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:         status,
		Version:        h.version,
		Database:       dbStatus,
		CachedSessions: h.manager.CachedWorkspaces(),
		RegisteredJobs: h.manager.ActiveJobs(),
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeSessionError maps façade errors onto HTTP statuses.
func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found: "+id)
	case errors.Is(err, session.ErrProcessing):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "session is already processing: "+id)
	default:
		h.writeInternalError(w, r, "session operation failed", err)
	}
}

// writeInternalError logs err and writes a generic 500 so internal detail
// never leaks into responses.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}
