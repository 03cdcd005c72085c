package clipper

import "time"

// Result is one clip descriptor in a session's results. The server treats
// it as an opaque JSON object.
type Result map[string]any

// Session is the status surface for one session. Outputs is set only once
// the session completed; Error only when it errored.
type Session struct {
	SessionID      string   `json:"session_id"`
	Status         string   `json:"status"`
	CreatedAt      float64  `json:"created_at"`
	LastActivity   float64  `json:"last_activity"`
	PartialResults []Result `json:"partial_results"`
	CurrentStep    string   `json:"current_step"`
	Progress       int      `json:"progress"`
	Outputs        []Result `json:"outputs,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Terminal reports whether the session's status accepts no further
// transitions.
func (s *Session) Terminal() bool {
	switch s.Status {
	case "completed", "error", "cancelled":
		return true
	}
	return false
}

// SessionSummary is one row of the listing surface.
type SessionSummary struct {
	SessionID    string  `json:"session_id"`
	Status       string  `json:"status"`
	CreatedAt    float64 `json:"created_at"`
	ResultsCount int     `json:"results_count"`
}

// ProcessRequest describes one processing job.
type ProcessRequest struct {
	Source    string `json:"source"`
	ClipCount int    `json:"clip_count,omitempty"`
	Vertical  bool   `json:"vertical,omitempty"`
	Subtitles bool   `json:"subtitles,omitempty"`
}

// CreateSessionResponse is the payload of a successful session create.
type CreateSessionResponse struct {
	SessionID string  `json:"session_id"`
	Status    string  `json:"status"`
	CreatedAt float64 `json:"created_at"`
}

// ProcessResponse acknowledges an accepted processing job.
type ProcessResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// CancelResponse reports the outcome of a cancel request. Cancelled is
// false when the session existed but had no running job.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// CleanupResponse reports the outcome of a session delete.
type CleanupResponse struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

// Counts is the session counts surface.
type Counts struct {
	Status             string  `json:"status"`
	Timestamp          float64 `json:"timestamp"`
	ActiveSessions     int     `json:"active_sessions"`
	ProcessingSessions int     `json:"processing_sessions"`
	CachedSessions     int     `json:"cached_sessions"`
}

// WorkspaceInfo is the file listing for one session's workspace.
type WorkspaceInfo struct {
	SessionID      string   `json:"session_id"`
	Active         bool     `json:"active"`
	Files          []string `json:"files"`
	TotalSizeBytes int64    `json:"total_size_bytes"`
	TempDirs       int      `json:"temp_dirs"`
}

// Health is the server health surface.
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Database       string `json:"database"`
	CachedSessions int    `json:"cached_sessions"`
	RegisteredJobs int    `json:"registered_jobs"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// envelope is the standard response wrapper every endpoint uses.
type envelope struct {
	Data  jsonRaw        `json:"data"`
	Error *errorDetail   `json:"error"`
	Meta  map[string]any `json:"meta"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// listPayload is the GET /v1/sessions data payload.
type listPayload struct {
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// jsonRaw avoids importing encoding/json's RawMessage alias into every
// signature.
type jsonRaw []byte

func (r *jsonRaw) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// defaultPollInterval paces WaitForCompletion status polls.
const defaultPollInterval = 2 * time.Second
